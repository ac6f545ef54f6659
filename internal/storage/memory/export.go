// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	v1 "github.com/vlbeam/occlusion/internal/storage/memory/export/v1"
)

// ExportFileName names the export of a run started at the given stamp
func ExportFileName(stamp string, compressed bool) string {
	name := "occlusion_" + stamp + ".json"
	if compressed {
		name += ".gz"
	}
	return name
}

// exportJSON writes the run into OutputDir. Caller holds b.mu.
func (b *Backend) exportJSON() error {
	export := v1.Build(&v1.RunData{
		StartedAt: b.startedAt,
		EndedAt:   b.now(),
		Beams:     b.beams,
	})

	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	name := ExportFileName(b.startedAt.Format("20060102_150405"), b.cfg.CompressOutput)
	outputPath := filepath.Join(b.cfg.OutputDir, name)
	if err := writeExport(outputPath, export, b.cfg.CompressOutput); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func writeExport(path string, export v1.Export, compress bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.Writer = f
	if compress {
		gz := gzip.NewWriter(f)
		defer func() {
			if cerr := gz.Close(); err == nil {
				err = cerr
			}
		}()
		w = gz
	}

	if err := json.NewEncoder(w).Encode(export); err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}
	return nil
}
