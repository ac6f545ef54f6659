package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath names a session log file after the program and its start time,
// e.g. beamsim.20240501_120000.log.
func LogFilePath(logsDir, program string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", program, sessionStart.Format("20060102_150405")),
	)
}
