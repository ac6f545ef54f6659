// Command beamsim loads a scene of beams and box occluders, runs the occlusion
// scheduler for a number of ticks and records what every beam saw.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/vlbeam/occlusion/internal/config"
)

// AppName names log files and the OTel service
const AppName = "beamsim"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	configDir := flags.String("config-dir", ".", "directory containing "+config.FileName)
	config.RegisterFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := config.Load(*configDir); err != nil {
		if !config.IsNotFound(err) {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s not found in %s, using defaults\n", config.FileName, *configDir)
	}
	if err := config.BindFlags(flags); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, LoadSettings())
	if err != nil {
		return err
	}

	runErr := app.Run(ctx)
	if err := app.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
