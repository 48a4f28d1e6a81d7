// Package cli implements the invoiceflow command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/spf13/cobra"
)

// RootOptions holds the flags shared by every command.
type RootOptions struct {
	ConfigFile string
	LogFormat  string
	LogLevel   string
	JSON       bool
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "invoiceflow",
		Short: "Durable invoice processing with human review",
		Long: `invoiceflow runs invoices through a staged pipeline, pauses the ones
that fail the two-way purchase order match, and resumes them when a
reviewer accepts or rejects the checkpoint.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.LogFormat {
			case "", "text", "json":
				return nil
			}
			return fmt.Errorf("invalid log format %q: must be text or json", opts.LogFormat)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "path to the YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json), overrides the config")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level, overrides the config")
	cmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "print results as JSON")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewResumeCommand(opts))
	cmd.AddCommand(NewDecideCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewToolsCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))

	return cmd
}

// loadConfig reads the config file and applies flag overrides.
func (o *RootOptions) loadConfig() (*invoiceflow.Config, error) {
	cfg, err := invoiceflow.LoadConfig(o.ConfigFile)
	if err != nil {
		return nil, err
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	return cfg, nil
}

// logger builds the process logger. One-shot commands log warnings only
// unless a level is given explicitly.
func (o *RootOptions) logger(cfg *invoiceflow.Config, oneShot bool) *slog.Logger {
	level := cfg.Log.Level
	if oneShot && o.LogLevel == "" {
		level = "warn"
	}
	return invoiceflow.NewLoggerWithLevel(cfg.Log.Format, level)
}

// withApp loads the config, opens the app for the duration of fn and
// closes it afterwards.
func (o *RootOptions) withApp(ctx context.Context, oneShot bool, fn func(app *App) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	app, err := OpenApp(ctx, cfg, o.logger(cfg, oneShot))
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Logger.Error("failed to close resources", "error", err)
		}
	}()
	return fn(app)
}
