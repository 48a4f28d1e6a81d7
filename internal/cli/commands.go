package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/deepnoodle-ai/invoiceflow/stages"
	"github.com/deepnoodle-ai/invoiceflow/tools"
	"github.com/spf13/cobra"
)

// NewRunCommand starts an invoice from a JSON file.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <invoice.json>",
		Short: "Run an invoice through the pipeline",
		Long: `Run an invoice through the pipeline until it completes or pauses for review.

Example:
  invoiceflow run invoice.json
  invoiceflow run --config invoiceflow.yaml --json invoice.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read invoice: %w", err)
			}
			var inv invoiceflow.Invoice
			if err := json.Unmarshal(data, &inv); err != nil {
				return fmt.Errorf("failed to parse invoice %s: %w", args[0], err)
			}
			return opts.withApp(cmd.Context(), true, func(app *App) error {
				result, err := app.Engine.Start(cmd.Context(), inv)
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), result)
				}
				printRunResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

// NewResumeCommand steps an instance, recovering a decision recorded on its
// checkpoint if the instance never received it.
func NewResumeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <instance-id>",
		Short: "Resume a paused instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), true, func(app *App) error {
				result, err := app.Engine.Resume(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), result)
				}
				printRunResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

// NewDecideCommand submits a reviewer decision.
func NewDecideCommand(opts *RootOptions) *cobra.Command {
	var reviewer, notes string
	cmd := &cobra.Command{
		Use:   "decide <checkpoint-id> accept|reject",
		Short: "Accept or reject a checkpoint awaiting review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), true, func(app *App) error {
				result, err := app.Engine.SubmitDecision(cmd.Context(), invoiceflow.DecisionRequest{
					CheckpointID: args[0],
					Decision:     args[1],
					ReviewerID:   reviewer,
					Notes:        notes,
				})
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), result)
				}
				w := cmd.OutOrStdout()
				headerColor.Fprintln(w, result.Message)
				printField(w, "Instance", result.InstanceID)
				printField(w, "Reviewer", result.ReviewerID)
				printField(w, "Resume token", result.ResumeToken)
				labelColor.Fprintf(w, "%-14s", "Status:")
				statusColor(result.Status).Fprintf(w, " %s\n", result.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer id (generated when empty)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes stored with the decision")
	return cmd
}

// NewStatusCommand prints the status of an instance.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <instance-id>",
		Short: "Show the status of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), true, func(app *App) error {
				view, err := app.Engine.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), view)
				}
				printStatus(cmd.OutOrStdout(), view)
				return nil
			})
		},
	}
}

// NewPendingCommand lists checkpoints awaiting review.
func NewPendingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List checkpoints awaiting a human decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), true, func(app *App) error {
				entries, err := app.Engine.PendingReviews(cmd.Context())
				if err != nil {
					return err
				}
				if opts.JSON {
					if entries == nil {
						entries = []*invoiceflow.ReviewEntry{}
					}
					return printJSON(cmd.OutOrStdout(), entries)
				}
				printReviews(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
}

// NewListCommand lists instances, newest first.
func NewListCommand(opts *RootOptions) *cobra.Command {
	var (
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflow instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), true, func(app *App) error {
				items, err := app.Engine.List(cmd.Context(), invoiceflow.ListOptions{
					Status: invoiceflow.Status(strings.ToUpper(status)),
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				if opts.JSON {
					return printJSON(cmd.OutOrStdout(), items)
				}
				printSummaries(cmd.OutOrStdout(), items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only list instances with this status")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of instances")
	return cmd
}

// NewDeleteCommand removes an instance with its checkpoints and ledger
// entries.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <instance-id>",
		Short: "Delete an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), true, func(app *App) error {
				if err := app.Engine.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s deleted successfully\n", args[0])
				return nil
			})
		},
	}
}

// NewSweepCommand rejects checkpoints that waited too long.
func NewSweepCommand(opts *RootOptions) *cobra.Command {
	var maxAge time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Reject checkpoints older than --max-age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), true, func(app *App) error {
				age := maxAge
				if age == 0 {
					age = app.Config.Sweep.MaxAge
				}
				result, err := app.Engine.Sweep(cmd.Context(), age, time.Now().UTC())
				if result != nil {
					if opts.JSON {
						if perr := printJSON(cmd.OutOrStdout(), result); perr != nil {
							return perr
						}
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "Rejected %d checkpoint(s)\n", len(result.Rejected))
						for _, id := range result.Rejected {
							dimColor.Fprintf(cmd.OutOrStdout(), "  %s\n", id)
						}
					}
				}
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "reject checkpoints older than this (default from config)")
	return cmd
}

// NewToolsCommand prints the provider chosen for each capability.
func NewToolsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Show the provider selected for each capability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			registry := tools.NewRegistry(opts.logger(cfg, true))
			_, selection, err := tools.Resolve(registry, tools.ResolveOptions{Hints: cfg.Tools})
			if err != nil {
				return err
			}
			if opts.JSON {
				return printJSON(cmd.OutOrStdout(), selection)
			}
			w := cmd.OutOrStdout()
			for _, line := range selection.Lines() {
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}
}

// NewGraphCommand prints the stage graph.
func NewGraphCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the stage graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, err := invoiceflow.NewPipeline(stages.All(nil)...)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), pipeline.Describe())
			return nil
		},
	}
}
