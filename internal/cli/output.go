package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/deepnoodle-ai/invoiceflow"
	"github.com/fatih/color"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	labelColor  = color.New(color.FgBlue)
	dimColor    = color.New(color.Faint)
)

func statusColor(s invoiceflow.Status) *color.Color {
	switch s {
	case invoiceflow.StatusCompleted:
		return color.New(color.FgGreen, color.Bold)
	case invoiceflow.StatusPaused:
		return color.New(color.FgYellow, color.Bold)
	case invoiceflow.StatusRequiresManualHandling:
		return color.New(color.FgMagenta, color.Bold)
	case invoiceflow.StatusFailed:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printField(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	labelColor.Fprintf(w, "%-14s", label+":")
	fmt.Fprintf(w, " %s\n", value)
}

func printRunResult(w io.Writer, result *invoiceflow.RunResult) {
	printField(w, "Instance", result.InstanceID)
	labelColor.Fprintf(w, "%-14s", "Status:")
	statusColor(result.Status).Fprintf(w, " %s\n", result.Status)
	printField(w, "Stage", result.CurrentStage)
	printField(w, "Checkpoint", result.CheckpointID)
	printField(w, "Review URL", result.ReviewURL)
	if len(result.StagesRun) > 0 {
		printField(w, "Stages run", strings.Join(result.StagesRun, " -> "))
	}
	if result.Error != nil {
		color.New(color.FgRed).Fprintf(w, "Error: %s\n", result.Error)
	}
}

func printStatus(w io.Writer, view *invoiceflow.StatusView) {
	printField(w, "Instance", view.InstanceID)
	labelColor.Fprintf(w, "%-14s", "Status:")
	statusColor(view.Status).Fprintf(w, " %s\n", view.Status)
	printField(w, "Stage", view.CurrentStage)
	printField(w, "Checkpoint", view.CheckpointID)
	printField(w, "Complete", fmt.Sprint(view.Complete))
	if view.Error != nil {
		color.New(color.FgRed).Fprintf(w, "Error: %s\n", view.Error)
	}
}

func printReviews(w io.Writer, entries []*invoiceflow.ReviewEntry) {
	if len(entries) == 0 {
		dimColor.Fprintln(w, "No checkpoints awaiting review")
		return
	}
	headerColor.Fprintf(w, "%d checkpoint(s) awaiting review\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(w, "\n%s  %s  %s  %.2f %s\n", e.CheckpointID, e.InvoiceID, e.VendorName, e.Amount, e.Currency)
		dimColor.Fprintf(w, "  instance %s, queued %s\n", e.InstanceID, e.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(w, "  %s\n", e.MismatchDetail)
	}
}

func printSummaries(w io.Writer, items []*invoiceflow.InstanceSummary) {
	if len(items) == 0 {
		dimColor.Fprintln(w, "No workflows found")
		return
	}
	for _, s := range items {
		fmt.Fprintf(w, "%s  ", s.InstanceID)
		statusColor(s.Status).Fprintf(w, "%-24s", s.Status)
		fmt.Fprintf(w, "  %-16s %s  %s\n", s.CurrentStage, s.InvoiceID, s.VendorName)
	}
}
