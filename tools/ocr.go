package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/deepnoodle-ai/invoiceflow"
)

// TextOCR extracts text from attachments that already carry a text layer.
// Missing files produce a placeholder line rather than an error, so an
// invoice whose attachments cannot be read falls back to its payload.
type TextOCR struct {
	provider string
	blobs    Blobs
}

// NewTextOCR returns an extractor registered under provider.
func NewTextOCR(provider string, blobs Blobs) *TextOCR {
	return &TextOCR{provider: provider, blobs: blobs}
}

func (o *TextOCR) Name() string { return o.provider }

func (o *TextOCR) ExtractText(ctx context.Context, attachments []string) (*invoiceflow.ExtractedText, error) {
	var parts []string
	for _, attachment := range attachments {
		data, err := o.blobs.Read(ctx, attachment)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			parts = append(parts, fmt.Sprintf("Invoice text extracted from %s using %s", filepath.Base(attachment), o.provider))
		case err != nil:
			return nil, err
		case strings.TrimSpace(string(data)) == "":
			parts = append(parts, fmt.Sprintf("File %s processed", filepath.Base(attachment)))
		default:
			parts = append(parts, string(data))
		}
	}
	text := strings.Join(parts, "\n\n")
	if text == "" {
		text = "No text extracted"
	}
	return &invoiceflow.ExtractedText{Text: text, Provider: o.provider}, nil
}
