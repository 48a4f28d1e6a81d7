// Package tools maps capabilities to provider pools and builds the
// collaborators used by the stages.
package tools

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Capability names.
const (
	OCR        = "ocr"
	Enrichment = "enrichment"
	ERP        = "erp_connector"
	DB         = "db"
	Storage    = "storage"
	Email      = "email"
)

// Capabilities lists every capability in resolution order.
var Capabilities = []string{OCR, Enrichment, ERP, DB, Storage, Email}

// Tool describes one provider in a capability pool.
type Tool struct {
	Name       string            `json:"name"`
	Capability string            `json:"capability"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Choice is the outcome of Select.
type Choice struct {
	Tool   Tool     `json:"tool"`
	Pool   []string `json:"pool"`
	Reason string   `json:"reason"`
}

// Registry holds the provider pool of each capability.
type Registry struct {
	pools  map[string][]Tool
	logger *slog.Logger
}

// NewRegistry returns a registry with the default pools.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Registry{pools: map[string][]Tool{}, logger: logger}
	r.Register(OCR, "tesseract", map[string]string{"latency": "low", "cost": "free"})
	r.Register(OCR, "google_vision", map[string]string{"latency": "medium", "cost": "paid"})
	r.Register(OCR, "aws_textract", map[string]string{"latency": "medium", "cost": "paid"})
	r.Register(Enrichment, "vendor_db", map[string]string{"latency": "low", "cost": "internal"})
	r.Register(Enrichment, "clearbit", map[string]string{"latency": "medium", "cost": "paid"})
	r.Register(Enrichment, "people_data_labs", map[string]string{"latency": "medium", "cost": "paid"})
	r.Register(ERP, "mock_erp", map[string]string{"latency": "low", "type": "mock"})
	r.Register(ERP, "sap_sandbox", map[string]string{"latency": "high", "type": "real"})
	r.Register(ERP, "netsuite", map[string]string{"latency": "medium", "type": "real"})
	r.Register(DB, "sqlite", map[string]string{"latency": "low", "type": "embedded"})
	r.Register(DB, "postgres", map[string]string{"latency": "medium", "type": "server"})
	r.Register(DB, "dynamodb", map[string]string{"latency": "medium", "type": "server"})
	r.Register(Storage, "local_fs", map[string]string{"latency": "low", "type": "local"})
	r.Register(Storage, "s3", map[string]string{"latency": "medium", "type": "cloud"})
	r.Register(Storage, "gcs", map[string]string{"latency": "medium", "type": "cloud"})
	r.Register(Email, "sendgrid", map[string]string{"latency": "low", "cost": "paid"})
	r.Register(Email, "smartlead", map[string]string{"latency": "low", "cost": "paid"})
	r.Register(Email, "ses", map[string]string{"latency": "low", "cost": "paid"})
	return r
}

// Register adds a provider to a capability pool. Registering an existing
// name replaces its metadata.
func (r *Registry) Register(capability, name string, metadata map[string]string) {
	tool := Tool{Name: name, Capability: capability, Metadata: metadata}
	for i, existing := range r.pools[capability] {
		if existing.Name == name {
			r.pools[capability][i] = tool
			return
		}
	}
	r.pools[capability] = append(r.pools[capability], tool)
}

// Pool returns the provider names registered for a capability.
func (r *Registry) Pool(capability string) []string {
	return toolNames(r.pools[capability])
}

// Select picks a provider for capability. The pool is narrowed to the hinted
// names, falling back to the whole pool when no hint matches. Mock, local
// and sqlite providers are preferred; otherwise the first candidate wins.
func (r *Registry) Select(capability string, hints ...string) (Choice, error) {
	available := r.pools[capability]
	if len(available) == 0 {
		return Choice{}, fmt.Errorf("no tools available for capability %q", capability)
	}

	var candidates []Tool
	for _, hint := range hints {
		for _, tool := range available {
			if tool.Name == hint {
				candidates = append(candidates, tool)
			}
		}
	}
	if len(candidates) == 0 {
		candidates = available
	}

	choice := Choice{Tool: candidates[0], Pool: toolNames(candidates)}
	choice.Reason = "first_available_" + choice.Tool.Name
	for _, tool := range candidates {
		name := strings.ToLower(tool.Name)
		if strings.Contains(name, "mock") || strings.Contains(name, "local") || strings.Contains(name, "sqlite") {
			choice.Tool = tool
			choice.Reason = "prefer_demo_tool_" + tool.Name
			break
		}
	}
	r.logger.Info("tool selected",
		"capability", capability,
		"pool", choice.Pool,
		"selected", choice.Tool.Name,
		"reason", choice.Reason)
	return choice, nil
}

// Selection is the choice made for each capability.
type Selection map[string]Choice

// Provider returns the provider chosen for capability, or "".
func (s Selection) Provider(capability string) string {
	return s[capability].Tool.Name
}

// Lines renders the selection one capability per line, sorted.
func (s Selection) Lines() []string {
	capabilities := make([]string, 0, len(s))
	for capability := range s {
		capabilities = append(capabilities, capability)
	}
	sort.Strings(capabilities)
	lines := make([]string, 0, len(capabilities))
	for _, capability := range capabilities {
		c := s[capability]
		lines = append(lines, fmt.Sprintf("%s: %s (%s)", capability, c.Tool.Name, c.Reason))
	}
	return lines
}

func toolNames(tools []Tool) []string {
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return names
}
