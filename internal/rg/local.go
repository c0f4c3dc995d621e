// internal/rg/local.go
package rg

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// localManifest describes a persisted fine-tuned artifact on disk
type localManifest struct {
	Model        string `json:"model"`
	BaseModel    string `json:"base_model,omitempty"`
	TemplateFile string `json:"template_file"`
}

// Local serves generations from a fine-tuned artifact loaded from disk at
// construction time. Loading happens exactly once; a failed load is
// reported to the caller, who downgrades to Fallback. Load is never
// retried during a negotiation.
type Local struct {
	model    string
	template string
}

// NewLocal loads the artifact directory: a manifest.json naming the model
// and its response template file
func NewLocal(dir string) (*Local, error) {
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact manifest: %w", err)
	}

	var m localManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("incompatible artifact manifest: %w", err)
	}
	if m.TemplateFile == "" {
		return nil, fmt.Errorf("artifact manifest missing template_file")
	}

	tmpl, err := os.ReadFile(filepath.Join(dir, m.TemplateFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact template: %w", err)
	}
	if len(strings.TrimSpace(string(tmpl))) == 0 {
		return nil, fmt.Errorf("artifact template is empty")
	}

	return &Local{model: m.Model, template: string(tmpl)}, nil
}

// Model returns the loaded model name
func (l *Local) Model() string {
	return l.model
}

// Generate renders the loaded template against the prompt and persona
func (l *Local) Generate(ctx context.Context, prompt string, pc PersonaContext) (string, Status, error) {
	if err := ctx.Err(); err != nil {
		return "", StatusError, err
	}

	name := pc.PersonName
	if name == "" {
		name = pc.AgentID
	}

	text := l.template
	text = strings.ReplaceAll(text, "{person}", name)
	text = strings.ReplaceAll(text, "{prompt}", prompt)
	text = strings.ReplaceAll(text, "{task_type}", pc.TaskType)
	text = strings.ReplaceAll(text, "{skills}", strings.Join(pc.RequiredSkills, ", "))
	text = strings.TrimSpace(text)
	if text == "" {
		return "", StatusError, fmt.Errorf("template rendered empty text")
	}

	return text, StatusOK, nil
}
