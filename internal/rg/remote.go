// internal/rg/remote.go
package rg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// AssistantPrefix on a model id selects the thread-based protocol instead
// of a blocking completion call
const AssistantPrefix = "asst:"

// defaultBaseURLs per provider; overridable for tests and proxies
var defaultBaseURLs = map[string]string{
	"openai":    "https://api.openai.com/v1",
	"anthropic": "https://api.anthropic.com/v1",
}

// Remote calls a hosted inference API. Transient failures are retried with
// exponential backoff up to MaxAttempts; every call observes the context
// deadline supplied by the caller.
type Remote struct {
	Provider     string
	ModelID      string
	BaseURL      string
	APIKey       string
	MaxAttempts  int
	PollInterval time.Duration
	Client       *http.Client
}

// NewRemote builds a remote generator for a provider/model pair
func NewRemote(provider, modelID, apiKey string, maxAttempts int) *Remote {
	base := defaultBaseURLs[strings.ToLower(provider)]
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Remote{
		Provider:     provider,
		ModelID:      modelID,
		BaseURL:      base,
		APIKey:       apiKey,
		MaxAttempts:  maxAttempts,
		PollInterval: 500 * time.Millisecond,
		Client:       &http.Client{},
	}
}

// Generate produces text for the prompt, selecting the blocking completion
// protocol or the assistant-thread protocol from the model id
func (r *Remote) Generate(ctx context.Context, prompt string, pc PersonaContext) (string, Status, error) {
	if r.BaseURL == "" {
		return "", StatusError, fmt.Errorf("no base URL for provider %q", r.Provider)
	}
	if r.APIKey == "" {
		return "", StatusError, fmt.Errorf("no credential for provider %q", r.Provider)
	}

	var (
		text string
		err  error
	)
	backoff := 250 * time.Millisecond
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		if strings.HasPrefix(r.ModelID, AssistantPrefix) {
			text, err = r.runThread(ctx, prompt, pc)
		} else {
			text, err = r.complete(ctx, prompt, pc)
		}
		if err == nil {
			if text == "" {
				err = fmt.Errorf("provider returned empty text")
			} else {
				return text, StatusOK, nil
			}
		}
		if ctx.Err() != nil {
			return "", StatusError, fmt.Errorf("generation cancelled: %w", ctx.Err())
		}
		if attempt < r.MaxAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", StatusError, fmt.Errorf("generation cancelled: %w", ctx.Err())
			}
			backoff *= 2
		}
	}
	return "", StatusError, fmt.Errorf("remote generation failed after %d attempts: %w", r.MaxAttempts, err)
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// complete performs a single blocking completion call
func (r *Remote) complete(ctx context.Context, prompt string, pc PersonaContext) (string, error) {
	body := completionRequest{
		Model: r.ModelID,
		Messages: []chatMessage{
			{Role: "system", Content: personaSystemPrompt(pc)},
			{Role: "user", Content: prompt},
		},
	}

	var resp completionResponse
	if err := r.postJSON(ctx, "/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("provider error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

type threadState struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// runThread drives the assistant-style protocol: create a thread, post the
// message, poll until a terminal state or the context deadline
func (r *Remote) runThread(ctx context.Context, prompt string, pc PersonaContext) (string, error) {
	assistantID := strings.TrimPrefix(r.ModelID, AssistantPrefix)

	var thread threadState
	if err := r.postJSON(ctx, "/threads", map[string]string{"assistant_id": assistantID}, &thread); err != nil {
		return "", fmt.Errorf("failed to create thread: %w", err)
	}
	if thread.ID == "" {
		return "", fmt.Errorf("thread create returned no id")
	}

	msg := map[string]string{"role": "user", "content": prompt, "system": personaSystemPrompt(pc)}
	if err := r.postJSON(ctx, "/threads/"+thread.ID+"/messages", msg, nil); err != nil {
		return "", fmt.Errorf("failed to post message: %w", err)
	}

	for {
		var state threadState
		if err := r.getJSON(ctx, "/threads/"+thread.ID, &state); err != nil {
			return "", fmt.Errorf("failed to poll thread: %w", err)
		}
		switch state.Status {
		case "completed":
			return strings.TrimSpace(state.Output), nil
		case "failed", "cancelled", "expired":
			return "", fmt.Errorf("thread ended %s: %s", state.Status, state.Error)
		}

		select {
		case <-time.After(r.PollInterval):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (r *Remote) postJSON(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return r.do(req, out)
}

func (r *Remote) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return r.do(req, out)
}

func (r *Remote) do(req *http.Request, out interface{}) error {
	if strings.ToLower(r.Provider) == "anthropic" {
		req.Header.Set("x-api-key", r.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	} else {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s returned status %d: %s", req.URL.Path, resp.StatusCode, truncate(string(raw), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func personaSystemPrompt(pc PersonaContext) string {
	name := pc.PersonName
	if name == "" {
		name = pc.AgentID
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a member of a digital-twin workplace.", name)
	if pc.CommunicationStyle != "" {
		fmt.Fprintf(&b, " Communication style: %s.", pc.CommunicationStyle)
	}
	if pc.DecisionStyle != "" {
		fmt.Fprintf(&b, " Decision style: %s.", pc.DecisionStyle)
	}
	b.WriteString(" Reply in one or two sentences.")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
