// internal/secrets/store.go
package secrets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store keeps provider API credentials in a JSON file that must never be
// committed to source control. Environment variables of the form
// <PROVIDER>_API_KEY take precedence over file entries at startup; an
// explicit AddKey overrides either.
type Store struct {
	mu     sync.RWMutex
	path   string
	keys   map[string]*entry
	probes map[string]string
	client *http.Client
}

type entry struct {
	Key     string    `json:"key"`
	Label   string    `json:"label,omitempty"`
	AddedAt time.Time `json:"added_at"`
	FromEnv bool      `json:"-"`
}

// KeyInfo is the masked listing view of a stored credential
type KeyInfo struct {
	Provider string    `json:"provider"`
	Label    string    `json:"label,omitempty"`
	Masked   string    `json:"masked"`
	FromEnv  bool      `json:"from_env"`
	AddedAt  time.Time `json:"added_at"`
}

// defaultProbeURLs are the provider-specific validation endpoints
var defaultProbeURLs = map[string]string{
	"openai":    "https://api.openai.com/v1/models",
	"anthropic": "https://api.anthropic.com/v1/models",
}

const envKeySuffix = "_API_KEY"

// NewStore loads the credential file (if present) and overlays environment
// keys on top. A missing file is not an error.
func NewStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		keys:   make(map[string]*entry),
		probes: make(map[string]string, len(defaultProbeURLs)),
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for provider, url := range defaultProbeURLs {
		s.probes[provider] = url
	}

	data, err := os.ReadFile(path)
	if err == nil {
		var stored map[string]*entry
		if err := json.Unmarshal(data, &stored); err != nil {
			return nil, fmt.Errorf("failed to parse key store %s: %w", path, err)
		}
		s.keys = stored
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key store %s: %w", path, err)
	}

	// Environment keys win at startup.
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || value == "" || !strings.HasSuffix(name, envKeySuffix) {
			continue
		}
		provider := strings.ToLower(strings.TrimSuffix(name, envKeySuffix))
		if provider == "" {
			continue
		}
		s.keys[provider] = &entry{Key: value, Label: "environment", AddedAt: time.Now(), FromEnv: true}
	}

	return s, nil
}

// AddKey stores a credential for a provider and persists the file store.
// An explicit add overrides an environment-sourced key.
func (s *Store) AddKey(provider, key, label string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return fmt.Errorf("provider is required")
	}
	if key == "" {
		return fmt.Errorf("key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[provider] = &entry{Key: key, Label: label, AddedAt: time.Now()}
	return s.saveLocked()
}

// GetKey returns the credential for a provider
func (s *Store) GetKey(provider string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.keys[strings.ToLower(provider)]
	if !ok {
		return "", fmt.Errorf("no key stored for provider %q", provider)
	}
	return e.Key, nil
}

// ListKeys returns masked credentials, sorted by provider
func (s *Store) ListKeys() []KeyInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]KeyInfo, 0, len(s.keys))
	for provider, e := range s.keys {
		out = append(out, KeyInfo{
			Provider: provider,
			Label:    e.Label,
			Masked:   Mask(e.Key),
			FromEnv:  e.FromEnv,
			AddedAt:  e.AddedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// RemoveKey deletes a provider's credential and persists the file store
func (s *Store) RemoveKey(provider string) error {
	provider = strings.ToLower(provider)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[provider]; !ok {
		return fmt.Errorf("no key stored for provider %q", provider)
	}
	delete(s.keys, provider)
	return s.saveLocked()
}

// ValidateKey probes the provider's API with the stored credential
func (s *Store) ValidateKey(provider string) error {
	key, err := s.GetKey(provider)
	if err != nil {
		return err
	}

	s.mu.RLock()
	url, ok := s.probes[strings.ToLower(provider)]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no validation probe for provider %q", provider)
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	authorize(req, provider, key)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe for %s failed: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("key for %s rejected (status %d)", provider, resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("provider %s unavailable (status %d)", provider, resp.StatusCode)
	}
	return nil
}

// SetProbeURL overrides this store's probe endpoint for a provider (used
// by tests)
func (s *Store) SetProbeURL(provider, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[strings.ToLower(provider)] = url
}

func authorize(req *http.Request, provider, key string) {
	if strings.ToLower(provider) == "anthropic" {
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", "2023-06-01")
		return
	}
	req.Header.Set("Authorization", "Bearer "+key)
}

// Mask renders a key as its first and last four characters. Keys too short
// to mask safely are fully hidden.
func Mask(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// saveLocked persists only non-environment entries; env keys live in the
// process environment, not the file.
func (s *Store) saveLocked() error {
	persist := make(map[string]*entry, len(s.keys))
	for p, e := range s.keys {
		if !e.FromEnv {
			persist[p] = e
		}
	}

	data, err := json.MarshalIndent(persist, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode key store: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create key store dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write key store: %w", err)
	}
	return nil
}
