// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.WeeklyHourBudget != 40 {
		t.Errorf("budget = %v, want 40", cfg.WeeklyHourBudget)
	}
	if cfg.NegotiationMaxRounds != 3 {
		t.Errorf("rounds = %d, want 3", cfg.NegotiationMaxRounds)
	}
	if cfg.Phase1PerResponseTimeout != 10*time.Second {
		t.Errorf("phase1 per-response = %v", cfg.Phase1PerResponseTimeout)
	}
	if cfg.RGCallTimeout != 30*time.Second {
		t.Errorf("rg timeout = %v", cfg.RGCallTimeout)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv(EnvWeeklyHourBudget, "20")
	t.Setenv(EnvNegotiationMaxRounds, "5")
	t.Setenv(EnvPhase2RoundTimeout, "2")
	t.Setenv(EnvRGRemoteMaxAttempts, "1")

	cfg := FromEnv()
	if cfg.WeeklyHourBudget != 20 {
		t.Errorf("budget = %v, want 20", cfg.WeeklyHourBudget)
	}
	if cfg.NegotiationMaxRounds != 5 {
		t.Errorf("rounds = %d, want 5", cfg.NegotiationMaxRounds)
	}
	if cfg.Phase2RoundTimeout != 2*time.Second {
		t.Errorf("round timeout = %v", cfg.Phase2RoundTimeout)
	}
	if cfg.RGRemoteMaxAttempts != 1 {
		t.Errorf("attempts = %d, want 1", cfg.RGRemoteMaxAttempts)
	}
}

func TestFromEnvIgnoresGarbage(t *testing.T) {
	t.Setenv(EnvWeeklyHourBudget, "not-a-number")
	t.Setenv(EnvNegotiationMaxRounds, "-2")

	cfg := FromEnv()
	if cfg.WeeklyHourBudget != 40 {
		t.Errorf("garbage budget should fall back to default, got %v", cfg.WeeklyHourBudget)
	}
	if cfg.NegotiationMaxRounds != 3 {
		t.Errorf("negative rounds should fall back to default, got %d", cfg.NegotiationMaxRounds)
	}
}

const teamYAML = `
agents:
  - person_name: Dana Flores
    role: manager
    generator:
      kind: fallback
  - person_name: Sam Ortiz
    role: worker
    technical_skills:
      technical: 0.9
      documentation: 0.8
    preferred_task_types: ["Technical content"]
    communication_style: direct
    decision_style: analytical
    generator:
      kind: remote
      provider: openai
      model_id: gpt-4o-mini
  - person_name: Sam Ortiz
    role: worker
`

func TestLoadTeamConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teams.yaml")
	if err := os.WriteFile(path, []byte(teamYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadTeamConfig(path)
	if err != nil {
		t.Fatalf("LoadTeamConfig: %v", err)
	}

	if len(cfg.Agents) != 3 {
		t.Fatalf("agents = %d, want 3", len(cfg.Agents))
	}
	if cfg.Agents[0].ID != "dana-flores" {
		t.Errorf("derived id = %q", cfg.Agents[0].ID)
	}
	if cfg.Agents[1].ID != "sam-ortiz" || cfg.Agents[2].ID != "sam-ortiz-2" {
		t.Errorf("collision numbering wrong: %q, %q", cfg.Agents[1].ID, cfg.Agents[2].ID)
	}
	if cfg.Agents[1].Generator.Kind != GeneratorRemote {
		t.Errorf("generator kind = %q", cfg.Agents[1].Generator.Kind)
	}
	if cfg.Agents[2].Generator.Kind != GeneratorFallback {
		t.Errorf("default generator kind = %q", cfg.Agents[2].Generator.Kind)
	}

	mgr := cfg.Manager()
	if mgr == nil || mgr.PersonName != "Dana Flores" {
		t.Error("manager lookup failed")
	}
	if len(cfg.Workers()) != 2 {
		t.Errorf("workers = %d, want 2", len(cfg.Workers()))
	}
}

func TestLoadTeamConfigRejectsUnknownRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teams.yaml")
	bad := "agents:\n  - person_name: X\n    role: wizard\n"
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTeamConfig(path); err == nil {
		t.Error("unknown role should be rejected")
	}
}
