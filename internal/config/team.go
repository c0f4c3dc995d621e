// internal/config/team.go
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Generator kinds selectable per agent
const (
	GeneratorLocal    = "local"
	GeneratorRemote   = "remote"
	GeneratorFallback = "fallback"
)

// GeneratorConfig selects and parameterizes an agent's response generator.
// The variant is chosen here explicitly, never by probing what happens to
// be installed.
type GeneratorConfig struct {
	Kind        string `yaml:"kind" json:"kind"`
	Provider    string `yaml:"provider,omitempty" json:"provider,omitempty"`
	ModelID     string `yaml:"model_id,omitempty" json:"model_id,omitempty"`
	ArtifactDir string `yaml:"artifact_dir,omitempty" json:"artifact_dir,omitempty"`
}

// AgentConfig declares one roster member in teams.yaml
type AgentConfig struct {
	ID                 string             `yaml:"id,omitempty" json:"id"`
	PersonName         string             `yaml:"person_name" json:"person_name"`
	Role               string             `yaml:"role" json:"role"` // manager or worker
	TechnicalSkills    map[string]float64 `yaml:"technical_skills" json:"technical_skills"`
	PreferredTaskTypes []string           `yaml:"preferred_task_types" json:"preferred_task_types"`
	CommunicationStyle string             `yaml:"communication_style" json:"communication_style"`
	DecisionStyle      string             `yaml:"decision_style" json:"decision_style"`
	Generator          GeneratorConfig    `yaml:"generator" json:"generator"`
}

// TeamConfig is the full roster loaded from teams.yaml
type TeamConfig struct {
	Agents []AgentConfig `yaml:"agents"`
}

// LoadTeamConfig loads the roster from YAML and fills in derived agent ids
func LoadTeamConfig(path string) (*TeamConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg TeamConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize derives missing agent ids from person names and validates roles.
// Derived ids are deterministic: lowercased name with spaces collapsed,
// numbered on collision the way spawned agents are numbered.
func (c *TeamConfig) normalize() error {
	seen := make(map[string]int)
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.PersonName == "" && a.ID == "" {
			return fmt.Errorf("agent %d: person_name or id required", i)
		}
		switch a.Role {
		case "manager", "worker":
		case "":
			a.Role = "worker"
		default:
			return fmt.Errorf("agent %q: unknown role %q", a.PersonName, a.Role)
		}
		if a.ID == "" {
			base := strings.ToLower(strings.Join(strings.Fields(a.PersonName), "-"))
			seen[base]++
			if seen[base] > 1 {
				a.ID = fmt.Sprintf("%s-%d", base, seen[base])
			} else {
				a.ID = base
			}
		}
		if a.Generator.Kind == "" {
			a.Generator.Kind = GeneratorFallback
		}
	}
	return nil
}

// Manager returns the roster's manager entry, if any
func (c *TeamConfig) Manager() *AgentConfig {
	for i := range c.Agents {
		if c.Agents[i].Role == "manager" {
			return &c.Agents[i]
		}
	}
	return nil
}

// Workers returns the roster's worker entries
func (c *TeamConfig) Workers() []AgentConfig {
	var out []AgentConfig
	for _, a := range c.Agents {
		if a.Role == "worker" {
			out = append(out, a)
		}
	}
	return out
}
