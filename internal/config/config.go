// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"time"
)

// Environment keys recognized at startup
const (
	EnvWeeklyHourBudget         = "AGENT_WEEKLY_HOUR_BUDGET"
	EnvNegotiationMaxRounds     = "NEGOTIATION_MAX_ROUNDS"
	EnvPhase1PerResponseTimeout = "PHASE1_PER_RESPONSE_TIMEOUT_SECS"
	EnvPhase1TotalTimeout       = "PHASE1_TOTAL_TIMEOUT_SECS"
	EnvPhase2RoundTimeout       = "PHASE2_ROUND_TIMEOUT_SECS"
	EnvRGCallTimeout            = "RG_CALL_TIMEOUT_SECS"
	EnvRGRemoteMaxAttempts      = "RG_REMOTE_MAX_ATTEMPTS"
)

// Config holds runtime tunables for the distribution core
type Config struct {
	WeeklyHourBudget         float64       `json:"weekly_hour_budget"`
	NegotiationMaxRounds     int           `json:"negotiation_max_rounds"`
	Phase1PerResponseTimeout time.Duration `json:"phase1_per_response_timeout"`
	Phase1TotalTimeout       time.Duration `json:"phase1_total_timeout"`
	Phase2RoundTimeout       time.Duration `json:"phase2_round_timeout"`
	RGCallTimeout            time.Duration `json:"rg_call_timeout"`
	RGRemoteMaxAttempts      int           `json:"rg_remote_max_attempts"`
}

// Default returns the documented defaults
func Default() Config {
	return Config{
		WeeklyHourBudget:         40,
		NegotiationMaxRounds:     3,
		Phase1PerResponseTimeout: 10 * time.Second,
		Phase1TotalTimeout:       20 * time.Second,
		Phase2RoundTimeout:       15 * time.Second,
		RGCallTimeout:            30 * time.Second,
		RGRemoteMaxAttempts:      3,
	}
}

// FromEnv builds a Config from the process environment, falling back to
// defaults for unset or unparseable values
func FromEnv() Config {
	cfg := Default()
	cfg.WeeklyHourBudget = envFloat(EnvWeeklyHourBudget, cfg.WeeklyHourBudget)
	cfg.NegotiationMaxRounds = envInt(EnvNegotiationMaxRounds, cfg.NegotiationMaxRounds)
	cfg.Phase1PerResponseTimeout = envSecs(EnvPhase1PerResponseTimeout, cfg.Phase1PerResponseTimeout)
	cfg.Phase1TotalTimeout = envSecs(EnvPhase1TotalTimeout, cfg.Phase1TotalTimeout)
	cfg.Phase2RoundTimeout = envSecs(EnvPhase2RoundTimeout, cfg.Phase2RoundTimeout)
	cfg.RGCallTimeout = envSecs(EnvRGCallTimeout, cfg.RGCallTimeout)
	cfg.RGRemoteMaxAttempts = envInt(EnvRGRemoteMaxAttempts, cfg.RGRemoteMaxAttempts)
	return cfg
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envSecs(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
