// internal/rg/resolve.go
package rg

import (
	"context"
	"log"

	"github.com/TEAMTWIN/internal/config"
	"github.com/TEAMTWIN/internal/secrets"
)

// Resolve builds the generator an agent was configured with, applying the
// downgrade chain: a local artifact that fails to load becomes Fallback, a
// remote backend with no resolvable credential becomes Fallback, and a
// remote backend that errors at call time delegates to Fallback per call.
// The protocol therefore never sees a generator error.
func Resolve(agentID string, gc config.GeneratorConfig, keys *secrets.Store, cfg config.Config) Generator {
	switch gc.Kind {
	case config.GeneratorLocal:
		local, err := NewLocal(gc.ArtifactDir)
		if err != nil {
			log.Printf("[RG] agent %s: local artifact unavailable, using fallback: %v", agentID, err)
			return NewFallback()
		}
		return &guarded{primary: local, fallback: NewFallback()}

	case config.GeneratorRemote:
		if keys == nil {
			log.Printf("[RG] agent %s: no key store configured, using fallback", agentID)
			return NewFallback()
		}
		key, err := keys.GetKey(gc.Provider)
		if err != nil {
			log.Printf("[RG] agent %s: credential for %s unavailable, using fallback: %v", agentID, gc.Provider, err)
			return NewFallback()
		}
		remote := NewRemote(gc.Provider, gc.ModelID, key, cfg.RGRemoteMaxAttempts)
		return &guarded{primary: remote, fallback: NewFallback(), timeout: cfg}

	default:
		return NewFallback()
	}
}

// guarded wraps a primary generator with the per-call deadline and the
// fallback delegate used when the primary errors
type guarded struct {
	primary  Generator
	fallback Generator
	timeout  config.Config
}

func (g *guarded) Generate(ctx context.Context, prompt string, pc PersonaContext) (string, Status, error) {
	callCtx := ctx
	if g.timeout.RGCallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout.RGCallTimeout)
		defer cancel()
	}

	text, status, err := g.primary.Generate(callCtx, prompt, pc)
	if err == nil && status != StatusError && text != "" {
		return text, status, nil
	}
	if err != nil {
		log.Printf("[RG] agent %s generation degraded to fallback: %v", pc.AgentID, err)
	}
	return g.fallback.Generate(ctx, prompt, pc)
}
