package assistant

import (
	"fmt"
	"time"

	"github.com/ricesearch/support-context/internal/config"
	"github.com/ricesearch/support-context/internal/pkg/logger"
	"github.com/ricesearch/support-context/internal/pkg/security"
)

// NewFromConfig wires the failover generator and session store from
// configuration. It returns a nil generator when no provider is configured.
func NewFromConfig(cfg config.AssistantConfig, log *logger.Logger) (*Failover, *SessionStore, error) {
	if log == nil {
		log = logger.Discard()
	}
	sessions := NewSessionStore(time.Duration(cfg.SessionTTLSeconds) * time.Second)
	if len(cfg.Providers) == 0 {
		return nil, sessions, nil
	}

	routes := make([]Route, 0, len(cfg.Providers))
	for i, p := range cfg.Providers {
		if len(p.Models) == 0 {
			return nil, nil, fmt.Errorf("provider %d (%s): at least one model is required", i, p.Name)
		}
		routes = append(routes, Route{
			Provider: NewOpenAIProvider(OpenAIConfig{
				Name:    p.Name,
				BaseURL: p.BaseURL,
				APIKey:  p.APIKey,
				Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
			}),
			Models: p.Models,
		})
		log.Info("Completion provider configured",
			"name", p.Name,
			"base_url", p.BaseURL,
			"api_key", security.MaskSecret(p.APIKey),
			"models", p.Models,
		)
	}

	gen := NewFailover(routes, cfg.FailureThreshold, time.Duration(cfg.FailureTTLSeconds)*time.Second, log)
	return gen, sessions, nil
}
