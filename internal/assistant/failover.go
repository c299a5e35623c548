package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	apperrors "github.com/ricesearch/support-context/internal/pkg/errors"
	"github.com/ricesearch/support-context/internal/pkg/logger"
)

// Route is a provider and the models to try on it, in order.
type Route struct {
	Provider Provider
	Models   []string
}

// Completion is generated text and where it came from.
type Completion struct {
	Text     string
	Provider string
	Model    string
}

// Failover tries each provider/model in turn. A pair that failed
// threshold times within the failure TTL is skipped until its count expires.
type Failover struct {
	routes    []Route
	failures  *gocache.Cache
	threshold int
	ttl       time.Duration
	log       *logger.Logger
}

// NewFailover creates a failover generator.
func NewFailover(routes []Route, threshold int, ttl time.Duration, log *logger.Logger) *Failover {
	if threshold <= 0 {
		threshold = 3
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Failover{
		routes:    routes,
		failures:  gocache.New(ttl, 2*ttl),
		threshold: threshold,
		ttl:       ttl,
		log:       log.WithComponent("failover"),
	}
}

func failureKey(provider, model string) string {
	return provider + "/" + model
}

// Failures returns the current failure count of a provider/model pair.
func (f *Failover) Failures(provider, model string) int {
	v, ok := f.failures.Get(failureKey(provider, model))
	if !ok {
		return 0
	}
	return v.(int)
}

// recordFailure seeds the counter with Add so concurrent first failures
// all land on the same item. Add returns an error when the key exists.
func (f *Failover) recordFailure(key string) {
	_ = f.failures.Add(key, 0, f.ttl)
	if _, err := f.failures.IncrementInt(key, 1); err != nil {
		// Expired between Add and IncrementInt.
		f.failures.Set(key, 1, f.ttl)
	}
}

// Generate returns the first successful completion.
func (f *Failover) Generate(ctx context.Context, prompt Prompt) (*Completion, error) {
	var errs []error
	log := f.log.WithContext(ctx)

	for _, route := range f.routes {
		name := route.Provider.Name()
		for _, model := range route.Models {
			key := failureKey(name, model)
			if f.Failures(name, model) >= f.threshold {
				log.Debug("Skipping failing model", "provider", name, "model", model)
				continue
			}

			text, err := route.Provider.Generate(ctx, model, prompt)
			if err == nil {
				f.failures.Delete(key)
				return &Completion{Text: text, Provider: name, Model: model}, nil
			}
			if ctx.Err() != nil {
				return nil, apperrors.Wrap(apperrors.CodeTimeout, "completion canceled", ctx.Err())
			}

			f.recordFailure(key)
			log.WithError(err).Warn("Completion failed", "provider", name, "model", model)
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	if len(errs) == 0 {
		return nil, apperrors.New(apperrors.CodeProvider, "no completion provider available")
	}
	return nil, apperrors.ProviderError("all completion providers failed", errors.Join(errs...))
}
