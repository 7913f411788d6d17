package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"memoir/internal/domain"
	domainllm "memoir/internal/domain/services/llm"
)

// RetryPolicy configures retries and throttling of generation calls
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RatePerSecond   float64 // <= 0 disables throttling
	Burst           int
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		RatePerSecond:   2,
		Burst:           4,
	}
}

// resilientGenerator retries transient failures and throttles calls
type resilientGenerator struct {
	next    domainllm.TextGenerator
	policy  RetryPolicy
	limiter *rate.Limiter
	logger  *slog.Logger
}

// WithRetries wraps a generator with retry and rate limiting
func WithRetries(next domainllm.TextGenerator, policy RetryPolicy, logger *slog.Logger) domainllm.TextGenerator {
	limit := rate.Inf
	if policy.RatePerSecond > 0 {
		limit = rate.Limit(policy.RatePerSecond)
	}
	burst := policy.Burst
	if burst < 1 {
		burst = 1
	}
	if policy.MaxTries == 0 {
		policy.MaxTries = 1
	}

	return &resilientGenerator{
		next:    next,
		policy:  policy,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (g *resilientGenerator) Name() string {
	return g.next.Name()
}

func (g *resilientGenerator) Generate(ctx context.Context, req *domainllm.GenerationRequest) (string, error) {
	attempt := 0
	operation := func() (string, error) {
		attempt++
		if err := g.limiter.Wait(ctx); err != nil {
			return "", backoff.Permanent(err)
		}

		text, err := g.next.Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		if !domain.IsTransient(err) {
			return "", backoff.Permanent(err)
		}

		g.logger.Warn("transient generation failure",
			"backend", g.next.Name(),
			"task", req.Task,
			"attempt", attempt,
			"error", err,
		)
		return "", err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.policy.InitialInterval
	policy.MaxInterval = g.policy.MaxInterval

	text, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(g.policy.MaxTries),
	)
	if err != nil {
		return "", classifyError(g.next.Name(), err)
	}
	return text, nil
}
