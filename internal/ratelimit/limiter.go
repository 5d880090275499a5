package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/clock"
	"github.com/mathieu-neron/ProviderTrust/providertrust-go/internal/config"
)

// Limiter admits requests per client identity and endpoint class.
type Limiter struct {
	store    Store
	rules    map[Class]Rule
	clock    clock.Clock
	log      zerolog.Logger
	degraded atomic.Bool
}

// NewLimiter creates a Limiter. Classes without a rule use ClassDefault's rule.
func NewLimiter(store Store, rules map[Class]Rule, clk clock.Clock, log zerolog.Logger) *Limiter {
	return &Limiter{store: store, rules: rules, clock: clk, log: log}
}

// RulesFromConfig builds the per-class rules from configuration.
func RulesFromConfig(rl config.RateLimitConfig, captcha config.CaptchaConfig) map[Class]Rule {
	return map[Class]Rule{
		ClassVerify:          {Limit: rl.Verify, Window: rl.Window},
		ClassVote:            {Limit: rl.Vote, Window: rl.Window},
		ClassSearch:          {Limit: rl.Search, Window: rl.Window},
		ClassDefault:         {Limit: rl.Default, Window: rl.Window},
		ClassCaptchaFallback: {Limit: captcha.FallbackLimit, Window: captcha.FallbackWindow},
	}
}

// Rule returns the rule applied to class.
func (l *Limiter) Rule(class Class) Rule {
	if r, ok := l.rules[class]; ok {
		return r
	}
	return l.rules[ClassDefault]
}

// Admit decides whether clientKey may make a request of class. Store
// failures admit the request with Degraded set.
func (l *Limiter) Admit(ctx context.Context, clientKey string, class Class) Decision {
	rule := l.Rule(class)
	// Millisecond resolution keeps both stores on identical boundaries.
	now := l.clock.Now().Truncate(time.Millisecond)

	d, err := l.store.Admit(ctx, Key(class, clientKey), rule, now)
	if err != nil {
		if l.degraded.CompareAndSwap(false, true) {
			l.log.Warn().Err(err).Str("class", string(class)).
				Msg("rate limiter: store unavailable, failing open")
		}
		return Decision{
			Allowed:   true,
			Limit:     rule.Limit,
			Remaining: rule.Limit - 1,
			ResetAt:   now.Add(rule.Window),
			Degraded:  true,
		}
	}
	if l.degraded.CompareAndSwap(true, false) {
		l.log.Info().Msg("rate limiter: store recovered")
	}
	return d
}

// Close releases the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
