// Package ratelimit implements the sliding-window request limiter that guards
// every write to the verification subsystem.
//
// A request is admitted when fewer than Limit requests from the same key were
// admitted within the trailing Window. A timestamp leaves the window once its
// age reaches Window. Both stores apply exactly this rule.
package ratelimit

import (
	"context"
	"time"
)

// Class is an endpoint class with its own budget.
type Class string

const (
	ClassVerify          Class = "verify"
	ClassVote            Class = "vote"
	ClassSearch          Class = "search"
	ClassDefault         Class = "default"
	ClassCaptchaFallback Class = "captcha-fallback"
)

// Rule is a request budget: Limit requests per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of an admission attempt.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
	// Degraded is set when the backing store failed and the request was
	// admitted without being counted.
	Degraded bool
}

// Store holds sliding-window state. Admit counts the requests for key within
// rule.Window ending at now and, if the count is below rule.Limit, records now.
// The check and the record happen atomically.
type Store interface {
	Admit(ctx context.Context, key string, rule Rule, now time.Time) (Decision, error)
	Close() error
}

// Key builds the store key for a client identity and endpoint class.
func Key(class Class, clientKey string) string {
	return "rl:" + string(class) + ":" + clientKey
}

// decide applies the admission rule to an ordered (oldest first) set of
// in-window timestamps. It reports whether now should be recorded.
func decide(inWindow int, oldest time.Time, rule Rule, now time.Time) Decision {
	if inWindow < rule.Limit {
		d := Decision{
			Allowed:   true,
			Limit:     rule.Limit,
			Remaining: rule.Limit - inWindow - 1,
			ResetAt:   now.Add(rule.Window),
		}
		if inWindow > 0 {
			d.ResetAt = oldest.Add(rule.Window)
		}
		return d
	}
	resetAt := oldest.Add(rule.Window)
	return Decision{
		Allowed:    false,
		Limit:      rule.Limit,
		Remaining:  0,
		RetryAfter: resetAt.Sub(now),
		ResetAt:    resetAt,
	}
}
