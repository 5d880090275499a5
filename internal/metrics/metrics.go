package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Collectors are created eagerly so packages can record before (or without)
// registration; Register exposes them on the default registry.
var (
	VerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providertrust_verifications_total",
			Help: "Verification submissions, by result.",
		},
		[]string{"result"},
	)

	VotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providertrust_votes_total",
			Help: "Votes on verifications, by direction and result.",
		},
		[]string{"direction", "result"},
	)

	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providertrust_acceptance_status_transitions_total",
			Help: "Acceptance status changes, by new status.",
		},
		[]string{"status"},
	)

	RateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providertrust_rate_limit_rejections_total",
			Help: "Requests denied by the rate limiter, by endpoint class.",
		},
		[]string{"class"},
	)

	CaptchaOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providertrust_captcha_outcomes_total",
			Help: "Bot-likelihood check outcomes.",
		},
		[]string{"outcome"},
	)

	HoneypotTriggers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "providertrust_honeypot_triggers_total",
			Help: "Requests caught by the hidden-field trap.",
		},
	)

	DecayRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "providertrust_decay_run_duration_seconds",
			Help:    "Duration of confidence decay runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	DecayRowsUpdated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "providertrust_decay_rows_updated_total",
			Help: "Aggregates rewritten by the decay job.",
		},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providertrust_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by endpoint and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "providertrust_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)
)

// Register registers all collectors, plus pool gauges when pool is non-nil.
// Call once at startup.
func Register(reg prometheus.Registerer, pool *pgxpool.Pool) {
	if pool != nil {
		reg.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "providertrust_db_connection_pool_active",
					Help: "Number of active database connections.",
				},
				func() float64 { return float64(pool.Stat().AcquiredConns()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "providertrust_db_connection_pool_idle",
					Help: "Number of idle database connections.",
				},
				func() float64 { return float64(pool.Stat().IdleConns()) },
			),
		)
	}

	reg.MustRegister(
		VerificationsTotal,
		VotesTotal,
		StatusTransitions,
		RateLimitRejections,
		CaptchaOutcomes,
		HoneypotTriggers,
		DecayRunDuration,
		DecayRowsUpdated,
		RequestDuration,
		RequestsInFlight,
	)
}

// Middleware records request duration and in-flight count.
func Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}

		// Copy before c.Next(): fiber strings are backed by reusable buffers.
		path := string([]byte(c.Path()))
		method := string([]byte(c.Method()))
		endpoint := sanitizeEndpoint(path)

		RequestsInFlight.Inc()
		start := time.Now()

		if err := c.Next(); err != nil {
			// Render first so the recorded status is the one sent.
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		RequestDuration.WithLabelValues(endpoint, method, strconv.Itoa(c.Response().StatusCode())).
			Observe(time.Since(start).Seconds())
		RequestsInFlight.Dec()

		return nil
	}
}

// sanitizeEndpoint normalizes paths to avoid cardinality explosion.
func sanitizeEndpoint(path string) string {
	const prefix = "/api/v1/verify/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.Split(strings.TrimPrefix(path, prefix), "/")
	switch {
	case len(rest) == 1 && (rest[0] == "recent" || rest[0] == "stats"):
		return path
	case len(rest) == 2 && rest[1] == "vote":
		return prefix + ":verificationId/vote"
	case len(rest) == 2:
		return prefix + ":npi/:planId"
	default:
		return prefix + ":other"
	}
}

// Handler serves the Prometheus /metrics endpoint via Fiber.
func Handler() fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c fiber.Ctx) error {
		httpHandler(c.RequestCtx())
		return nil
	}
}
