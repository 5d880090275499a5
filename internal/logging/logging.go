package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a structured JSON zerolog logger writing to stdout.
// Level is parsed from the given string (e.g. "debug", "info", "warn", "error").
func New(level, service string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, service)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, level, service string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = true

	return zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// HashIPForLog produces a short, irreversible hash prefix of the IP address
// for log correlation without storing raw PII.
func HashIPForLog(ip string) string {
	h := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(h[:])[:12]
}
