package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSanitizeEndpoint(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/verify", "/api/v1/verify"},
		{"/api/v1/verify/recent", "/api/v1/verify/recent"},
		{"/api/v1/verify/stats", "/api/v1/verify/stats"},
		{"/api/v1/verify/3f2a/vote", "/api/v1/verify/:verificationId/vote"},
		{"/api/v1/verify/1234567890/BCBS-PPO", "/api/v1/verify/:npi/:planId"},
		{"/api/v1/verify/a/b/c", "/api/v1/verify/:other"},
		{"/health/live", "/health/live"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := sanitizeEndpoint(tt.path); got != tt.want {
				t.Errorf("sanitizeEndpoint(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg, nil)

	VerificationsTotal.WithLabelValues("recorded").Inc()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "providertrust_verifications_total" {
			found = true
		}
	}
	if !found {
		t.Error("verifications counter not registered")
	}
}
