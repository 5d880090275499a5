// Package captcha checks bot-likelihood tokens against a reCAPTCHA v3
// compatible scoring service.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrUnavailable is returned when the scoring service could not be asked or
// did not answer usefully. Callers apply their failure policy.
var ErrUnavailable = errors.New("captcha service unavailable")

// Assessment is the scoring service's verdict on a token.
type Assessment struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	Action     string   `json:"action"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Verifier scores a client-supplied token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (Assessment, error)
}

// HTTPVerifier posts tokens to a siteverify endpoint.
type HTTPVerifier struct {
	client  *fasthttp.Client
	url     string
	secret  string
	timeout time.Duration
}

func NewHTTPVerifier(url, secret string, timeout time.Duration) *HTTPVerifier {
	return &HTTPVerifier{
		client: &fasthttp.Client{
			Name:                "providertrust-captcha",
			MaxIdleConnDuration: 30 * time.Second,
		},
		url:     url,
		secret:  secret,
		timeout: timeout,
	}
}

func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) (Assessment, error) {
	timeout := v.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if rem := time.Until(deadline); rem < timeout {
			timeout = rem
		}
	}
	if timeout <= 0 {
		return Assessment{}, fmt.Errorf("%w: deadline exceeded", ErrUnavailable)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)
	defer fasthttp.ReleaseArgs(args)

	args.Set("secret", v.secret)
	args.Set("response", token)
	if remoteIP != "" {
		args.Set("remoteip", remoteIP)
	}

	req.SetRequestURI(v.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.SetBody(args.QueryString())

	if err := v.client.DoTimeout(req, resp, timeout); err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return Assessment{}, fmt.Errorf("%w: status %d", ErrUnavailable, code)
	}

	var a Assessment
	if err := json.Unmarshal(resp.Body(), &a); err != nil {
		return Assessment{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return a, nil
}
