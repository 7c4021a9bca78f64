package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MustafaBasol/crm-sub006/internal/config"
)

// Verifier checks a human-challenge token against an external verification
// endpoint. Invoked only when the attempt tracker is in the
// captcha_required state.
type Verifier interface {
	Verify(ctx context.Context, challengeToken, remoteIP string) (bool, error)
}

// HTTPVerifier verifies challenge tokens against a siteverify-style
// endpoint returning {"success": bool}.
type HTTPVerifier struct {
	cfg    config.CaptchaConfig
	client *http.Client
}

// NewHTTPVerifier creates a new HTTPVerifier
func NewHTTPVerifier(cfg config.CaptchaConfig) *HTTPVerifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &HTTPVerifier{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// Verify posts the challenge token to the verification endpoint
func (v *HTTPVerifier) Verify(ctx context.Context, challengeToken, remoteIP string) (bool, error) {
	if challengeToken == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.cfg.Secret)
	form.Set("response", challengeToken)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("failed to build captcha request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("captcha verification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("captcha verification returned status %d", resp.StatusCode)
	}

	var body struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode captcha response: %w", err)
	}
	return body.Success, nil
}

// Static is a fixed-result Verifier for tests and local development
type Static struct {
	Result bool
}

// Verify returns the configured result
func (s Static) Verify(context.Context, string, string) (bool, error) {
	return s.Result, nil
}
