// Package identity talks to the external identity-assertion service: token
// verification and linked-account lookup for marketplace users.
package identity

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"

	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/config"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/fault"
	"github.com/HydrogenUkraine/H2U-Marketplace-api/internal/model"
)

// maxAttempts bounds the retry loop for transient failures.
const maxAttempts = 3

// Client is an authenticated HTTP client for the identity service.
type Client struct {
	baseURL   string
	appID     string
	appSecret string
	http      *http.Client
	logger    *slog.Logger
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.IdentityConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		http:      &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// VerifyToken validates an identity assertion and returns the subject id it
// asserts.
func (c *Client) VerifyToken(ctx context.Context, token string) (string, error) {
	var out struct {
		SubjectID string `json:"subject_id"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/token/verify", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}, &out)
	if err != nil {
		return "", err
	}
	if out.SubjectID == "" {
		return "", fault.New(fault.Unauthorized, "token verification returned no subject")
	}
	return out.SubjectID, nil
}

// AccountsByID returns the accounts linked to an identity subject.
func (c *Client) AccountsByID(ctx context.Context, subjectID string) ([]model.LinkedAccount, error) {
	var out struct {
		Accounts []struct {
			Type    string `json:"type"`
			Name    string `json:"name"`
			Email   string `json:"email"`
			Address string `json:"address"`
		} `json:"accounts"`
	}
	path := "/v1/subjects/" + subjectID + "/accounts"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	accounts := make([]model.LinkedAccount, 0, len(out.Accounts))
	for _, a := range out.Accounts {
		accounts = append(accounts, model.LinkedAccount{
			Type:    a.Type,
			Name:    a.Name,
			Email:   a.Email,
			Address: a.Address,
		})
	}
	return accounts, nil
}

// do performs one authenticated request, retrying transient failures with
// exponential backoff. Non-2xx statuses below 500 are terminal.
func (c *Client) do(ctx context.Context, method, path string, mutate func(*http.Request), out any) error {
	backoffCfg := backoff.NewExponentialBackOff()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			sleep := backoffCfg.NextBackOff()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}
		}

		retryable, err := c.doOnce(ctx, method, path, mutate, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
		c.logger.Warn("identity request failed, retrying",
			"method", method,
			"path", path,
			"attempt", attempt,
			"err", err,
		)
	}
	return fmt.Errorf("identity request failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, mutate func(*http.Request), out any) (retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-App-Id", c.appID)
	req.Header.Set("X-App-Secret", c.appSecret)
	if mutate != nil {
		mutate(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return true, fmt.Errorf("identity service returned %s", resp.Status)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return false, fault.New(fault.Unauthorized, "identity service rejected credentials (%s)", resp.Status)
	case resp.StatusCode == http.StatusNotFound:
		return false, fault.New(fault.NotFound, "identity resource %s", path)
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("identity service returned %s", resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode identity response: %w", err)
	}
	return false, nil
}
