package planclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/DealerDesk/internal/pkg/entitlements"
	"github.com/ManuelReschke/DealerDesk/internal/pkg/env"
)

const planPath = "/api/account/plan"

// maxBodyBytes caps upstream plan responses.
const maxBodyBytes = 1 << 20

var (
	ErrUpstream       = errors.New("plan upstream unavailable")
	ErrUnauthorized   = errors.New("plan upstream rejected credentials")
	ErrInvalidPayload = errors.New("plan upstream returned an invalid payload")
)

// Client reads account plans from the marketplace REST API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Now        func() time.Time
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		Now: time.Now,
	}
}

func NewClientFromEnv() *Client {
	return NewClient(
		env.GetEnv("PLAN_API_BASE_URL", ""),
		env.GetDuration("PLAN_API_TIMEOUT", 10*time.Second),
	)
}

// FetchPlan loads and validates the plan for the holder of token.
func (c *Client) FetchPlan(ctx context.Context, token string) (*PlanResponse, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("%w: PLAN_API_BASE_URL not configured", ErrUpstream)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+planPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build plan request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	if err := validateShape(body); err != nil {
		return nil, err
	}
	var out PlanResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &out, nil
}

// Load implements entitlements.Source.
func (c *Client) Load(ctx context.Context, p entitlements.Principal) (*entitlements.Snapshot, error) {
	plan, err := c.FetchPlan(ctx, p.Token)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return plan.Snapshot(p.CompanyID, now()), nil
}
