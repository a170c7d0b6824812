// Package agent talks to the agent service that backs the workflow
// capabilities: RFP discovery, technical analysis and pricing analysis run as
// remote model-backed tools behind a JSON API.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rfpflow/rfpflow/internal/domain"
	"github.com/rfpflow/rfpflow/internal/workflow"
)

// Client implements workflow.Discovery, workflow.TechnicalAnalyzer and
// workflow.PricingAnalyzer against the agent service's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the per-call timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.client.Timeout = d }
}

// NewClient creates a client for the agent service at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type discoverRequest struct {
	Criteria string `json:"criteria"`
}

type discoverResponse struct {
	RFPs []domain.RFPSummary `json:"rfps"`
}

// FindCandidateRFPs asks the agent service to scan its sources for RFPs
// matching the criteria.
func (c *Client) FindCandidateRFPs(ctx context.Context, criteria string) ([]domain.RFPSummary, error) {
	var out discoverResponse
	if err := c.post(ctx, "discovery", "/tools/discover_rfps", discoverRequest{Criteria: criteria}, &out); err != nil {
		return nil, err
	}
	return out.RFPs, nil
}

type technicalRequest struct {
	RFP domain.RFPSummary `json:"rfp"`
}

type technicalResponse struct {
	Analysis domain.TechnicalAnalysis `json:"analysis"`
}

// AnalyzeTechnical runs the technical assessment of one RFP.
func (c *Client) AnalyzeTechnical(ctx context.Context, rfp domain.RFPSummary) (*domain.TechnicalAnalysis, error) {
	var out technicalResponse
	if err := c.post(ctx, "technical", "/tools/analyze_technical", technicalRequest{RFP: rfp}, &out); err != nil {
		return nil, err
	}
	return &out.Analysis, nil
}

type pricingRequest struct {
	RFP       domain.RFPSummary         `json:"rfp"`
	Technical *domain.TechnicalAnalysis `json:"technical"`
}

type pricingResponse struct {
	Analysis domain.PricingAnalysis `json:"analysis"`
}

// AnalyzePricing prices one RFP given its technical assessment.
func (c *Client) AnalyzePricing(ctx context.Context, rfp domain.RFPSummary, tech *domain.TechnicalAnalysis) (*domain.PricingAnalysis, error) {
	var out pricingResponse
	if err := c.post(ctx, "pricing", "/tools/analyze_pricing", pricingRequest{RFP: rfp, Technical: tech}, &out); err != nil {
		return nil, err
	}
	return &out.Analysis, nil
}

type apiError struct {
	Message string `json:"message"`
}

// post sends one JSON request and decodes the JSON response. Network faults,
// timeouts and 5xx responses come back transient; 4xx responses are fatal.
func (c *Client) post(ctx context.Context, capability, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("agent.Client.post: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("agent.Client.post: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &workflow.CapabilityError{Capability: capability, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &workflow.CapabilityError{Capability: capability, Transient: true, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &workflow.CapabilityError{
			Capability: capability,
			Transient:  resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests,
			Err:        fmt.Errorf("agent service returned %d: %s", resp.StatusCode, msg),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &workflow.CapabilityError{
			Capability: capability,
			Err:        fmt.Errorf("unmarshal response: %w", err),
		}
	}
	return nil
}

// HealthCheck probes the agent service's health endpoint. Used by the
// readiness handler.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("agent.Client.HealthCheck: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("agent.Client.HealthCheck: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent.Client.HealthCheck: status %d", resp.StatusCode)
	}
	return nil
}

var _ workflow.Discovery = (*Client)(nil)
var _ workflow.TechnicalAnalyzer = (*Client)(nil)
var _ workflow.PricingAnalyzer = (*Client)(nil)
