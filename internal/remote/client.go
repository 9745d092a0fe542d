package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "notisum/pkg/logx"
)

// Package remote speaks to the summarization/entitlement backend. All
// calls are blocking I/O and must only run off latency-sensitive paths.

var (
	// ErrEmptySummary: the service answered 2xx but produced no summary
	// text. Treated as a failure by the scheduler (rollback path).
	ErrEmptySummary = errors.New("remote: empty summary")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: unexpected status %d", e.Code)
}

type Config struct {
	BaseURL    string
	Token      string // bearer token (never logged)
	Timeout    time.Duration
	RatePerSec int
}

type Client struct {
	httpc   *http.Client
	base    string
	token   string
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	return &Client{
		httpc:   &http.Client{Timeout: timeout},
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// SummaryMessage is one message in a summarization request.
type SummaryMessage struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
	// CreateTime is ISO-8601 UTC.
	CreateTime string `json:"createTime"`
}

// NewSummaryMessage formats the wire timestamp the service expects.
func NewSummaryMessage(sender, message string, at time.Time) SummaryMessage {
	return SummaryMessage{Sender: sender, Message: message, CreateTime: at.UTC().Format(time.RFC3339)}
}

type summaryRequest struct {
	ConversationName string           `json:"conversationName"`
	Messages         []SummaryMessage `json:"messages"`
	MessageCount     int              `json:"messageCount"`
}

type summaryResponse struct {
	SummaryMessage       string `json:"summaryMessage"`
	Summary              string `json:"summary"`
	SummarySubject       string `json:"summarySubject"`
	SummaryDetailMessage string `json:"summaryDetailMessage"`
}

// SummaryResult is the decoded summarization answer.
type SummaryResult struct {
	Subject       string
	Message       string
	DetailMessage string
}

// Summarize calls POST /summary. An answer with no summary text counts as
// a failure (ErrEmptySummary), because the server has already charged a
// usage unit by then and the caller must roll it back.
func (c *Client) Summarize(ctx context.Context, conversationName string, msgs []SummaryMessage) (*SummaryResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body := summaryRequest{ConversationName: conversationName, Messages: msgs, MessageCount: len(msgs)}

	var resp summaryResponse
	if err := c.do(ctx, http.MethodPost, "/summary", body, &resp); err != nil {
		return nil, err
	}

	// Older server versions answer with "summary" instead of "summaryMessage".
	text := resp.SummaryMessage
	if text == "" {
		text = resp.Summary
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptySummary
	}
	return &SummaryResult{Subject: resp.SummarySubject, Message: text, DetailMessage: resp.SummaryDetailMessage}, nil
}

type usageResponse struct {
	PlanType string `json:"planType"`
}

// PlanType calls GET /usage and returns the caller's subscription tier.
func (c *Client) PlanType(ctx context.Context) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	var resp usageResponse
	if err := c.do(ctx, http.MethodGet, "/usage", nil, &resp); err != nil {
		return "", err
	}
	return resp.PlanType, nil
}

// RollbackUsage undoes the optimistic usage increment after a failed
// summarization. Best-effort: callers log failures and do not retry, the
// server self-heals counts on error responses.
func (c *Client) RollbackUsage(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/usage/rollback", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var rd io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return &StatusError{Code: res.StatusCode}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
