package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/smallbiznis/paymatrix/internal/config"
	"github.com/smallbiznis/paymatrix/internal/export/domain"
	"github.com/smallbiznis/paymatrix/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	pathMulti = "/export-table-to-sheets-multi"

	maxResponseBytes = 1 << 20
)

// Client submits multi-GEO tables to the spreadsheet backend.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
	tracer  trace.Tracer
}

func New(cfg config.Config, log *zap.Logger) domain.SheetsClient {
	return NewClient(cfg.SheetsBaseURL, &http.Client{Timeout: cfg.SheetsTimeout}, log)
}

func NewClient(baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    httpClient,
		log:     log.Named("sheets"),
		tracer:  tracing.Tracer("sheets"),
	}
}

type response struct {
	Success  bool            `json:"success"`
	SheetURL string          `json:"sheet_url"`
	Message  string          `json:"message"`
	Detail   json.RawMessage `json:"detail"`
}

func (c *Client) Submit(ctx context.Context, payload domain.SheetsPayload) (url string, err error) {
	if c.baseURL == "" {
		return "", domain.ErrSheetsUnavailable
	}

	ctx, span := c.tracer.Start(ctx, "sheets "+pathMulti, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("project", payload.Project),
		attribute.String("env", payload.Env),
		attribute.Int("sheets", len(payload.Sheets)),
	)
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "sheets export failed")
		}
		span.End()
	}()

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathMulti, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", domain.ErrSheetsUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", domain.ErrSheetsUnavailable, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	var out response
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Warn("sheets export rejected", zap.Int("status", resp.StatusCode))
		return "", &domain.SheetsError{Status: resp.StatusCode, Detail: detail(out, raw, resp.StatusCode)}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrSheetsUnavailable, decodeErr)
	}
	if !out.Success || strings.TrimSpace(out.SheetURL) == "" {
		return "", &domain.SheetsError{Detail: detail(out, raw, resp.StatusCode)}
	}
	return strings.TrimSpace(out.SheetURL), nil
}

// detail picks the message the backend gave for a failure.
func detail(out response, raw []byte, status int) string {
	if len(out.Detail) > 0 {
		var s string
		if err := json.Unmarshal(out.Detail, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		if text := strings.TrimSpace(string(out.Detail)); text != "null" {
			return text
		}
	}
	if m := strings.TrimSpace(out.Message); m != "" {
		return m
	}
	if text := strings.TrimSpace(string(raw)); text != "" && len(text) <= 512 && !json.Valid(raw) {
		return text
	}
	if status >= http.StatusBadRequest {
		return http.StatusText(status)
	}
	return "no sheet url returned"
}
