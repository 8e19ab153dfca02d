package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/smallbiznis/paymatrix/internal/config"
	"github.com/smallbiznis/paymatrix/internal/methods/domain"
	"github.com/smallbiznis/paymatrix/internal/observability/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	pathMethods    = "/get-methods-only"
	pathLoginCheck = "/run-login-check"

	maxResponseBytes = 16 << 20
)

var Module = fx.Module("gateway",
	fx.Provide(New),
)

// Client talks to the backend that logs into project sites and extracts
// payment methods. Every call is one login; the client never retries.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
	tracer  trace.Tracer
}

func New(cfg config.Config, log *zap.Logger) domain.Gateway {
	return NewClient(cfg.BackendBaseURL, &http.Client{Timeout: cfg.BackendTimeout}, log)
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
		log:     log.Named("gateway"),
		tracer:  tracing.Tracer("gateway"),
	}
}

// FetchMethods returns the deposit, withdraw and recommended methods one login sees.
func (c *Client) FetchMethods(ctx context.Context, ref domain.LoginRef) (*domain.LoginMethods, error) {
	var out domain.LoginMethods
	if err := c.post(ctx, pathMethods, ref, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		detail := strings.TrimSpace(out.Error)
		if detail == "" {
			detail = "backend reported failure"
		}
		return nil, &BackendError{Detail: detail}
	}
	return &out, nil
}

// CheckLogin authenticates a login and returns its currency and deposit count.
func (c *Client) CheckLogin(ctx context.Context, ref domain.LoginRef) (*domain.AuthCheck, error) {
	var out domain.AuthCheck
	if err := c.post(ctx, pathLoginCheck, ref, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		detail := strings.TrimSpace(out.Error)
		if detail == "" {
			detail = "authentication failed"
		}
		return nil, &BackendError{Detail: detail}
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path string, ref domain.LoginRef, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "backend "+path, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("project", ref.Project),
		attribute.String("geo", ref.Geo),
		attribute.String("env", string(ref.Env)),
		attribute.String("login", ref.Login),
	)...)
	defer func() {
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "backend call failed")
		}
		span.End()
	}()

	body, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	tracing.InjectContext(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &transportError{op: "POST " + path, err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &transportError{op: "read " + path, err: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.Debug("backend error response", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return &BackendError{Status: resp.StatusCode, Detail: decodeDetail(raw, resp.StatusCode)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &transportError{op: "decode " + path, err: err}
	}
	return nil
}
