package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type reasonErr string

func (e reasonErr) Error() string         { return string(e) }
func (e reasonErr) FailureReason() string { return string(e) }

// timeoutErr mimics a client timeout that knows its reason and wraps the deadline.
type timeoutErr struct{}

func (timeoutErr) Error() string         { return "client timeout" }
func (timeoutErr) FailureReason() string { return "timeout" }
func (timeoutErr) Unwrap() error         { return context.DeadlineExceeded }

type reasonlessCancel struct{}

func (reasonlessCancel) Error() string         { return "canceled" }
func (reasonlessCancel) FailureReason() string { return "" }
func (reasonlessCancel) Unwrap() error         { return context.Canceled }

func TestClassifyFetchFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: FetchReasonDeadlineExceeded},
		{name: "wrapped_deadline", err: fmt.Errorf("fetch: %w", context.DeadlineExceeded), want: FetchReasonDeadlineExceeded},
		{name: "reasoner", err: fmt.Errorf("fetch: %w", reasonErr("unauthorized")), want: "unauthorized"},
		{name: "reasoner_over_deadline", err: fmt.Errorf("fetch: %w", timeoutErr{}), want: "timeout"},
		{name: "empty_reason_falls_back", err: fmt.Errorf("fetch: %w", reasonlessCancel{}), want: FetchReasonDeadlineExceeded},
		{name: "unknown", err: errors.New("boom"), want: FetchReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyFetchFailure(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestLoadMetrics(t *testing.T) {
	m := newLoadMetrics(prometheus.NewRegistry(), Config{ServiceName: "paymatrix", Environment: "test"})

	m.ObserveRun(LoadKindGeo, LoadStatusPartial, 2*time.Second)
	m.IncFetchFailure(reasonErr("rejected"))
	m.IncFetchFailure(reasonErr("rejected"))
	m.IncStalePublish()

	if got := testutil.ToFloat64(m.runs.WithLabelValues(LoadKindGeo, LoadStatusPartial)); got != 1 {
		t.Fatalf("expected 1 partial run, got %v", got)
	}
	if got := testutil.ToFloat64(m.fetchFailures.WithLabelValues("rejected")); got != 2 {
		t.Fatalf("expected 2 rejected fetches, got %v", got)
	}
	if got := testutil.ToFloat64(m.stale); got != 1 {
		t.Fatalf("expected 1 stale publish, got %v", got)
	}

	var nilMetrics *LoadMetrics
	nilMetrics.ObserveRun(LoadKindGeo, LoadStatusOK, time.Second)
}

func TestNewLoadMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLoadMetricsForTest(reg)

	m.IncFetch("prod")
	m.IncFetch("prod")

	if got := testutil.ToFloat64(m.fetches.WithLabelValues("prod")); got != 2 {
		t.Fatalf("expected 2 prod fetches, got %v", got)
	}
}

func TestLoadWithConfigSingleton(t *testing.T) {
	first := LoadWithConfig(Config{ServiceName: "paymatrix", Environment: "prod"})
	second := LoadWithConfig(Config{ServiceName: "paymatrix", Environment: "prod"})
	if first == nil || first != second {
		t.Fatalf("expected one shared load metrics instance")
	}
}
