package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/paymatrix/internal/methods/domain"
	"github.com/smallbiznis/paymatrix/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var ref = domain.LoginRef{Project: "rolling", Geo: "DE", Env: domain.EnvProd, Login: "de_1DEP"}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", srv.Client(), zap.NewNop())
}

func TestFetchMethods_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/get-methods-only", r.URL.Path)

		var got domain.LoginRef
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, ref, got)

		_, _ = w.Write([]byte(`{
			"success": true,
			"deposit_methods": [["Visa", "Visa_Cards_1DEP"], ["Skrill", "Skrill_Wallet"]],
			"withdraw_methods": [["Skrill", "Skrill_Wallet"]],
			"recommended_methods": [["Visa", "Visa_Cards_1DEP"]],
			"min_deposit_by_key": {"visa|||visa_cards_1dep": "10,5"}
		}`))
	})

	m, err := c.FetchMethods(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, m.DepositMethods, 2)
	assert.Equal(t, domain.MethodPair{Title: "Visa", Name: "Visa_Cards_1DEP"}, m.DepositMethods[0])
	assert.Len(t, m.WithdrawMethods, 1)
	assert.Len(t, m.RecommendedMethods, 1)
	assert.Equal(t, "10,5", m.MinDepositByKey["visa|||visa_cards_1dep"])
}

func TestFetchMethods_MalformedEntriesAreSkipped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"success": true,
			"deposit_methods": [["Visa", "Visa_Cards_1DEP"], null, ["Skrill"], "bogus", []],
			"withdraw_methods": [[42, "Bank_Transfer"]],
			"recommended_methods": null,
			"min_deposit_map": [{"title": 7, "name": "Visa_Cards_1DEP", "min_deposit": "10"}, null, "x"],
			"min_deposits": [{"Title": "Skrill", "Name": ["oops"], "MinDeposit": 15}, 3]
		}`))
	})

	m, err := c.FetchMethods(context.Background(), ref)
	require.NoError(t, err)
	require.Len(t, m.DepositMethods, 5)
	assert.Equal(t, domain.MethodPair{Title: "Visa", Name: "Visa_Cards_1DEP"}, m.DepositMethods[0])
	assert.Equal(t, domain.MethodPair{}, m.DepositMethods[1])
	assert.Equal(t, domain.MethodPair{Title: "Skrill"}, m.DepositMethods[2])
	assert.Equal(t, domain.MethodPair{}, m.DepositMethods[3])
	assert.Equal(t, domain.MethodPair{Title: "42", Name: "Bank_Transfer"}, m.WithdrawMethods[0])

	require.Len(t, m.MinDepositMap, 3)
	assert.Equal(t, "7", m.MinDepositMap[0].Title)
	assert.Equal(t, "10", m.MinDepositMap[0].MinDeposit)
	assert.Equal(t, domain.MinDepositMapItem{}, m.MinDepositMap[1])
	require.Len(t, m.MinDeposits, 2)
	assert.Equal(t, "Skrill", m.MinDeposits[0].Title)
	assert.Equal(t, float64(15), m.MinDeposits[0].MinDeposit)
}

func TestFetchMethods_SuccessFalseIsFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": "Authentication failed"}`))
	})

	_, err := c.FetchMethods(context.Background(), ref)
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, 0, be.Status)
	assert.Equal(t, "Authentication failed", be.Detail)
	assert.Equal(t, "rejected", metrics.ClassifyFetchFailure(err))
}

func TestCheckLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/run-login-check", r.URL.Path)
		_, _ = w.Write([]byte(`{"success": true, "currency": "EUR", "deposit_count": 3}`))
	})

	check, err := c.CheckLogin(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "EUR", check.Currency)
	require.NotNil(t, check.DepositCount)
	assert.Equal(t, 3, *check.DepositCount)
}

func TestCheckLogin_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail": "Authentication failed"}`))
	})

	_, err := c.CheckLogin(context.Background(), ref)
	var be *BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, http.StatusUnauthorized, be.Status)
	assert.Equal(t, "Authentication failed", be.Detail)
	assert.Equal(t, "unauthorized", metrics.ClassifyFetchFailure(err))
}

func TestFetchMethods_ErrorBodies(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		detail string
		reason string
	}{
		{name: "unknown_project", status: 400, body: `{"detail":"Unknown project"}`, detail: "Unknown project", reason: "bad_request"},
		{name: "validation_list", status: 422, body: `{"detail":[{"loc":["body","env"]}]}`, detail: `[{"loc":["body","env"]}]`, reason: "bad_request"},
		{name: "plain_text", status: 502, body: `Bad Gateway`, detail: "Bad Gateway", reason: "backend_error"},
		{name: "empty", status: 500, body: ``, detail: "Internal Server Error", reason: "backend_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.FetchMethods(context.Background(), ref)
			var be *BackendError
			require.ErrorAs(t, err, &be)
			assert.Equal(t, tc.status, be.Status)
			assert.Equal(t, tc.detail, be.Detail)
			assert.Equal(t, tc.reason, be.FailureReason())
		})
	}
}

func TestFetchMethods_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, &http.Client{Timeout: 50 * time.Millisecond}, zap.NewNop())
	_, err := c.FetchMethods(context.Background(), ref)
	require.Error(t, err)
	assert.Equal(t, "timeout", metrics.ClassifyFetchFailure(err))
}

func TestFetchMethods_ContextCanceled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchMethods(ctx, ref)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, metrics.FetchReasonDeadlineExceeded, metrics.ClassifyFetchFailure(err))
}

func TestFetchMethods_InvalidJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": tru`))
	})
	_, err := c.FetchMethods(context.Background(), ref)
	require.Error(t, err)
	assert.Equal(t, "transport", metrics.ClassifyFetchFailure(err))
}
