package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/paymatrix/internal/clock"
	"github.com/smallbiznis/paymatrix/internal/config"
	"github.com/smallbiznis/paymatrix/internal/gateway"
	"github.com/smallbiznis/paymatrix/internal/methods/domain"
	"github.com/smallbiznis/paymatrix/internal/methods/repository"
	"github.com/smallbiznis/paymatrix/internal/observability/metrics"
	"github.com/smallbiznis/paymatrix/internal/ratelimit"
	registrydomain "github.com/smallbiznis/paymatrix/internal/registry/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	mu       sync.Mutex
	methods  map[string]*domain.LoginMethods
	errs     map[string]error
	currency string
	// currencies overrides currency per login
	currencies map[string]string
	fetched    []string
	checked    []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		methods:    make(map[string]*domain.LoginMethods),
		errs:       make(map[string]error),
		currency:   "EUR",
		currencies: make(map[string]string),
	}
}

func (g *fakeGateway) FetchMethods(ctx context.Context, ref domain.LoginRef) (*domain.LoginMethods, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fetched = append(g.fetched, ref.Login)
	if err := g.errs[ref.Login]; err != nil {
		return nil, err
	}
	return g.methods[ref.Login], nil
}

func (g *fakeGateway) CheckLogin(ctx context.Context, ref domain.LoginRef) (*domain.AuthCheck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.checked = append(g.checked, ref.Login)
	if cur, ok := g.currencies[ref.Login]; ok {
		return &domain.AuthCheck{Success: true, Currency: cur}, nil
	}
	return &domain.AuthCheck{Success: true, Currency: g.currency}, nil
}

func (g *fakeGateway) setErr(login string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.errs, login)
		return
	}
	g.errs[login] = err
}

type fakeRegistry struct {
	groups map[string][]registrydomain.GeoGroup
}

func (r *fakeRegistry) ListProjects(ctx context.Context) ([]registrydomain.ProjectResponse, error) {
	return nil, nil
}

func (r *fakeRegistry) CreateProject(ctx context.Context, req registrydomain.CreateProjectRequest) (*registrydomain.ProjectResponse, error) {
	return nil, nil
}

func (r *fakeRegistry) GeoGroups(ctx context.Context, code string) ([]registrydomain.GeoGroup, error) {
	groups, ok := r.groups[code]
	if !ok {
		return nil, registrydomain.ErrProjectNotFound
	}
	return groups, nil
}

func (r *fakeRegistry) AddLogin(ctx context.Context, req registrydomain.AddLoginRequest) (*registrydomain.LoginResponse, error) {
	return nil, nil
}

func (r *fakeRegistry) RemoveLogin(ctx context.Context, code, loginID string) error {
	return nil
}

func geoGroup(geo string, logins ...string) registrydomain.GeoGroup {
	g := registrydomain.GeoGroup{Geo: geo}
	for _, l := range logins {
		g.Logins = append(g.Logins, registrydomain.LoginResponse{Project: "spin", Geo: geo, Login: l})
	}
	return g
}

func pair(title, name string) domain.MethodPair {
	return domain.MethodPair{Title: title, Name: name}
}

type testEnv struct {
	svc     domain.Service
	gateway *fakeGateway
	store   *repository.MemoryStore
	locker  ratelimit.Locker
	policy  *config.PolicyHolder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	gw := newFakeGateway()
	gw.methods["user_5DEP"] = &domain.LoginMethods{
		Success:            true,
		DepositMethods:     []domain.MethodPair{pair("Visa", "Visa_Cards_5DEP"), pair("Trustly", "Trustly_Banks")},
		WithdrawMethods:    []domain.MethodPair{pair("Trustly", "Trustly_Banks")},
		RecommendedMethods: []domain.MethodPair{pair("Trustly", "Trustly_Banks")},
	}
	gw.methods["user_1DEP"] = &domain.LoginMethods{
		Success:        true,
		DepositMethods: []domain.MethodPair{pair("Visa", "Visa_Cards_1DEP")},
	}
	gw.methods["plain"] = &domain.LoginMethods{
		Success:        true,
		DepositMethods: []domain.MethodPair{pair("Skrill", "Skrill_Wallets")},
	}
	gw.methods["fi_user"] = &domain.LoginMethods{
		Success:        true,
		DepositMethods: []domain.MethodPair{pair("Siru", "Siru_Mobile_MOB")},
	}

	registry := &fakeRegistry{groups: map[string][]registrydomain.GeoGroup{
		"spin": {
			geoGroup("DE", "plain", "user_1DEP", "user_5DEP"),
			geoGroup("FI", "fi_user"),
			geoGroup("PL"),
		},
	}}

	store := repository.NewMemoryStore(clk, time.Hour)
	locker := ratelimit.NewLocalLocker(clk)
	policy := config.NewStaticPolicyHolder(config.DefaultPolicyConfig())

	svc := New(Params{
		Log:         zap.NewNop(),
		Cfg:         config.Config{RetryConcurrency: 2},
		GenID:       node,
		Clock:       clk,
		Gateway:     gw,
		Store:       store,
		Registry:    registry,
		Policy:      policy,
		Locker:      locker,
		LoadMetrics: metrics.NewLoadMetricsForTest(prometheus.NewRegistry()),
	})
	return &testEnv{svc: svc, gateway: gw, store: store, locker: locker, policy: policy}
}

func rowTitles(rows []*domain.MethodGroup) []string {
	titles := make([]string, 0, len(rows))
	for _, r := range rows {
		titles = append(titles, r.Title)
	}
	return titles
}

func TestLoadGeoQueriesLoginsByTier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Load(ctx, domain.LoadRequest{Project: "Spin", Geo: "de", Env: domain.EnvStage})
	require.NoError(t, err)

	assert.Equal(t, []string{"user_5DEP", "user_1DEP", "plain"}, env.gateway.checked)
	assert.Equal(t, []string{"user_5DEP", "user_1DEP", "plain"}, env.gateway.fetched)

	assert.Equal(t, "spin", res.Project)
	assert.Equal(t, []string{"DE"}, res.Geos)
	assert.Equal(t, domain.ScopeKey("spin", domain.EnvStage, "DE", false), res.Scope)
	assert.Empty(t, res.Failures)
	require.Len(t, res.Contributions["DE"], 3)

	agg := res.Aggregates["DE"]
	require.NotNil(t, agg)
	assert.Equal(t, "EUR", agg.Currency)
	assert.Len(t, agg.Groups, 3)

	stored, err := env.svc.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, stored.RunID)

	latest, err := env.svc.Latest(ctx, domain.LatestRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage})
	require.NoError(t, err)
	assert.Equal(t, res.RunID, latest.RunID)
}

func TestLoadRecordsFailedLogins(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.setErr("plain", &gateway.BackendError{Detail: "account blocked"})

	res, err := env.svc.Load(context.Background(), domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage})
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, "DE", res.Failures[0].Geo)
	assert.Equal(t, "plain", res.Failures[0].Login)
	assert.Contains(t, res.Failures[0].Reason, "account blocked")
	assert.Len(t, res.Aggregates["DE"].Groups, 2)
}

func TestLoadFullProjectIsolatesGeoFailures(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.setErr("user_5DEP", &gateway.BackendError{Status: 401, Detail: "Authentication failed"})

	res, err := env.svc.Load(context.Background(), domain.LoadRequest{Project: "spin", Env: domain.EnvStage, FullProject: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"DE", "FI"}, res.Geos)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, domain.LoginFailure{Geo: "DE", Login: "user_5DEP", Reason: res.Failures[0].Reason}, res.Failures[0])
	assert.Equal(t, domain.RunStatusPartial, res.Status())

	de := res.Aggregates["DE"]
	require.NotNil(t, de)
	assert.Len(t, de.Groups, 2)
	assert.Nil(t, de.Groups["trustly"])

	fi := res.Aggregates["FI"]
	require.NotNil(t, fi)
	require.Len(t, fi.Groups, 1)
	assert.Equal(t, "Siru", fi.Groups["siru"].Title)
	assert.Equal(t, "EUR", fi.Currency)
	assert.Equal(t, []string{"user_5DEP", "user_1DEP", "plain", "fi_user"}, env.gateway.fetched)
}

func TestLoadCurrencyConsensusPerLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.gateway.currencies["plain"] = "USD"

	res, err := env.svc.Load(ctx, domain.LoadRequest{Project: "spin", Env: domain.EnvStage, FullProject: true})
	require.NoError(t, err)

	assert.Equal(t, "USD", res.Contributions["DE"][2].Currency)
	assert.Equal(t, domain.CurrencyUnknown, res.Aggregates["DE"].Currency)
	assert.Equal(t, "EUR", res.Aggregates["FI"].Currency)

	// a login with no reported currency does not break the consensus
	env.gateway.currencies["plain"] = ""
	res, err = env.svc.Load(ctx, domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage})
	require.NoError(t, err)
	assert.Equal(t, "EUR", res.Aggregates["DE"].Currency)
}

func TestLoadFullProjectSkipsEmptyGeos(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Load(context.Background(), domain.LoadRequest{Project: "spin", Env: domain.EnvStage, FullProject: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"DE", "FI"}, res.Geos)
	assert.Equal(t, domain.ScopeKey("spin", domain.EnvStage, "", true), res.Scope)
	assert.Equal(t, []string{"user_5DEP", "user_1DEP", "plain", "fi_user"}, env.gateway.checked)
}

func TestLoadSingleLogin(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Load(context.Background(), domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage, Login: "user_1DEP"})
	require.NoError(t, err)

	assert.Equal(t, []string{"user_1DEP"}, env.gateway.fetched)
	require.Len(t, res.Contributions["DE"], 1)
	assert.Len(t, res.Aggregates["DE"].Groups, 1)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		req  domain.LoadRequest
		want error
	}{
		{"empty project", domain.LoadRequest{Project: "  ", Geo: "DE", Env: domain.EnvStage}, domain.ErrInvalidProject},
		{"bad env", domain.LoadRequest{Project: "spin", Geo: "DE", Env: "qa"}, domain.ErrInvalidEnv},
		{"bad geo", domain.LoadRequest{Project: "spin", Geo: "Germany", Env: domain.EnvStage}, domain.ErrInvalidGeo},
		{"unknown project", domain.LoadRequest{Project: "other", Geo: "DE", Env: domain.EnvStage}, registrydomain.ErrProjectNotFound},
		{"geo without logins", domain.LoadRequest{Project: "spin", Geo: "PL", Env: domain.EnvStage}, domain.ErrNoLogins},
		{"unknown login", domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage, Login: "ghost"}, domain.ErrUnknownLogin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.svc.Load(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, env.gateway.fetched)
		})
	}
}

func TestLoadCanceledPublishesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.svc.Load(ctx, domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = env.svc.Latest(context.Background(), domain.LatestRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage})
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestLoadRejectsStaleRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	newer := &domain.LoadResult{
		RunID: snowflake.ID(1) << 62,
		Scope: domain.ScopeKey("spin", domain.EnvStage, "DE", false),
	}
	require.NoError(t, env.store.Publish(ctx, newer))

	_, err := env.svc.Load(ctx, domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage})
	assert.ErrorIs(t, err, domain.ErrStaleRun)

	latest, err := env.svc.Latest(ctx, domain.LatestRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage})
	require.NoError(t, err)
	assert.Equal(t, newer.RunID, latest.RunID)
}

func TestLoadInjectsHardcodedInProd(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Load(context.Background(), domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvProd, AddHardcoded: true})
	require.NoError(t, err)

	var synthetic []string
	for _, g := range res.Aggregates["DE"].Groups {
		if g.IsSynthetic() {
			synthetic = append(synthetic, g.Title)
		}
	}
	assert.Contains(t, synthetic, "ApplePay Visa")

	res, err = env.svc.Load(context.Background(), domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvProd})
	require.NoError(t, err)
	for _, g := range res.Aggregates["DE"].Groups {
		assert.False(t, g.IsSynthetic(), g.Title)
	}
}

func TestRetryFailedRebuildsAffectedGeo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.gateway.setErr("plain", &gateway.BackendError{Status: 502, Detail: "upstream"})

	first, err := env.svc.Load(ctx, domain.LoadRequest{Project: "spin", Env: domain.EnvStage, FullProject: true})
	require.NoError(t, err)
	require.Len(t, first.Failures, 1)
	fiBefore := first.Aggregates["FI"]

	env.gateway.setErr("plain", nil)
	retried, err := env.svc.RetryFailed(ctx, first.RunID)
	require.NoError(t, err)

	assert.Equal(t, first.RunID, retried.ParentRunID)
	assert.Greater(t, retried.RunID, first.RunID)
	assert.Empty(t, retried.Failures)
	assert.Len(t, retried.Aggregates["DE"].Groups, 3)
	assert.Same(t, fiBefore, retried.Aggregates["FI"])
	assert.Len(t, retried.Contributions["DE"], 3)
	assert.Equal(t, "EUR", retried.Aggregates["DE"].Currency)

	latest, err := env.svc.Latest(ctx, domain.LatestRequest{Project: "spin", Env: domain.EnvStage, FullProject: true})
	require.NoError(t, err)
	assert.Equal(t, retried.RunID, latest.RunID)

	_, err = env.svc.RetryFailed(ctx, retried.RunID)
	assert.ErrorIs(t, err, domain.ErrNoFailures)
}

func TestRetryFailedKeepsStillFailingLogins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.gateway.setErr("plain", &gateway.BackendError{Detail: "blocked"})

	first, err := env.svc.Load(ctx, domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage})
	require.NoError(t, err)

	retried, err := env.svc.RetryFailed(ctx, first.RunID)
	require.NoError(t, err)
	require.Len(t, retried.Failures, 1)
	assert.Equal(t, "plain", retried.Failures[0].Login)
}

func TestRetryFailedRejectsConcurrentRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.gateway.setErr("plain", &gateway.BackendError{Detail: "blocked"})

	first, err := env.svc.Load(ctx, domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage})
	require.NoError(t, err)

	_, ok, err := env.locker.TryLock(ctx, ratelimit.RetryLockKey(first.RunID.String()), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.svc.RetryFailed(ctx, first.RunID)
	assert.ErrorIs(t, err, domain.ErrRetryInProgress)
}

func TestRetryFailedUnknownRun(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.RetryFailed(context.Background(), snowflake.ID(42))
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestView(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.svc.Load(ctx, domain.LoadRequest{Project: "spin", Env: domain.EnvStage, FullProject: true})
	require.NoError(t, err)

	views, err := env.svc.View(ctx, domain.ViewRequest{RunID: res.RunID})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "DE", views[0].Geo)
	assert.Equal(t, "EUR", views[0].Currency)
	assert.Equal(t, "spin", views[0].Project)
	assert.Equal(t, "Trustly", views[0].Rows[0].Title)

	views, err = env.svc.View(ctx, domain.ViewRequest{RunID: res.RunID, Geo: "de", Filter: "1DEP"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, []string{"Visa"}, rowTitles(views[0].Rows))

	views, err = env.svc.View(ctx, domain.ViewRequest{RunID: res.RunID, Geo: "FI", Filter: "recommended"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Empty(t, views[0].Rows)

	_, err = env.svc.View(ctx, domain.ViewRequest{RunID: res.RunID, Filter: "cheap"})
	assert.ErrorIs(t, err, domain.ErrInvalidFilter)

	_, err = env.svc.View(ctx, domain.ViewRequest{RunID: res.RunID, Geo: "PL"})
	assert.ErrorIs(t, err, domain.ErrInvalidGeo)

	_, err = env.svc.View(ctx, domain.ViewRequest{RunID: 0})
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestViewKeepsRunPolicyAfterReload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.gateway.setErr("plain", &gateway.BackendError{Detail: "account blocked"})

	res, err := env.svc.Load(ctx, domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage})
	require.NoError(t, err)

	before, err := env.svc.View(ctx, domain.ViewRequest{RunID: res.RunID})
	require.NoError(t, err)
	assert.Equal(t, []string{"Trustly", "Visa"}, rowTitles(before[0].Rows))

	reloaded := config.DefaultPolicyConfig()
	reloaded.SpecialBrands = []string{"Trustly"}
	reloaded.PinnedPosition = 0
	env.policy.Set(reloaded)

	after, err := env.svc.View(ctx, domain.ViewRequest{RunID: res.RunID})
	require.NoError(t, err)
	assert.Equal(t, rowTitles(before[0].Rows), rowTitles(after[0].Rows))

	env.gateway.setErr("plain", nil)
	retried, err := env.svc.RetryFailed(ctx, res.RunID)
	require.NoError(t, err)
	assert.JSONEq(t, string(res.Policy), string(retried.Policy))

	views, err := env.svc.View(ctx, domain.ViewRequest{RunID: retried.RunID})
	require.NoError(t, err)
	assert.Equal(t, []string{"Trustly", "Visa", "Skrill"}, rowTitles(views[0].Rows))

	fresh, err := env.svc.Load(ctx, domain.LoadRequest{Project: "spin", Geo: "DE", Env: domain.EnvStage})
	require.NoError(t, err)
	views, err = env.svc.View(ctx, domain.ViewRequest{RunID: fresh.RunID})
	require.NoError(t, err)
	assert.Equal(t, []string{"Visa", "Skrill", "Trustly"}, rowTitles(views[0].Rows))
}
