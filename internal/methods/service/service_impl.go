package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paymatrix/internal/clock"
	"github.com/smallbiznis/paymatrix/internal/config"
	"github.com/smallbiznis/paymatrix/internal/methods/domain"
	"github.com/smallbiznis/paymatrix/internal/methods/engine"
	obscontext "github.com/smallbiznis/paymatrix/internal/observability/context"
	"github.com/smallbiznis/paymatrix/internal/observability/logger"
	"github.com/smallbiznis/paymatrix/internal/observability/metrics"
	"github.com/smallbiznis/paymatrix/internal/observability/tracing"
	"github.com/smallbiznis/paymatrix/internal/ratelimit"
	registrydomain "github.com/smallbiznis/paymatrix/internal/registry/domain"
	registryservice "github.com/smallbiznis/paymatrix/internal/registry/service"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultRetryConcurrency = 3

type Params struct {
	fx.In

	Log         *zap.Logger
	Cfg         config.Config
	GenID       *snowflake.Node
	Clock       clock.Clock
	Gateway     domain.Gateway
	Store       domain.RunStore
	Registry    registrydomain.Service
	Policy      *config.PolicyHolder
	Locker      ratelimit.Locker
	LoadMetrics *metrics.LoadMetrics `optional:"true"`
	Metrics     *metrics.Metrics     `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	gateway     domain.Gateway
	store       domain.RunStore
	registry    registrydomain.Service
	policy      *config.PolicyHolder
	locker      ratelimit.Locker
	loadMetrics *metrics.LoadMetrics
	metrics     *metrics.Metrics
	concurrency int
}

func New(p Params) domain.Service {
	concurrency := p.Cfg.RetryConcurrency
	if concurrency <= 0 {
		concurrency = defaultRetryConcurrency
	}
	return &Service{
		log:         p.Log.Named("methods.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		gateway:     p.Gateway,
		store:       p.Store,
		registry:    p.Registry,
		policy:      p.Policy,
		locker:      p.Locker,
		loadMetrics: p.LoadMetrics,
		metrics:     p.Metrics,
		concurrency: concurrency,
	}
}

// geoPlan is the ordered login list one GEO of a run queries.
type geoPlan struct {
	geo    string
	logins []string
}

func (s *Service) Load(ctx context.Context, req domain.LoadRequest) (*domain.LoadResult, error) {
	project, geo, err := normalizeScope(req.Project, req.Geo, req.Env, req.FullProject)
	if err != nil {
		return nil, err
	}

	plans, err := s.plan(ctx, project, geo, req.FullProject, strings.TrimSpace(req.Login))
	if err != nil {
		return nil, err
	}

	started := s.clock.Now()
	runID := s.genID.Generate()
	ctx = obscontext.WithProject(ctx, project)
	ctx = obscontext.WithRunID(ctx, runID.String())

	kind := metrics.LoadKindGeo
	if req.FullProject {
		kind = metrics.LoadKindProject
	}

	ctx, span := tracing.Tracer("methods").Start(ctx, "methods.load")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("project", project),
		attribute.String("env", string(req.Env)),
		attribute.String("run_id", runID.String()),
		attribute.Int("geo_count", len(plans)),
	)...)

	// One snapshot per run; a reload mid-run never mixes policies.
	policyCfg := s.policy.Get()
	policy := policyCfg.ToEngine()
	snapshot, err := json.Marshal(policyCfg)
	if err != nil {
		return nil, err
	}

	result := &domain.LoadResult{
		RunID:         runID,
		Project:       project,
		Env:           req.Env,
		Scope:         domain.ScopeKey(project, req.Env, geo, req.FullProject),
		FullProject:   req.FullProject,
		AddHardcoded:  req.AddHardcoded,
		Aggregates:    make(map[string]*domain.GeoAggregate, len(plans)),
		Contributions: make(map[string][]domain.LoginContribution, len(plans)),
		Policy:        snapshot,
		StartedAt:     started,
	}

	log := logger.WithContext(ctx, s.log)
	log.Info("load started",
		zap.String("env", string(req.Env)),
		zap.Bool("full_project", req.FullProject),
		zap.Int("geos", len(plans)),
	)

	for _, p := range plans {
		contributions, failures, err := s.loadGeo(ctx, project, req.Env, p)
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "load aborted")
			s.loadMetrics.ObserveRun(kind, metrics.LoadStatusFailed, s.clock.Now().Sub(started))
			return nil, err
		}
		result.Geos = append(result.Geos, p.geo)
		result.Contributions[p.geo] = contributions
		result.Failures = append(result.Failures, failures...)
		result.Aggregates[p.geo] = s.aggregate(ctx, p.geo, req.Env, policy, req.AddHardcoded, contributions)
	}

	return s.publish(ctx, result, kind, started)
}

func (s *Service) RetryFailed(ctx context.Context, runID snowflake.ID) (*domain.LoadResult, error) {
	prev, err := s.store.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(prev.Failures) == 0 {
		return nil, domain.ErrNoFailures
	}

	lockKey := ratelimit.RetryLockKey(runID.String())
	token, ok, err := s.locker.TryLock(ctx, lockKey, ratelimit.DefaultRetryLockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrRetryInProgress
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			s.log.Warn("release retry lock failed", zap.String("run_id", runID.String()), zap.Error(err))
		}
	}()

	started := s.clock.Now()
	newID := s.genID.Generate()
	ctx = obscontext.WithProject(ctx, prev.Project)
	ctx = obscontext.WithRunID(ctx, newID.String())

	ctx, span := tracing.Tracer("methods").Start(ctx, "methods.retry")
	defer span.End()
	span.SetAttributes(
		attribute.String("parent_run_id", runID.String()),
		attribute.Int("failures", len(prev.Failures)),
	)

	log := logger.WithContext(ctx, s.log)
	log.Info("retrying failed logins",
		zap.String("parent_run_id", runID.String()),
		zap.Int("failures", len(prev.Failures)),
	)

	retried := make([]domain.LoginContribution, len(prev.Failures))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, f := range prev.Failures {
		g.Go(func() error {
			currency := s.checkCurrency(gctx, prev.Project, prev.Env, f.Geo, f.Login)
			c, err := s.fetchLogin(gctx, prev.Project, prev.Env, f.Geo, f.Login, currency)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			retried[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "retry aborted")
		s.loadMetrics.ObserveRun(metrics.LoadKindRetry, metrics.LoadStatusFailed, s.clock.Now().Sub(started))
		return nil, err
	}

	result := &domain.LoadResult{
		RunID:         newID,
		ParentRunID:   prev.RunID,
		Project:       prev.Project,
		Env:           prev.Env,
		Scope:         prev.Scope,
		FullProject:   prev.FullProject,
		AddHardcoded:  prev.AddHardcoded,
		Geos:          append([]string(nil), prev.Geos...),
		Aggregates:    make(map[string]*domain.GeoAggregate, len(prev.Aggregates)),
		Contributions: make(map[string][]domain.LoginContribution, len(prev.Contributions)),
		Policy:        prev.Policy,
		StartedAt:     started,
	}
	for geo, contributions := range prev.Contributions {
		result.Contributions[geo] = append([]domain.LoginContribution(nil), contributions...)
	}

	affected := make(map[string]struct{})
	for i, f := range prev.Failures {
		c := retried[i]
		replaceContribution(result.Contributions, f.Geo, c)
		affected[f.Geo] = struct{}{}
		if c.Failed() {
			result.Failures = append(result.Failures, domain.LoginFailure{Geo: f.Geo, Login: f.Login, Reason: c.Error})
		}
	}

	policy := s.runPolicy(ctx, prev)
	for _, geo := range result.Geos {
		if _, ok := affected[geo]; !ok {
			result.Aggregates[geo] = prev.Aggregates[geo]
			continue
		}
		result.Aggregates[geo] = s.aggregate(ctx, geo, result.Env, policy, result.AddHardcoded, result.Contributions[geo])
	}

	return s.publish(ctx, result, metrics.LoadKindRetry, started)
}

func (s *Service) GetRun(ctx context.Context, runID snowflake.ID) (*domain.LoadResult, error) {
	if runID == 0 {
		return nil, domain.ErrRunNotFound
	}
	return s.store.Get(ctx, runID)
}

func (s *Service) Latest(ctx context.Context, req domain.LatestRequest) (*domain.LoadResult, error) {
	project, geo, err := normalizeScope(req.Project, req.Geo, req.Env, req.FullProject)
	if err != nil {
		return nil, err
	}
	return s.store.Latest(ctx, domain.ScopeKey(project, req.Env, geo, req.FullProject))
}

func (s *Service) View(ctx context.Context, req domain.ViewRequest) ([]domain.GeoView, error) {
	if !engine.ValidFilter(req.Filter) {
		return nil, domain.ErrInvalidFilter
	}
	run, err := s.GetRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}

	geos := run.Geos
	if strings.TrimSpace(req.Geo) != "" {
		geo, ok := registryservice.NormalizeGeo(req.Geo)
		if !ok {
			return nil, domain.ErrInvalidGeo
		}
		if _, found := run.Aggregates[geo]; !found {
			return nil, domain.ErrInvalidGeo
		}
		geos = []string{geo}
	}

	policy := s.runPolicy(ctx, run)
	views := make([]domain.GeoView, 0, len(geos))
	for _, geo := range geos {
		agg := run.Aggregates[geo]
		view := domain.GeoView{
			Geo:      geo,
			Currency: domain.CurrencyUnknown,
			Env:      run.Env,
			Project:  run.Project,
			Rows:     engine.View(agg, req.Filter, policy),
		}
		if agg != nil {
			view.Currency = agg.Currency
		}
		views = append(views, view)
	}
	return views, nil
}

func normalizeScope(project, geo string, env domain.Env, fullProject bool) (string, string, error) {
	project = registryservice.NormalizeProject(project)
	if project == "" {
		return "", "", domain.ErrInvalidProject
	}
	if !env.Valid() {
		return "", "", domain.ErrInvalidEnv
	}
	if fullProject {
		return project, "", nil
	}
	geo, ok := registryservice.NormalizeGeo(geo)
	if !ok {
		return "", "", domain.ErrInvalidGeo
	}
	return project, geo, nil
}

// plan resolves the GEOs and tier-ordered logins a run will query.
func (s *Service) plan(ctx context.Context, project, geo string, fullProject bool, login string) ([]geoPlan, error) {
	groups, err := s.registry.GeoGroups(ctx, project)
	if err != nil {
		return nil, err
	}

	var plans []geoPlan
	for _, group := range groups {
		if !fullProject && group.Geo != geo {
			continue
		}
		logins := make([]string, 0, len(group.Logins))
		for _, l := range group.Logins {
			logins = append(logins, l.Login)
		}
		if len(logins) == 0 {
			continue
		}
		plans = append(plans, geoPlan{geo: group.Geo, logins: engine.SortLoginsByTier(logins)})
	}
	if len(plans) == 0 {
		return nil, domain.ErrNoLogins
	}

	if login == "" {
		return plans, nil
	}
	for _, p := range plans {
		for _, l := range p.logins {
			if l == login {
				return []geoPlan{{geo: p.geo, logins: []string{l}}}, nil
			}
		}
	}
	return nil, domain.ErrUnknownLogin
}

// loadGeo queries every login of one GEO in order, checking each login's
// currency before fetching its methods. Only cancellation aborts the GEO;
// every other failure is recorded against its login.
func (s *Service) loadGeo(ctx context.Context, project string, env domain.Env, p geoPlan) ([]domain.LoginContribution, []domain.LoginFailure, error) {
	contributions := make([]domain.LoginContribution, 0, len(p.logins))
	var failures []domain.LoginFailure
	for _, login := range p.logins {
		currency := s.checkCurrency(ctx, project, env, p.geo, login)
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		c, err := s.fetchLogin(ctx, project, env, p.geo, login, currency)
		if err != nil && ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		contributions = append(contributions, c)
		if c.Failed() {
			failures = append(failures, domain.LoginFailure{Geo: p.geo, Login: login, Reason: c.Error})
		}
	}
	return contributions, failures, nil
}

func (s *Service) checkCurrency(ctx context.Context, project string, env domain.Env, geo, login string) string {
	check, err := s.gateway.CheckLogin(ctx, domain.LoginRef{Project: project, Geo: geo, Env: env, Login: login})
	if err != nil {
		logger.WithLogin(logger.WithContext(ctx, s.log), geo, login).Warn("login check failed", zap.Error(err))
		return ""
	}
	if check == nil || !check.Success {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(check.Currency))
}

// fetchLogin returns the contribution of one login. A failed fetch yields a
// contribution carrying the error so the login can be retried later.
func (s *Service) fetchLogin(ctx context.Context, project string, env domain.Env, geo, login, currency string) (domain.LoginContribution, error) {
	ref := domain.LoginRef{Project: project, Geo: geo, Env: env, Login: login}
	s.loadMetrics.IncFetch(string(env))

	methods, err := s.gateway.FetchMethods(ctx, ref)
	if err != nil {
		s.loadMetrics.IncFetchFailure(err)
		s.metrics.RecordLoginFetch(ctx, string(env), metrics.ClassifyFetchFailure(err))
		logger.WithLogin(logger.WithContext(ctx, s.log), geo, login).Warn("login fetch failed", zap.Error(err))
		return domain.LoginContribution{Login: login, Currency: currency, Error: err.Error()}, err
	}
	s.metrics.RecordLoginFetch(ctx, string(env), "")
	return domain.LoginContribution{Login: login, Methods: methods, Currency: currency}, nil
}

func (s *Service) aggregate(ctx context.Context, geo string, env domain.Env, policy engine.Policy, addHardcoded bool, contributions []domain.LoginContribution) *domain.GeoAggregate {
	agg := engine.Inject(engine.Build(geo, policy.Aliases, contributions), env, policy, addHardcoded)

	counts := make(map[domain.Provenance]int)
	for _, g := range agg.Groups {
		if g.IsSynthetic() {
			counts[g.Provenance]++
		}
	}
	for provenance, n := range counts {
		s.metrics.RecordSynthetic(ctx, string(provenance), n)
	}
	return agg
}

func (s *Service) publish(ctx context.Context, result *domain.LoadResult, kind string, started time.Time) (*domain.LoadResult, error) {
	log := logger.WithContext(ctx, s.log)
	result.CompletedAt = s.clock.Now()
	elapsed := result.CompletedAt.Sub(started)

	if err := s.store.Publish(ctx, result); err != nil {
		if errors.Is(err, domain.ErrStaleRun) {
			s.loadMetrics.IncStalePublish()
			s.loadMetrics.ObserveRun(kind, metrics.LoadStatusStale, elapsed)
			log.Info("stale run discarded", zap.String("scope", result.Scope))
			return nil, err
		}
		s.loadMetrics.ObserveRun(kind, metrics.LoadStatusFailed, elapsed)
		log.Error("publish run failed", zap.Error(err))
		return nil, err
	}

	status := result.Status()
	s.loadMetrics.ObserveRun(kind, status, elapsed)
	log.Info("load completed",
		zap.String("status", status),
		zap.Int("geos", len(result.Geos)),
		zap.Int("failures", len(result.Failures)),
		zap.Duration("duration", elapsed),
	)
	return result, nil
}

// runPolicy returns the policy a run was aggregated with. Runs without a
// readable snapshot fall back to the current policy.
func (s *Service) runPolicy(ctx context.Context, run *domain.LoadResult) engine.Policy {
	if len(run.Policy) > 0 {
		var cfg config.PolicyConfig
		err := json.Unmarshal(run.Policy, &cfg)
		if err == nil {
			return cfg.ToEngine()
		}
		logger.WithContext(ctx, s.log).Warn("run policy snapshot unreadable", zap.String("run_id", run.RunID.String()), zap.Error(err))
	}
	return s.policy.Get().ToEngine()
}

func replaceContribution(byGeo map[string][]domain.LoginContribution, geo string, c domain.LoginContribution) {
	list := byGeo[geo]
	for i := range list {
		if list[i].Login == c.Login {
			list[i] = c
			return
		}
	}
	byGeo[geo] = append(list, c)
}
