package service

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/paymatrix/internal/clock"
	"github.com/smallbiznis/paymatrix/internal/methods/engine"
	"github.com/smallbiznis/paymatrix/internal/registry/domain"
	"github.com/smallbiznis/paymatrix/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxLoginLength = 128

// GEO codes are a country code optionally followed by qualifiers, e.g.
// "DE", "CA_FR" or "PL_PLN".
var geoPattern = regexp.MustCompile(`^[A-Z]{2}(_[A-Z0-9]+)*$`)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	genID *snowflake.Node
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("registry.service"),
		repo:  p.Repo,
		genID: p.GenID,
		clock: p.Clock,
	}
}

// NormalizeProject turns an operator-typed project name into its code.
func NormalizeProject(code string) string {
	return slug.Make(strings.TrimSpace(code))
}

// NormalizeGeo upper-cases a GEO code and reports whether it is well formed.
func NormalizeGeo(geo string) (string, bool) {
	geo = strings.ToUpper(strings.TrimSpace(geo))
	return geo, geoPattern.MatchString(geo)
}

func (s *Service) ListProjects(ctx context.Context) ([]domain.ProjectResponse, error) {
	items, err := s.repo.ListProjects(ctx, s.db)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.ProjectResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toProjectResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) CreateProject(ctx context.Context, req domain.CreateProjectRequest) (*domain.ProjectResponse, error) {
	code := NormalizeProject(req.Code)
	if code == "" {
		return nil, domain.ErrInvalidProject
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.Code)
	}
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	p := &domain.Project{
		ID:        s.genID.Generate().Int64(),
		Code:      code,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateProject(ctx, s.db, p); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrProjectExists
		}
		return nil, err
	}

	s.log.Info("project created", zap.String("project", code))
	resp := toProjectResponse(p)
	return &resp, nil
}

func (s *Service) GeoGroups(ctx context.Context, code string) ([]domain.GeoGroup, error) {
	project, err := s.findProject(ctx, code)
	if err != nil {
		return nil, err
	}

	logins, err := s.repo.ListLogins(ctx, s.db, project.ID)
	if err != nil {
		return nil, err
	}

	byGeo := make(map[string][]domain.LoginResponse)
	var geos []string
	for i := range logins {
		l := &logins[i]
		if _, ok := byGeo[l.Geo]; !ok {
			geos = append(geos, l.Geo)
		}
		byGeo[l.Geo] = append(byGeo[l.Geo], toLoginResponse(project.Code, l))
	}
	sort.Strings(geos)

	groups := make([]domain.GeoGroup, 0, len(geos))
	for _, geo := range geos {
		items := byGeo[geo]
		sort.SliceStable(items, func(i, j int) bool {
			return engine.LoginTier(items[i].Login) > engine.LoginTier(items[j].Login)
		})
		groups = append(groups, domain.GeoGroup{Geo: geo, Logins: items})
	}
	return groups, nil
}

func (s *Service) AddLogin(ctx context.Context, req domain.AddLoginRequest) (*domain.LoginResponse, error) {
	geo, ok := NormalizeGeo(req.Geo)
	if !ok {
		return nil, domain.ErrInvalidGeo
	}
	login := strings.TrimSpace(req.Login)
	if login == "" || len(login) > maxLoginLength || strings.ContainsAny(login, " \t\r\n") {
		return nil, domain.ErrInvalidLogin
	}

	project, err := s.findProject(ctx, req.Project)
	if err != nil {
		return nil, err
	}

	var created *domain.Login
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		position, err := s.repo.NextLoginPosition(ctx, tx, project.ID, geo)
		if err != nil {
			return err
		}
		created = &domain.Login{
			ID:        s.genID.Generate().Int64(),
			ProjectID: project.ID,
			Geo:       geo,
			Login:     login,
			Position:  position,
			CreatedAt: s.clock.Now(),
		}
		return s.repo.CreateLogin(ctx, tx, created)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrLoginExists
		}
		return nil, err
	}

	s.log.Info("login registered", zap.String("project", project.Code), zap.String("geo", geo))
	resp := toLoginResponse(project.Code, created)
	return &resp, nil
}

func (s *Service) RemoveLogin(ctx context.Context, code, loginID string) error {
	id, err := snowflake.ParseString(strings.TrimSpace(loginID))
	if err != nil {
		return domain.ErrInvalidID
	}
	project, err := s.findProject(ctx, code)
	if err != nil {
		return err
	}
	deleted, err := s.repo.DeleteLogin(ctx, s.db, project.ID, id.Int64())
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrLoginNotFound
	}
	return nil
}

func (s *Service) findProject(ctx context.Context, code string) (*domain.Project, error) {
	code = NormalizeProject(code)
	if code == "" {
		return nil, domain.ErrInvalidProject
	}
	project, err := s.repo.FindProjectByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, domain.ErrProjectNotFound
	}
	return project, nil
}

func toProjectResponse(p *domain.Project) domain.ProjectResponse {
	return domain.ProjectResponse{
		ID:        snowflake.ID(p.ID).String(),
		Code:      p.Code,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
	}
}

func toLoginResponse(project string, l *domain.Login) domain.LoginResponse {
	return domain.LoginResponse{
		ID:      snowflake.ID(l.ID).String(),
		Project: project,
		Geo:     l.Geo,
		Login:   l.Login,
	}
}
