package service

import (
	"context"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/paymatrix/internal/clock"
	"github.com/smallbiznis/paymatrix/internal/export/domain"
	"github.com/smallbiznis/paymatrix/internal/export/xlsx"
	methodsdomain "github.com/smallbiznis/paymatrix/internal/methods/domain"
	obscontext "github.com/smallbiznis/paymatrix/internal/observability/context"
	"github.com/smallbiznis/paymatrix/internal/observability/logger"
	"github.com/smallbiznis/paymatrix/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Methods methodsdomain.Service
	Sheets  domain.SheetsClient
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	methods methodsdomain.Service
	sheets  domain.SheetsClient
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("export.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		methods: p.Methods,
		sheets:  p.Sheets,
		metrics: p.Metrics,
	}
}

// prepared is a run rendered into per-GEO sheets.
type prepared struct {
	run    *methodsdomain.LoadResult
	geo    string
	kind   domain.Type
	sheets []domain.Sheet
	rows   int
}

func (s *Service) prepare(ctx context.Context, req domain.Request) (*prepared, error) {
	run, err := s.methods.GetRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	views, err := s.methods.View(ctx, methodsdomain.ViewRequest{RunID: req.RunID, Geo: req.Geo, Filter: req.Filter})
	if err != nil {
		return nil, err
	}

	p := &prepared{run: run, kind: exportType(run, req.Geo)}
	if len(views) == 1 && p.kind == domain.TypeSingle {
		p.geo = views[0].Geo
	}
	for _, view := range views {
		rows := Rows(view)
		p.rows += len(rows)
		p.sheets = append(p.sheets, domain.Sheet{Geo: view.Geo, Rows: rows})
	}
	if p.rows == 0 {
		return nil, domain.ErrEmptyExport
	}
	return p, nil
}

func exportType(run *methodsdomain.LoadResult, geo string) domain.Type {
	switch {
	case geo != "" || (len(run.Geos) == 1 && !run.FullProject):
		return domain.TypeSingle
	case run.FullProject:
		return domain.TypeFull
	default:
		return domain.TypeMulti
	}
}

func (s *Service) XLSX(ctx context.Context, req domain.Request) (*domain.Workbook, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	content, err := xlsx.Write(p.sheets)
	if err != nil {
		return nil, err
	}
	wb := &domain.Workbook{
		FileName: xlsx.FileName(p.run.Project, p.geo, string(p.run.Env)),
		Content:  content,
	}

	s.record(ctx, p, domain.ProviderXLSX, func(l *domain.ExportLog) {
		l.FileName = wb.FileName
	})
	return wb, nil
}

func (s *Service) Sheets(ctx context.Context, req domain.Request) (*domain.SheetsResult, error) {
	p, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	// Empty GEOs have nothing to show in a sheet.
	payload := domain.SheetsPayload{Project: p.run.Project, Env: string(p.run.Env)}
	for _, sheet := range p.sheets {
		if len(sheet.Rows) > 0 {
			payload.Sheets = append(payload.Sheets, sheet)
		}
	}

	url, err := s.sheets.Submit(ctx, payload)
	if err != nil {
		logger.WithContext(ctx, s.log).Warn("sheets export failed",
			zap.String("run_id", p.run.RunID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.record(ctx, p, domain.ProviderSheets, func(l *domain.ExportLog) {
		l.SheetURL = url
	})
	return &domain.SheetsResult{SheetURL: url}, nil
}

// record writes the export log entry. A failed write never fails the export.
func (s *Service) record(ctx context.Context, p *prepared, provider domain.Provider, apply func(*domain.ExportLog)) {
	geos := make([]string, 0, len(p.sheets))
	for _, sheet := range p.sheets {
		geos = append(geos, sheet.Geo)
	}
	geo := p.geo
	if geo == "" {
		geo = "ALL"
	}

	entry := &domain.ExportLog{
		ID:         s.genID.Generate().Int64(),
		RunID:      p.run.RunID.Int64(),
		Project:    p.run.Project,
		Geo:        geo,
		Env:        string(p.run.Env),
		ExportType: p.kind,
		Provider:   provider,
		RowCount:   p.rows,
		Metadata:   datatypes.JSONMap{"geos": geos},
		CreatedAt:  s.clock.Now(),
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		entry.Metadata["request_id"] = requestID
	}
	apply(entry)

	s.metrics.RecordExport(ctx, string(provider), string(p.kind))

	log := logger.WithContext(ctx, s.log)
	if err := s.repo.Insert(ctx, s.db, entry); err != nil {
		log.Error("record export failed", zap.Error(err))
		return
	}
	log.Info("export recorded",
		zap.String("provider", string(provider)),
		zap.String("export_type", string(p.kind)),
		zap.Int("rows", p.rows),
	)
}

func (s *Service) Today(ctx context.Context) (*domain.TodaySummary, error) {
	now := s.clock.Now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	items, err := s.repo.ListBetween(ctx, s.db, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	summary := &domain.TodaySummary{
		Total:    len(items),
		Projects: []string{},
		ByType:   map[string]int{},
		ByEnv:    map[string]int{},
		Exports:  items,
	}
	if summary.Exports == nil {
		summary.Exports = []domain.ExportLog{}
	}
	seen := make(map[string]struct{})
	for _, item := range items {
		if _, ok := seen[item.Project]; !ok {
			seen[item.Project] = struct{}{}
			summary.Projects = append(summary.Projects, item.Project)
		}
		summary.ByType[string(item.ExportType)]++
		summary.ByEnv[item.Env]++
	}
	sort.Strings(summary.Projects)
	return summary, nil
}

// LatestSheets returns the newest spreadsheet export of every project.
func (s *Service) LatestSheets(ctx context.Context) (map[string]domain.ExportLog, error) {
	items, err := s.repo.ListWithSheets(ctx, s.db)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]domain.ExportLog)
	for _, item := range items {
		if _, ok := latest[item.Project]; !ok {
			latest[item.Project] = item
		}
	}
	return latest, nil
}
