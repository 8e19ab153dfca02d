package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/paymatrix/internal/export/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, log *domain.ExportLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO export_logs (id, run_id, project, geo, env, export_type, provider, sheet_url, file_name, row_count, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID,
		log.RunID,
		log.Project,
		log.Geo,
		log.Env,
		log.ExportType,
		log.Provider,
		log.SheetURL,
		log.FileName,
		log.RowCount,
		log.Metadata,
		log.CreatedAt,
	).Error
}

func (r *repo) ListBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]domain.ExportLog, error) {
	var items []domain.ExportLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, run_id, project, geo, env, export_type, provider, sheet_url, file_name, row_count, metadata, created_at
		 FROM export_logs
		 WHERE created_at >= ? AND created_at < ?
		 ORDER BY created_at ASC, id ASC`,
		from,
		to,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListWithSheets(ctx context.Context, db *gorm.DB) ([]domain.ExportLog, error) {
	var items []domain.ExportLog
	err := db.WithContext(ctx).Raw(
		`SELECT id, run_id, project, geo, env, export_type, provider, sheet_url, file_name, row_count, metadata, created_at
		 FROM export_logs
		 WHERE sheet_url IS NOT NULL AND sheet_url <> ''
		 ORDER BY created_at DESC, id DESC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
