package repository

import (
	"context"

	"github.com/smallbiznis/paymatrix/internal/registry/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateProject(ctx context.Context, db *gorm.DB, project *domain.Project) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO projects (id, code, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		project.ID,
		project.Code,
		project.Name,
		project.CreatedAt,
		project.UpdatedAt,
	).Error
}

func (r *repo) FindProjectByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Project, error) {
	var p domain.Project
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, created_at, updated_at
		 FROM projects WHERE code = ?`,
		code,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) ListProjects(ctx context.Context, db *gorm.DB) ([]domain.Project, error) {
	var items []domain.Project
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, created_at, updated_at
		 FROM projects ORDER BY code ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CreateLogin(ctx context.Context, db *gorm.DB, login *domain.Login) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO project_logins (id, project_id, geo, login, position, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		login.ID,
		login.ProjectID,
		login.Geo,
		login.Login,
		login.Position,
		login.CreatedAt,
	).Error
}

func (r *repo) NextLoginPosition(ctx context.Context, db *gorm.DB, projectID int64, geo string) (int, error) {
	var next int
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(position), -1) + 1
		 FROM project_logins WHERE project_id = ? AND geo = ?`,
		projectID,
		geo,
	).Scan(&next).Error
	return next, err
}

func (r *repo) ListLogins(ctx context.Context, db *gorm.DB, projectID int64) ([]domain.Login, error) {
	var items []domain.Login
	err := db.WithContext(ctx).Raw(
		`SELECT id, project_id, geo, login, position, created_at
		 FROM project_logins WHERE project_id = ?
		 ORDER BY geo ASC, position ASC, id ASC`,
		projectID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) DeleteLogin(ctx context.Context, db *gorm.DB, projectID, loginID int64) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM project_logins WHERE project_id = ? AND id = ?`,
		projectID,
		loginID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
