package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	CreateProject(ctx context.Context, db *gorm.DB, project *Project) error
	FindProjectByCode(ctx context.Context, db *gorm.DB, code string) (*Project, error)
	ListProjects(ctx context.Context, db *gorm.DB) ([]Project, error)

	CreateLogin(ctx context.Context, db *gorm.DB, login *Login) error
	NextLoginPosition(ctx context.Context, db *gorm.DB, projectID int64, geo string) (int, error)
	ListLogins(ctx context.Context, db *gorm.DB, projectID int64) ([]Login, error)
	DeleteLogin(ctx context.Context, db *gorm.DB, projectID, loginID int64) (bool, error)
}
