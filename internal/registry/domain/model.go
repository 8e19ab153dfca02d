package domain

import "time"

// Project is one brand whose GEOs and logins are queried against the backend.
type Project struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Code      string    `json:"code" gorm:"type:text;not null;uniqueIndex:ux_projects_code"`
	Name      string    `json:"name" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

func (Project) TableName() string { return "projects" }

// Login is a test account of a project in one GEO. Position preserves the
// order logins were registered in, which breaks ties between equal tiers.
type Login struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	ProjectID int64     `json:"project_id" gorm:"not null;uniqueIndex:ux_project_logins,priority:1"`
	Geo       string    `json:"geo" gorm:"type:text;not null;uniqueIndex:ux_project_logins,priority:2"`
	Login     string    `json:"login" gorm:"type:text;not null;uniqueIndex:ux_project_logins,priority:3"`
	Position  int       `json:"position" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
}

func (Login) TableName() string { return "project_logins" }
