package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	XLSX(ctx context.Context, req Request) (*Workbook, error)
	Sheets(ctx context.Context, req Request) (*SheetsResult, error)
	Today(ctx context.Context) (*TodaySummary, error)
	LatestSheets(ctx context.Context) (map[string]ExportLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, log *ExportLog) error
	ListBetween(ctx context.Context, db *gorm.DB, from, to time.Time) ([]ExportLog, error)
	ListWithSheets(ctx context.Context, db *gorm.DB) ([]ExportLog, error)
}

// SheetsClient submits rendered sheets to the spreadsheet backend and returns
// the URL of the created document.
type SheetsClient interface {
	Submit(ctx context.Context, payload SheetsPayload) (string, error)
}

type Request struct {
	RunID  snowflake.ID `json:"run_id"`
	Geo    string       `json:"geo,omitempty"`
	Filter string       `json:"filter,omitempty"`
}

type SheetsPayload struct {
	Sheets  []Sheet `json:"sheets"`
	Project string  `json:"project"`
	Env     string  `json:"env"`
}

type Workbook struct {
	FileName string
	Content  []byte
}

type SheetsResult struct {
	SheetURL string `json:"sheet_url"`
}

type TodaySummary struct {
	Total    int            `json:"total"`
	Projects []string       `json:"projects"`
	ByType   map[string]int `json:"by_type"`
	ByEnv    map[string]int `json:"by_env"`
	Exports  []ExportLog    `json:"exports"`
}

var (
	ErrEmptyExport       = errors.New("empty_export")
	ErrSheetsUnavailable = errors.New("sheets_unavailable")
)

// SheetsError is a rejection reported by the spreadsheet backend. Status 0
// means a success:false response.
type SheetsError struct {
	Status int
	Detail string
}

func (e *SheetsError) Error() string {
	if e.Status == 0 {
		return "sheets export rejected: " + e.Detail
	}
	return fmt.Sprintf("sheets export status %d: %s", e.Status, e.Detail)
}
