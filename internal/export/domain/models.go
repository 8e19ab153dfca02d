package domain

import (
	"time"

	"gorm.io/datatypes"
)

type Provider string

const (
	ProviderXLSX   Provider = "xlsx"
	ProviderSheets Provider = "sheets"
)

// Type mirrors how much of a run an export covers.
type Type string

const (
	TypeSingle Type = "single"
	TypeMulti  Type = "multi"
	TypeFull   Type = "full"
)

// ExportLog records one finished export.
type ExportLog struct {
	ID         int64             `json:"id,string" gorm:"primaryKey"`
	RunID      int64             `json:"run_id,string" gorm:"not null"`
	Project    string            `json:"project" gorm:"type:text;not null"`
	Geo        string            `json:"geo" gorm:"type:text;not null"`
	Env        string            `json:"env" gorm:"type:text;not null"`
	ExportType Type              `json:"export_type" gorm:"type:text;not null"`
	Provider   Provider          `json:"provider" gorm:"type:text;not null"`
	SheetURL   string            `json:"sheet_url,omitempty" gorm:"type:text"`
	FileName   string            `json:"file_name,omitempty" gorm:"type:text"`
	RowCount   int               `json:"row_count" gorm:"not null;default:0"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;index:ix_export_logs_created_at"`
}

func (ExportLog) TableName() string { return "export_logs" }

// Column headers of an exported table, in order.
const (
	ColumnPaymethod   = "Paymethod"
	ColumnPaymentName = "Payment Name"
	ColumnCurrency    = "Currency"
	ColumnDeposit     = "Deposit"
	ColumnWithdraw    = "Withdraw"
	ColumnStatus      = "Status"
	ColumnDetails     = "Details"
	ColumnMinDep      = "Min Dep"
)

var Columns = []string{
	ColumnPaymethod,
	ColumnPaymentName,
	ColumnCurrency,
	ColumnDeposit,
	ColumnWithdraw,
	ColumnStatus,
	ColumnDetails,
	ColumnMinDep,
}

// Row is one ranked method group rendered for export.
type Row struct {
	Paymethod   string `json:"Paymethod"`
	PaymentName string `json:"Payment Name"`
	Currency    string `json:"Currency"`
	Deposit     string `json:"Deposit"`
	Withdraw    string `json:"Withdraw"`
	Status      string `json:"Status"`
	Details     string `json:"Details"`
	MinDep      string `json:"Min Dep"`
}

// Values returns the cells in Columns order.
func (r Row) Values() []string {
	return []string{r.Paymethod, r.PaymentName, r.Currency, r.Deposit, r.Withdraw, r.Status, r.Details, r.MinDep}
}

// Sheet is the rows of one GEO.
type Sheet struct {
	Geo  string `json:"geo"`
	Rows []Row  `json:"rows"`
}
