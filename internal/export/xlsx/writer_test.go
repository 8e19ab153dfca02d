package xlsx

import (
	"bytes"
	"strings"
	"testing"

	"github.com/smallbiznis/paymatrix/internal/export/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "GeoMethods_spin_DE_prod.xlsx", FileName("spin", "DE", "prod"))
	assert.Equal(t, "GeoMethods_spin_ALL_stage.xlsx", FileName("spin", "", "stage"))
}

func TestSheetName(t *testing.T) {
	used := map[string]struct{}{}
	assert.Equal(t, "CA_FR", SheetName("CA_FR", used))
	assert.Equal(t, "ca_fr_2", SheetName("ca_fr", used))
	assert.Equal(t, "A_B", SheetName("A/B", used))

	long := SheetName(strings.Repeat("X", 40), used)
	assert.Len(t, long, maxSheetName)
	again := SheetName(strings.Repeat("X", 40), used)
	assert.Len(t, again, maxSheetName)
	assert.True(t, strings.HasSuffix(again, "_2"))
}

func TestWrite(t *testing.T) {
	content, err := Write([]domain.Sheet{
		{Geo: "DE", Rows: []domain.Row{
			{Paymethod: "Trustly*", PaymentName: "Trustly_Banks", Currency: "EUR", Deposit: "YES", Withdraw: "YES", Status: "PROD", Details: "ALL", MinDep: "10 EUR"},
			{Paymethod: "Visa", PaymentName: "Visa_1DEP\nVisa_5DEP", Currency: "EUR", Deposit: "YES", Withdraw: "NO", Status: "PROD", Details: "1DEP\n5DEP", MinDep: "—"},
		}},
		{Geo: "FI", Rows: nil},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"DE", "FI"}, f.GetSheetList())

	rows, err := f.GetRows("DE")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, domain.Columns, rows[0])
	assert.Equal(t, "Trustly*", rows[1][0])
	assert.Equal(t, "Visa_1DEP\nVisa_5DEP", rows[2][1])
	assert.Equal(t, "—", rows[2][7])

	rows, err = f.GetRows("FI")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestWriteEmpty(t *testing.T) {
	_, err := Write(nil)
	assert.ErrorIs(t, err, domain.ErrEmptyExport)
}
