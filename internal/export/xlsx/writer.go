package xlsx

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/smallbiznis/paymatrix/internal/export/domain"
	"github.com/xuri/excelize/v2"
)

const (
	maxSheetName = 31
	defaultSheet = "Sheet1"
)

var columnWidths = []float64{28, 44, 10, 10, 10, 10, 14, 14}

// FileName is the download name of a workbook. geo is empty for a
// multi-GEO export.
func FileName(project, geo, env string) string {
	if strings.TrimSpace(geo) == "" {
		geo = "ALL"
	}
	return fmt.Sprintf("GeoMethods_%s_%s_%s.xlsx", project, geo, env)
}

// SheetName turns a GEO into a valid, unique worksheet name.
func SheetName(geo string, used map[string]struct{}) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.Trim(strings.TrimSpace(geo), "'"))
	if name == "" {
		name = "GEO"
	}
	name = truncate(name, maxSheetName)

	candidate := name
	for i := 2; ; i++ {
		if _, taken := used[strings.ToLower(candidate)]; !taken {
			break
		}
		suffix := fmt.Sprintf("_%d", i)
		candidate = truncate(name, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = struct{}{}
	return candidate
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Write renders one worksheet per GEO sheet and returns the workbook bytes.
func Write(sheets []domain.Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, domain.ErrEmptyExport
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "center"},
	})
	if err != nil {
		return nil, err
	}
	cellStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return nil, err
	}

	used := make(map[string]struct{}, len(sheets))
	for i, sheet := range sheets {
		name := SheetName(sheet.Geo, used)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
		if err := writeSheet(f, name, sheet.Rows, headerStyle, cellStyle); err != nil {
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
	}
	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, name string, rows []domain.Row, headerStyle, cellStyle int) error {
	header := make([]any, len(domain.Columns))
	for i, col := range domain.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}

	for i, row := range rows {
		values := row.Values()
		cells := make([]any, len(values))
		for j, v := range values {
			cells[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &cells); err != nil {
			return err
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(domain.Columns))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A1", lastCol+"1", headerStyle); err != nil {
		return err
	}
	if len(rows) > 0 {
		if err := f.SetCellStyle(name, "A2", fmt.Sprintf("%s%d", lastCol, len(rows)+1), cellStyle); err != nil {
			return err
		}
	}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(name, col, col, width); err != nil {
			return err
		}
	}
	return f.SetPanes(name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
