package utils

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/xuri/excelize/v2"
)

// ErrMissingColumn is returned when a frame lacks a column a stage depends on.
var ErrMissingColumn = errors.New("missing column")

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// HasColumn reports whether df has a column called name.
func HasColumn(df dataframe.DataFrame, name string) bool {
	return Contains(df.Names(), name)
}

// RequireColumns fails with ErrMissingColumn naming every absent column.
func RequireColumns(df dataframe.DataFrame, names ...string) error {
	var missing []string
	have := df.Names()
	for _, name := range names {
		if !Contains(have, name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingColumn, missing)
	}
	return nil
}

// FloatColumn returns a copy of column name as float64; NA elements become NaN.
func FloatColumn(df dataframe.DataFrame, name string) ([]float64, error) {
	if err := RequireColumns(df, name); err != nil {
		return nil, err
	}
	return df.Col(name).Float(), nil
}

// RowsWhere returns the indices of the rows for which keep returns true.
func RowsWhere(df dataframe.DataFrame, keep func(row int) bool) []int {
	idx := make([]int, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	return idx
}

// SaveToExcel writes df to sheetName of a new workbook at filePath, header on row 1.
// NA cells stay empty; ±Inf and NaN are written as text since xlsx has no such numbers.
func SaveToExcel(df dataframe.DataFrame, filePath, sheetName string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheetName == "" {
		sheetName = "Sheet1"
	}
	if sheetName != "Sheet1" {
		idx, err := f.NewSheet(sheetName)
		if err != nil {
			return fmt.Errorf("create sheet %s: %w", sheetName, err)
		}
		f.SetActiveSheet(idx)
	}

	colNames := df.Names()
	for i, name := range colNames {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, name); err != nil {
			return err
		}
	}

	for colIdx, colName := range colNames {
		col := df.Col(colName)
		for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := setCell(f, sheetName, cell, col.Elem(rowIdx)); err != nil {
				return err
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("save workbook %s: %w", filePath, err)
	}
	return nil
}

func setCell(f *excelize.File, sheet, cell string, e series.Element) error {
	if e.IsNA() && e.Type() != series.Float {
		return nil
	}
	switch e.Type() {
	case series.Int:
		v, err := e.Int()
		if err != nil {
			return err
		}
		return f.SetCellValue(sheet, cell, v)
	case series.Float:
		v := e.Float()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return f.SetCellStr(sheet, cell, strconv.FormatFloat(v, 'g', -1, 64))
		}
		return f.SetCellFloat(sheet, cell, v, -1, 64)
	case series.Bool:
		v, err := e.Bool()
		if err != nil {
			return err
		}
		return f.SetCellBool(sheet, cell, v)
	default:
		return f.SetCellStr(sheet, cell, e.String())
	}
}
