// reader.go
package file

import (
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"

	"DealPropension/src/config"
)

// Options switches the optional loader stages. The zero value disables all of them;
// DefaultOptions enables all of them.
type Options struct {
	DropNA                    bool
	GetDummies                bool
	DropNegativeMonthlyIncome bool
	DropDummyGender           bool
	DropDummyRegion           bool
	DropDummyChannel          bool
}

func DefaultOptions() Options {
	return Options{
		DropNA:                    true,
		GetDummies:                true,
		DropNegativeMonthlyIncome: true,
		DropDummyGender:           true,
		DropDummyRegion:           true,
		DropDummyChannel:          true,
	}
}

// OptionsFromConfig maps the loader section of config.json onto Options.
func OptionsFromConfig(c config.LoaderConfig) Options {
	return Options{
		DropNA:                    c.DropNA,
		GetDummies:                c.GetDummies,
		DropNegativeMonthlyIncome: c.DropNegativeMonthlyIncome,
		DropDummyGender:           c.DropDummyGender,
		DropDummyRegion:           c.DropDummyRegion,
		DropDummyChannel:          c.DropDummyChannel,
	}
}

// dropReference reports whether the reference indicator of field is dropped.
func (o Options) dropReference(field string) bool {
	switch field {
	case Gender:
		return o.DropDummyGender
	case Region:
		return o.DropDummyRegion
	case CustomerServiceChannel:
		return o.DropDummyChannel
	}
	return false
}

// Load reads sheetName of the workbook at filePath and runs the preparation stages.
// Every call returns a new frame; the file is only read.
func Load(filePath, sheetName string, opts Options) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.New(), fmt.Errorf("%w: open %s: %w", ErrDataAccess, filePath, err)
	}
	return loadWorkbook(xlFile, sheetName, opts)
}

// LoadBytes is Load over an in-memory workbook, e.g. a mail attachment.
func LoadBytes(data []byte, sheetName string, opts Options) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenBinary(data)
	if err != nil {
		return dataframe.New(), fmt.Errorf("%w: open workbook: %w", ErrDataAccess, err)
	}
	return loadWorkbook(xlFile, sheetName, opts)
}

func loadWorkbook(xlFile *xlsx.File, sheetName string, opts Options) (dataframe.DataFrame, error) {
	sheet := findSheet(xlFile, sheetName)
	if sheet == nil {
		return dataframe.New(), fmt.Errorf("%w: sheet %q not found", ErrSchema, sheetName)
	}

	// 1. typed parse of columns A-K
	df, err := convertSheetToDataFrame(sheet)
	if err != nil {
		return dataframe.New(), err
	}

	// 2. missing values
	if opts.DropNA {
		df = dropNA(df)
	}

	// 3. indicator columns
	if opts.GetDummies {
		df, err = getDummies(df, opts)
		if err != nil {
			return dataframe.New(), err
		}
	}

	// 4. income filter, after encoding
	if opts.DropNegativeMonthlyIncome {
		df = dropNegativeIncome(df)
	}

	if df.Err != nil {
		return dataframe.New(), fmt.Errorf("prepare frame: %w", df.Err)
	}
	return df, nil
}

func findSheet(xlFile *xlsx.File, name string) *xlsx.Sheet {
	if sheet, ok := xlFile.Sheet[name]; ok {
		return sheet
	}
	want := normalizeLabel(name)
	for _, sheet := range xlFile.Sheets {
		if normalizeLabel(sheet.Name) == want {
			return sheet
		}
	}
	return nil
}

// convertSheetToDataFrame maps the sheet positionally onto the schema. Row 1 is the header
// row and is skipped; fully blank rows are ignored.
func convertSheetToDataFrame(sheet *xlsx.Sheet) (dataframe.DataFrame, error) {
	if len(sheet.Rows) == 0 {
		return dataframe.New(), fmt.Errorf("%w: sheet %q is empty", ErrSchema, sheet.Name)
	}

	if n := headerWidth(sheet.Rows[0]); n < len(schema) {
		return dataframe.New(), fmt.Errorf("%w: sheet %q has %d header columns, want %d (A-%s)",
			ErrSchema, sheet.Name, n, len(schema), schema[len(schema)-1].Column)
	}

	columns := make([][]string, len(schema))
	for i := range columns {
		columns[i] = make([]string, 0, len(sheet.Rows)-1)
	}

	for r, row := range sheet.Rows[1:] {
		if isBlank(row) {
			continue
		}
		for c, field := range schema {
			v, err := field.parse(cellValue(row, c))
			if err != nil {
				return dataframe.New(), fmt.Errorf("%w: row %d column %s (%s, %s): %v",
					ErrSchema, r+2, field.Column, field.Name, field.Kind, err)
			}
			columns[c] = append(columns[c], v)
		}
	}

	seriesList := make([]series.Series, len(schema))
	for c, field := range schema {
		seriesList[c] = series.New(columns[c], seriesType(field.Kind), field.Name)
	}

	df := dataframe.New(seriesList...)
	if df.Err != nil {
		return dataframe.New(), fmt.Errorf("%w: %w", ErrSchema, df.Err)
	}
	return df, nil
}

func seriesType(k Kind) series.Type {
	switch k {
	case KindUint8:
		return series.Int
	case KindFloat:
		return series.Float
	default:
		return series.String
	}
}

func cellValue(row *xlsx.Row, c int) string {
	if row == nil || c >= len(row.Cells) || row.Cells[c] == nil {
		return ""
	}
	return row.Cells[c].Value
}

// headerWidth counts the leading non-empty header cells.
func headerWidth(row *xlsx.Row) int {
	n := 0
	for c := 0; c < len(schema); c++ {
		if strings.TrimSpace(cellValue(row, c)) == "" {
			break
		}
		n++
	}
	return n
}

func isBlank(row *xlsx.Row) bool {
	for c := range schema {
		if strings.TrimSpace(cellValue(row, c)) != "" {
			return false
		}
	}
	return true
}
