package file

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"DealPropension/src/utils"
)

// dropNA keeps the rows without a missing element in any column.
func dropNA(df dataframe.DataFrame) dataframe.DataFrame {
	cols := make([]series.Series, 0, df.Ncol())
	for _, name := range df.Names() {
		cols = append(cols, df.Col(name))
	}

	idx := utils.RowsWhere(df, func(i int) bool {
		for _, col := range cols {
			if col.Elem(i).IsNA() {
				return false
			}
		}
		return true
	})
	if len(idx) == df.Nrow() {
		return df
	}
	return df.Subset(idx)
}

// getDummies replaces each categorical column with one 0/1 column per observed category,
// in sorted category order, then drops the reference columns the options ask for.
// A missing category leaves every indicator of that row at 0.
func getDummies(df dataframe.DataFrame, opts Options) (dataframe.DataFrame, error) {
	fields := categoricalFields[:]
	if err := utils.RequireColumns(df, fields...); err != nil {
		return df, err
	}

	var dummies []series.Series
	for _, field := range fields {
		col := df.Col(field)
		for _, category := range categories(col) {
			vals := make([]int, col.Len())
			for i := range vals {
				if e := col.Elem(i); !e.IsNA() && e.String() == category {
					vals[i] = 1
				}
			}
			dummies = append(dummies, series.New(vals, series.Int, DummyName(field, category)))
		}
	}

	df = df.Drop(fields)
	if len(dummies) > 0 {
		df = df.CBind(dataframe.New(dummies...))
	}

	for _, field := range fields {
		if !opts.dropReference(field) {
			continue
		}
		name := referenceDummies[field]
		if !utils.HasColumn(df, name) {
			return df, fmt.Errorf("drop reference dummy of %s: %w: %s", field, utils.ErrMissingColumn, name)
		}
		df = df.Drop(name)
	}
	return df, nil
}

// categories returns the distinct non-missing values of col, sorted.
func categories(col series.Series) []string {
	seen := make(map[string]struct{})
	for i := 0; i < col.Len(); i++ {
		e := col.Elem(i)
		if e.IsNA() {
			continue
		}
		seen[e.String()] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// dropNegativeIncome keeps the rows whose income is present and non-negative.
func dropNegativeIncome(df dataframe.DataFrame) dataframe.DataFrame {
	income, err := utils.FloatColumn(df, MonthlyIncome)
	if err != nil {
		return df
	}
	idx := utils.RowsWhere(df, func(i int) bool {
		return !math.IsNaN(income[i]) && income[i] >= 0
	})
	if len(idx) == df.Nrow() {
		return df
	}
	return df.Subset(idx)
}
