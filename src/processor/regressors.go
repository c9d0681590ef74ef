package processor

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"DealPropension/src/datasource/file"
	"DealPropension/src/utils"
)

// Names of the columns added by Augment.
const (
	Const          = "const"
	TicketsPerYear = "tickets_opened_per_year"

	squaredSuffix = "_squared"
	log1pSuffix   = "_log1p"
)

// continuousFields get a squared and a log1p companion, in this order.
var continuousFields = [...]string{
	file.Age,
	file.Csat,
	file.MonthlyIncome,
	file.NAccessSimulator,
	file.NPartners,
	file.Tenure,
	file.TicketsOpened,
}

func Squared(field string) string { return field + squaredSuffix }
func Log1p(field string) string   { return field + log1pSuffix }

// Augment returns a copy of df with the intercept, the squared and log1p transforms of the
// continuous fields, and the tickets-per-year ratio with its own transforms. Rows are neither
// added nor removed. Non-finite results (tenure 0 gives +Inf or NaN) are kept as they are.
func Augment(df dataframe.DataFrame) (dataframe.DataFrame, error) {
	if err := utils.RequireColumns(df, continuousFields[:]...); err != nil {
		return df, fmt.Errorf("augment: %w", err)
	}

	n := df.Nrow()
	added := make([]series.Series, 0, 2+3*len(continuousFields))

	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	added = append(added, series.New(ones, series.Float, Const))

	base := make(map[string][]float64, len(continuousFields))
	for _, field := range continuousFields {
		base[field] = df.Col(field).Float()
	}

	for _, field := range continuousFields {
		added = append(added, series.New(square(base[field]), series.Float, Squared(field)))
	}
	for _, field := range continuousFields {
		added = append(added, series.New(log1p(base[field]), series.Float, Log1p(field)))
	}

	ratio := divide(base[file.TicketsOpened], base[file.Tenure])
	added = append(added,
		series.New(ratio, series.Float, TicketsPerYear),
		series.New(square(ratio), series.Float, Squared(TicketsPerYear)),
		series.New(log1p(ratio), series.Float, Log1p(TicketsPerYear)),
	)

	out := df.CBind(dataframe.New(added...))
	if out.Err != nil {
		return df, fmt.Errorf("augment: %w", out.Err)
	}
	return out, nil
}

func square(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x * x
	}
	return out
}

// log1p follows math.Log1p: NaN below -1, -Inf at -1, +Inf at +Inf.
func log1p(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = math.Log1p(x)
	}
	return out
}

// divide is element-wise IEEE division: x/0 is ±Inf and 0/0 is NaN.
func divide(num, den []float64) []float64 {
	out := make([]float64, len(num))
	for i := range num {
		out[i] = num[i] / den[i]
	}
	return out
}

// NonFiniteCounts maps each float column holding NaN or ±Inf to how many such values it has.
func NonFiniteCounts(df dataframe.DataFrame) map[string]int {
	counts := make(map[string]int)
	for _, name := range df.Names() {
		col := df.Col(name)
		if col.Type() != series.Float {
			continue
		}
		for _, v := range col.Float() {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				counts[name]++
			}
		}
	}
	return counts
}

// sortedKeys is used to log NonFiniteCounts deterministically.
func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
