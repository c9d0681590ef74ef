package file

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gota/gota/dataframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/unicode/norm"

	"DealPropension/src/config"
	"DealPropension/src/utils"
)

const testSheet = "Página1"

var header = []interface{}{
	"Propensão", "Idade", "Gênero", "Região", "Acessos", "Sócios",
	"Renda", "Chamados", "Canal", "Tempo", "CSAT",
}

// customers covers every category, one row with a missing age and one with negative income.
var customers = [][]interface{}{
	{1, 34, "Feminino", "Sudeste", 3, 1, 5200.5, 2, "Chat", 4, 8},
	{0, 51, "Masculino", "Sul", 0, 2, 3100, 0, "Telefone", 10, 6},
	{1, nil, "Feminino", "Sul", 5, 1, 4000, 1, "Email", 2, 9},
	{0, 29, "Masculino", "Nordeste", 1, 0, -150, 3, "Chat", 1, 4},
	{1, 45, "Feminino", "Centro-Oeste", 2, 3, 8000, 5, "Email", 0, 7},
	{0, 38, "Masculino", "Norte", 4, 1, 0, 1, "Telefone", 6, 5},
}

func writeWorkbook(t *testing.T, sheet string, head []interface{}, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheet)
	require.NoError(t, err)
	f.SetActiveSheet(idx)

	require.NoError(t, f.SetSheetRow(sheet, "A1", &head))
	for i, row := range rows {
		r := row
		require.NoError(t, f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &r))
	}

	path := filepath.Join(t.TempDir(), "customers.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeWorkbook(t, testSheet, header, customers)

	df, err := Load(path, testSheet, DefaultOptions())
	require.NoError(t, err)

	// missing age and negative income are gone
	assert.Equal(t, 4, df.Nrow())
	assert.Equal(t, []string{
		Propension, Age, NAccessSimulator, NPartners, MonthlyIncome, TicketsOpened, Tenure, Csat,
		"gender_Feminino",
		"region_Centro-Oeste", "region_Nordeste", "region_Norte", "region_Sul",
		"customer_service_channel_Chat", "customer_service_channel_Email",
	}, df.Names())

	for _, v := range df.Col(MonthlyIncome).Float() {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	for _, name := range df.Names() {
		assert.False(t, df.Col(name).HasNaN(), name)
	}

	assert.Equal(t, []float64{34, 51, 45, 38}, df.Col(Age).Float())
	assert.Equal(t, []float64{5200.5, 3100, 8000, 0}, df.Col(MonthlyIncome).Float())
	assert.Equal(t, []float64{1, 0, 1, 0}, df.Col("gender_Feminino").Float())
	assert.Equal(t, []float64{0, 0, 1, 0}, df.Col("region_Centro-Oeste").Float())
}

func TestLoadDummyColumns(t *testing.T) {
	path := writeWorkbook(t, testSheet, header, customers)
	cardinality := map[string]int{Gender: 2, Region: 5, CustomerServiceChannel: 3}

	for _, drop := range []bool{true, false} {
		t.Run(fmt.Sprintf("drop=%v", drop), func(t *testing.T) {
			opts := Options{
				GetDummies:       true,
				DropDummyGender:  drop,
				DropDummyRegion:  drop,
				DropDummyChannel: drop,
			}
			df, err := Load(path, testSheet, opts)
			require.NoError(t, err)
			assert.Equal(t, len(customers), df.Nrow())

			for field, k := range cardinality {
				cols := dummyColumns(df, field)
				if drop {
					assert.Len(t, cols, k-1, field)
					ref, _ := ReferenceDummy(field)
					assert.NotContains(t, cols, ref)
					continue
				}
				require.Len(t, cols, k, field)
				for i := 0; i < df.Nrow(); i++ {
					sum := 0.0
					for _, c := range cols {
						sum += df.Col(c).Elem(i).Float()
					}
					assert.Equal(t, 1.0, sum, "%s row %d", field, i)
				}
			}
		})
	}
}

func dummyColumns(df dataframe.DataFrame, field string) []string {
	var out []string
	prefix := field + "_"
	for _, name := range df.Names() {
		if len(name) > len(prefix) && name[:len(prefix)] == prefix {
			out = append(out, name)
		}
	}
	return out
}

func TestLoadWithoutStages(t *testing.T) {
	path := writeWorkbook(t, testSheet, header, customers)

	df, err := Load(path, testSheet, Options{})
	require.NoError(t, err)

	assert.Equal(t, len(customers), df.Nrow())
	names := df.Names()
	require.Len(t, names, len(schema))
	for i, f := range Schema() {
		assert.Equal(t, f.Name, names[i])
	}
	assert.True(t, df.Col(Age).Elem(2).IsNA())
	assert.Equal(t, -150.0, df.Col(MonthlyIncome).Elem(3).Float())
	assert.Equal(t, "Centro-Oeste", df.Col(Region).Elem(4).String())
}

func TestOptionsFromConfig(t *testing.T) {
	assert.Equal(t, DefaultOptions(), OptionsFromConfig(config.Default().Loader))

	lc := config.Default().Loader
	lc.DropNA = false
	lc.DropDummyRegion = false
	opts := OptionsFromConfig(lc)
	assert.False(t, opts.DropNA)
	assert.False(t, opts.DropDummyRegion)
	assert.True(t, opts.GetDummies)
	assert.True(t, opts.DropDummyChannel)
}

func TestLoadMissingCategoryKeepsRow(t *testing.T) {
	rows := append([][]interface{}{}, customers...)
	rows = append(rows, []interface{}{0, 40, "Masculino", nil, 1, 1, 100, 0, "Chat", 3, 5})
	path := writeWorkbook(t, testSheet, header, rows)

	opts := DefaultOptions()
	opts.DropNA = false
	opts.DropNegativeMonthlyIncome = false
	opts.DropDummyRegion = false
	df, err := Load(path, testSheet, opts)
	require.NoError(t, err)

	last := df.Nrow() - 1
	for _, c := range dummyColumns(df, Region) {
		assert.Equal(t, 0.0, df.Col(c).Elem(last).Float(), c)
	}
}

func TestLoadIdempotent(t *testing.T) {
	path := writeWorkbook(t, testSheet, header, customers)

	first, err := Load(path, testSheet, DefaultOptions())
	require.NoError(t, err)
	second, err := Load(path, testSheet, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, first.Records(), second.Records())
}

func TestLoadBytesMatchesLoad(t *testing.T) {
	path := writeWorkbook(t, testSheet, header, customers)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	fromFile, err := Load(path, testSheet, DefaultOptions())
	require.NoError(t, err)
	fromBytes, err := LoadBytes(data, testSheet, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, fromFile.Records(), fromBytes.Records())
}

func TestLoadNormalizesSheetName(t *testing.T) {
	path := writeWorkbook(t, norm.NFD.String(testSheet), header, customers)

	df, err := Load(path, testSheet, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 4, df.Nrow())
}

func TestLoadErrors(t *testing.T) {
	good := writeWorkbook(t, testSheet, header, customers)

	notWorkbook := filepath.Join(t.TempDir(), "notes.xlsx")
	require.NoError(t, os.WriteFile(notWorkbook, []byte("not a zip"), 0644))

	row := func(mut func([]interface{})) [][]interface{} {
		r := append([]interface{}{}, customers[0]...)
		mut(r)
		return [][]interface{}{r}
	}

	tests := []struct {
		name    string
		path    string
		sheet   string
		wantErr error
	}{
		{"missing file", filepath.Join(t.TempDir(), "absent.xlsx"), testSheet, ErrDataAccess},
		{"not a workbook", notWorkbook, testSheet, ErrDataAccess},
		{"missing sheet", good, "Sheet9", ErrSchema},
		{"ten columns", writeWorkbook(t, testSheet, header[:10], customers), testSheet, ErrSchema},
		{"text age", writeWorkbook(t, testSheet, header, row(func(r []interface{}) { r[1] = "trinta" })), testSheet, ErrSchema},
		{"fractional count", writeWorkbook(t, testSheet, header, row(func(r []interface{}) { r[4] = 2.5 })), testSheet, ErrSchema},
		{"count overflow", writeWorkbook(t, testSheet, header, row(func(r []interface{}) { r[9] = 300 })), testSheet, ErrSchema},
		{"text income", writeWorkbook(t, testSheet, header, row(func(r []interface{}) { r[6] = "alta" })), testSheet, ErrSchema},
		{"unobserved reference", writeWorkbook(t, testSheet, header, customers[1:5]), testSheet, utils.ErrMissingColumn},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path, tt.sheet, DefaultOptions())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFieldParse(t *testing.T) {
	u8 := Field{"B", Age, KindUint8}
	v, err := u8.parse(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, "42", v)
	v, err = u8.parse("7.0")
	require.NoError(t, err)
	assert.Equal(t, "7", v)
	_, err = u8.parse("-1")
	assert.Error(t, err)

	fl := Field{"G", MonthlyIncome, KindFloat}
	v, err = fl.parse("-12.25")
	require.NoError(t, err)
	assert.Equal(t, "-12.25", v)
	v, err = fl.parse("")
	require.NoError(t, err)
	assert.Equal(t, naValue, v)

	cat := Field{"D", Region, KindCategory}
	v, err = cat.parse(norm.NFD.String(" São Paulo "))
	require.NoError(t, err)
	assert.Equal(t, "São Paulo", v)
}
