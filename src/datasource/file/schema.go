package file

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	// ErrDataAccess means the workbook could not be opened or read.
	ErrDataAccess = errors.New("data access")
	// ErrSchema means the workbook does not have the fixed A-K layout.
	ErrSchema = errors.New("schema mismatch")
)

// Kind is the parsed type of a source column.
type Kind int

const (
	KindUint8 Kind = iota // counts, scores and the 0/1 label
	KindFloat
	KindCategory
)

func (k Kind) String() string {
	switch k {
	case KindUint8:
		return "uint8"
	case KindFloat:
		return "float"
	case KindCategory:
		return "category"
	default:
		return "unknown"
	}
}

// Field maps one source column letter to its name and kind.
type Field struct {
	Column string
	Name   string
	Kind   Kind
}

// Field names as they appear in the loaded frame.
const (
	Propension             = "propension"
	Age                    = "age"
	Gender                 = "gender"
	Region                 = "region"
	NAccessSimulator       = "n_access_simulator"
	NPartners              = "n_partners"
	MonthlyIncome          = "monthly_income"
	TicketsOpened          = "tickets_opened"
	CustomerServiceChannel = "customer_service_channel"
	Tenure                 = "tenure"
	Csat                   = "csat"
)

// schema is the positional layout of the source sheet. Header text is never consulted.
var schema = [...]Field{
	{"A", Propension, KindUint8},
	{"B", Age, KindUint8},
	{"C", Gender, KindCategory},
	{"D", Region, KindCategory},
	{"E", NAccessSimulator, KindUint8},
	{"F", NPartners, KindUint8},
	{"G", MonthlyIncome, KindFloat},
	{"H", TicketsOpened, KindUint8},
	{"I", CustomerServiceChannel, KindCategory},
	{"J", Tenure, KindUint8},
	{"K", Csat, KindUint8},
}

// categoricalFields are expanded into indicator columns, in this order.
var categoricalFields = [...]string{Gender, Region, CustomerServiceChannel}

// referenceDummies are the indicator columns dropped to keep the design matrix full rank.
// They are fixed choices, not derived from the data.
var referenceDummies = map[string]string{
	Gender:                 Gender + "_Masculino",
	Region:                 Region + "_Sudeste",
	CustomerServiceChannel: CustomerServiceChannel + "_Telefone",
}

// Schema returns a copy of the positional source layout.
func Schema() []Field {
	out := make([]Field, len(schema))
	copy(out, schema[:])
	return out
}

// ReferenceDummy returns the indicator column dropped for a categorical field.
func ReferenceDummy(field string) (string, bool) {
	name, ok := referenceDummies[field]
	return name, ok
}

// DummyName is the indicator column name for one category of field.
func DummyName(field, category string) string {
	return field + "_" + category
}

// naValue is the token gota treats as a missing element.
const naValue = "NaN"

// parse turns a raw cell value into the string gota parses for this field's series type.
func (f Field) parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return naValue, nil
	}

	switch f.Kind {
	case KindUint8:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("%q is not a number", raw)
		}
		if v != math.Trunc(v) || v < 0 || v > math.MaxUint8 {
			return "", fmt.Errorf("%q is not an integer in 0..255", raw)
		}
		return strconv.Itoa(int(v)), nil
	case KindFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("%q is not a number", raw)
		}
		if math.IsNaN(v) {
			return naValue, nil
		}
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	default:
		return normalizeLabel(raw), nil
	}
}

// normalizeLabel puts category labels and sheet names in NFC so accented names compare equal
// whichever form the workbook stored them in.
func normalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
