package export

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Format identifies a rendered output type.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// Valid reports whether the format is one of the supported outputs.
func (f Format) Valid() bool {
	switch f {
	case FormatCSV, FormatPDF, FormatXLSX, FormatJSON:
		return true
	}
	return false
}

// ProducesFile is false for formats returned inline in the API response.
func (f Format) ProducesFile() bool {
	return f.Valid() && f != FormatJSON
}

// Dataset is the tabular result of a report query.
type Dataset struct {
	Title   string
	Headers []string
	Rows    [][]interface{}
}

// Len returns the number of data rows.
func (d Dataset) Len() int {
	return len(d.Rows)
}

// Records returns rows keyed by header, the shape used for JSON output.
func (d Dataset) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(d.Rows))
	for _, row := range d.Rows {
		record := make(map[string]interface{}, len(d.Headers))
		for i, header := range d.Headers {
			if i < len(row) {
				record[header] = normalize(row[i])
			}
		}
		out = append(out, record)
	}
	return out
}

// Cell renders a single value as text.
func Cell(value interface{}) string {
	switch v := normalize(value).(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case float64:
		return decimal.NewFromFloat(v).Round(2).String()
	case float32:
		return decimal.NewFromFloat32(v).Round(2).String()
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case decimal.Decimal:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// normalize turns driver byte slices into strings.
func normalize(value interface{}) interface{} {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
