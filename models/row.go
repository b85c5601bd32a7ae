package models

import (
	"fmt"
	"math/big"
	"time"
)

// Row represents a single query result row as column name to scalar value.
// Column order is carried separately on the ResultSet since Go maps are
// unordered.
type Row map[string]any

// ResultSet holds query results in engine execution order.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Empty returns a result set with no rows. Absence of data is not an error.
func Empty() *ResultSet {
	return &ResultSet{Columns: []string{}, Rows: []Row{}}
}

// Coerce maps an engine scalar to a JSON-native value. Values the engine
// returns that have no JSON representation are rendered as strings.
func Coerce(v any) any {
	switch val := v.(type) {
	case nil, bool, string, float32, float64,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case []byte:
		return string(val)
	case *big.Int:
		// Engines widen integer aggregates; narrow them back when they fit.
		if val.IsInt64() {
			return val.Int64()
		}
		return val.String()
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		return fmt.Sprint(val)
	}
}

// CoerceRow applies Coerce to every value of a row in place and returns it.
func CoerceRow(r Row) Row {
	for k, v := range r {
		r[k] = Coerce(v)
	}
	return r
}
