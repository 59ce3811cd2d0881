// Package so projects harvested records onto the requested output fields and
// writes the resulting rows to files.
package so

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/logpoint"
)

// Virtual fields, resolved from record metadata when the record itself does
// not carry a field of the same name.
const (
	FieldRepo = "_repo"
	FieldID   = "_id"
	FieldTime = "_time"
)

// MissingValue is the type of Missing
type MissingValue struct{}

// Missing stands in for a requested field that a record does not carry
var Missing = MissingValue{}

func (MissingValue) String() string { return "" }

// MarshalJSON encodes Missing as null
func (MissingValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// IsMissing reports whether v is the Missing sentinel
func IsMissing(v any) bool {
	_, ok := v.(MissingValue)
	return ok
}

// Row holds one record's values in field order
type Row []any

// Strings renders the row for text sinks, substituting missing for Missing
func (r Row) Strings(missing string) []string {
	out := make([]string, len(r))
	for i, v := range r {
		out[i] = FormatValue(v, missing)
	}
	return out
}

// FormatValue renders a single value as text
func FormatValue(v any, missing string) string {
	switch t := v.(type) {
	case MissingValue:
		return missing
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bool, float64, float32, int, int64, int32, uint, uint64, uint32:
		return fmt.Sprint(t)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// Mapper projects records onto an ordered field list
type Mapper struct {
	fields []string
}

// NewMapper fails only when the field list is empty or has a blank name
func NewMapper(fields []string) (*Mapper, error) {
	if len(fields) == 0 {
		return nil, errors.NewInvalidRequestError("at least one output field is required")
	}
	for i, f := range fields {
		if strings.TrimSpace(f) == "" {
			return nil, errors.NewInvalidRequestError("output field %d is blank", i)
		}
	}
	return &Mapper{fields: append([]string(nil), fields...)}, nil
}

// Fields returns the output field list, which is also the header
func (m *Mapper) Fields() []string {
	return append([]string(nil), m.fields...)
}

// Map returns rec's values in field order
func (m *Mapper) Map(rec logpoint.RawRecord) Row {
	row := make(Row, len(m.fields))
	for i, f := range m.fields {
		if v, ok := rec.Get(f); ok {
			row[i] = v
			continue
		}
		row[i] = virtual(rec, f)
	}
	return row
}

// MapAll maps a batch, preserving order
func (m *Mapper) MapAll(recs []logpoint.RawRecord) []Row {
	rows := make([]Row, len(recs))
	for i, rec := range recs {
		rows[i] = m.Map(rec)
	}
	return rows
}

func virtual(rec logpoint.RawRecord, field string) any {
	switch field {
	case FieldRepo:
		return rec.Repository
	case FieldID:
		if rec.ID != "" {
			return rec.ID
		}
	case FieldTime:
		if !rec.Timestamp.IsZero() {
			return rec.Timestamp.UTC().Format(time.RFC3339)
		}
	}
	return Missing
}
