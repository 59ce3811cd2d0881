package so

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/logpoint"
)

var ts = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func record(fields map[string]any) logpoint.RawRecord {
	return logpoint.RawRecord{Repository: "repo-a", ID: "id-1", Timestamp: ts, Fields: fields}
}

func TestNewMapper(t *testing.T) {
	_, err := NewMapper(nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))

	_, err = NewMapper([]string{"msg", " "})
	assert.True(t, errors.IsInvalidRequestError(err))

	fields := []string{"time", "msg"}
	m, err := NewMapper(fields)
	require.NoError(t, err)
	fields[0] = "changed"
	assert.Equal(t, []string{"time", "msg"}, m.Fields())
}

func TestMap_MissingFieldYieldsSentinel(t *testing.T) {
	m, err := NewMapper([]string{"time", "user", "msg"})
	require.NoError(t, err)

	row := m.Map(record(map[string]any{"time": "12:00", "msg": "hello"}))
	require.Len(t, row, 3)
	assert.Equal(t, "12:00", row[0])
	assert.Equal(t, Missing, row[1])
	assert.True(t, IsMissing(row[1]))
	assert.Equal(t, "hello", row[2])

	assert.Equal(t, []string{"12:00", "-", "hello"}, row.Strings("-"))
}

func TestMap_VirtualFields(t *testing.T) {
	m, err := NewMapper([]string{"_repo", "_id", "_time"})
	require.NoError(t, err)

	row := m.Map(record(map[string]any{}))
	assert.Equal(t, Row{"repo-a", "id-1", "2026-10-01T12:00:00Z"}, row)

	// record fields take precedence
	row = m.Map(record(map[string]any{"_id": json.Number("77")}))
	assert.Equal(t, json.Number("77"), row[1])

	untimed := logpoint.RawRecord{Repository: "r", Fields: map[string]any{}}
	assert.True(t, IsMissing(m.Map(untimed)[2]))
}

func TestMapAll(t *testing.T) {
	m, err := NewMapper([]string{"msg"})
	require.NoError(t, err)

	rows := m.MapAll([]logpoint.RawRecord{
		record(map[string]any{"msg": "a"}),
		record(map[string]any{}),
		record(map[string]any{"msg": "c"}),
	})
	require.Len(t, rows, 3)
	assert.Equal(t, "a", rows[0][0])
	assert.True(t, IsMissing(rows[1][0]))
	assert.Empty(t, m.MapAll(nil))
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{Missing, "N/A"},
		{"text", "text"},
		{json.Number("1759320000123"), "1759320000123"},
		{true, "true"},
		{float64(1.5), "1.5"},
		{ts, "2026-10-01T12:00:00Z"},
		{map[string]any{"b": 1, "a": "x"}, `{"a":"x","b":1}`},
		{[]any{"x", json.Number("2")}, `["x",2]`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValue(tt.in, "N/A"), "%#v", tt.in)
	}
}
