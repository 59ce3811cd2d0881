package logpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Credentials identify the caller to Logpoint. Immutable once built.
type Credentials struct {
	BaseURL   string
	Account   string
	SecretKey string
}

// NewCredentials normalizes the base URL (trailing slash removed, as the
// Logpoint plugin does) and returns the credentials.
func NewCredentials(baseURL, account, secretKey string) Credentials {
	return Credentials{
		BaseURL:   strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		Account:   account,
		SecretKey: secretKey,
	}
}

// String redacts the secret key
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s (secret redacted)", c.Account, c.BaseURL)
}

// TimeRange is a closed search window
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether both bounds are set and End is not before Start
func (r TimeRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && !r.End.Before(r.Start)
}

// wire returns the [start, end] epoch-seconds pair Logpoint expects
func (r TimeRange) wire() []int64 {
	return []int64{r.Start.Unix(), r.End.Unix()}
}

// PageRequest asks for one page of a repository's results
type PageRequest struct {
	Repository string
	Query      string
	Range      TimeRange
	Cursor     string // empty starts a new search
	Limit      int    // maximum rows the search may produce for this repository
}

// PageResponse is one page of results
type PageResponse struct {
	Records    []RawRecord
	NextCursor string // empty when the search is final
	Total      int    // best-effort total count, -1 when unknown
	Started    bool   // the call only started the search
}

// HasMore reports whether another page may follow
func (p *PageResponse) HasMore() bool {
	return p.NextCursor != ""
}

// RawRecord is one log row as returned by Logpoint
type RawRecord struct {
	Repository string
	ID         string
	Timestamp  time.Time
	Fields     map[string]any
}

// Get returns a field value and whether the record carries it
func (r RawRecord) Get(field string) (any, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// RecordOptions names the fields that carry identity and time
type RecordOptions struct {
	IDField        string
	TimestampField string
}

// NewRecord builds a RawRecord from a decoded row. When the row lacks an id the
// identity is derived from the repository and the row content, so the same row
// seen twice yields the same identity.
func NewRecord(repo string, row map[string]any, opts RecordOptions) RawRecord {
	rec := RawRecord{Repository: repo, Fields: row}

	if v, ok := row[opts.IDField]; ok && v != nil {
		if id := fmt.Sprint(v); id != "" {
			rec.ID = id
		}
	}
	if rec.ID == "" {
		rec.ID = contentID(repo, row)
	}

	if v, ok := row[opts.TimestampField]; ok {
		if ts, ok := ParseTimestamp(v); ok {
			rec.Timestamp = ts
		}
	}
	return rec
}

func contentID(repo string, row map[string]any) string {
	h := sha256.New()
	h.Write([]byte(repo))
	h.Write([]byte{0})
	// encoding/json sorts map keys, which makes the digest stable
	b, err := json.Marshal(row)
	if err != nil {
		fmt.Fprintf(h, "%v", row)
	} else {
		h.Write(b)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}

// ParseTimestamp interprets epoch numbers (seconds, milliseconds, microseconds or
// nanoseconds, chosen by magnitude), numeric strings and RFC3339 strings.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return fromEpoch(float64(i)), true
		}
		if f, err := t.Float64(); err == nil {
			return fromEpoch(f), true
		}
	case float64:
		return fromEpoch(t), true
	case int:
		return fromEpoch(float64(t)), true
	case int64:
		return fromEpoch(float64(t)), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC(), true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpoch(f), true
		}
	case time.Time:
		return t.UTC(), true
	}
	return time.Time{}, false
}

func fromEpoch(f float64) time.Time {
	abs := math.Abs(f)
	switch {
	case abs >= 1e17:
		return time.Unix(0, int64(f)).UTC()
	case abs >= 1e14:
		return time.UnixMicro(int64(f)).UTC()
	case abs >= 1e11:
		return time.UnixMilli(int64(f)).UTC()
	default:
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
}
