package progress

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Event is one structured progress event
type Event struct {
	Type      string                 `json:"type"` // "repo_started", "page", "repo_finished", "summary"
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// JSONEmitter writes one JSON event per line
type JSONEmitter struct {
	mu      sync.Mutex
	encoder *json.Encoder
	now     func() time.Time
}

// NewJSONEmitter creates a JSON progress emitter writing to w
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	return &JSONEmitter{encoder: json.NewEncoder(w), now: time.Now}
}

func (e *JSONEmitter) emit(typ string, data map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.encoder.Encode(Event{Type: typ, Timestamp: e.now().UTC(), Data: data})
}

// RepoStarted emits a repo_started event
func (e *JSONEmitter) RepoStarted(repo string, cap int) {
	e.emit("repo_started", map[string]interface{}{"repo": repo, "cap": cap})
}

// PageFetched emits a page event
func (e *JSONEmitter) PageFetched(repo string, page int, records int, total int) {
	data := map[string]interface{}{"repo": repo, "page": page, "records": records}
	if total >= 0 {
		data["total"] = total
	}
	e.emit("page", data)
}

// RepoFinished emits a repo_finished event
func (e *JSONEmitter) RepoFinished(repo string, status string, records int, err error) {
	data := map[string]interface{}{"repo": repo, "status": status, "records": records}
	if err != nil {
		data["error"] = err.Error()
	}
	e.emit("repo_finished", data)
}

// Summary emits a summary event
func (e *JSONEmitter) Summary(s Summary) {
	e.emit("summary", map[string]interface{}{
		"run_id":      s.RunID,
		"status":      s.Status,
		"records":     s.Records,
		"limit":       s.Limit,
		"duration_ms": s.Duration.Milliseconds(),
		"repos":       s.Repos,
	})
}
