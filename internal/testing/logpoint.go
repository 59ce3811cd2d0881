package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Row is one Logpoint result row
type Row = map[string]any

// Fault lets a test replace the response to a call. Returning handled=false
// falls through to the normal behaviour.
type Fault func(call int, requestData map[string]any) (status int, body string, handled bool)

// FakeLogpoint is an httptest server speaking the /getsearchlogs protocol.
//
// Each repository is a list of batches. Retrieving with seen_version v returns
// batch v and version v+1, so a retried retrieval returns the same rows.
type FakeLogpoint struct {
	Server    *httptest.Server
	Account   string
	SecretKey string

	mu       sync.Mutex
	repos    map[string][][]Row
	searches map[string]*fakeSearch
	fault    Fault
	calls    int
	starts   []map[string]any
}

type fakeSearch struct {
	repo    string
	batches [][]Row
}

// NewFakeLogpoint starts a fake server; it is closed via t.Cleanup
func NewFakeLogpoint(t *testing.T) *FakeLogpoint {
	t.Helper()
	f := &FakeLogpoint{
		Account:   "partner",
		SecretKey: "s3cret",
		repos:     make(map[string][][]Row),
		searches:  make(map[string]*fakeSearch),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake
func (f *FakeLogpoint) URL() string {
	return f.Server.URL
}

// SetRepo registers the batches a repository returns
func (f *FakeLogpoint) SetRepo(repo string, batches ...[]Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[repo] = batches
}

// SetFault installs a fault injector
func (f *FakeLogpoint) SetFault(fault Fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fault = fault
}

// Calls returns the number of requests served
func (f *FakeLogpoint) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Starts returns the requestData of every search start
func (f *FakeLogpoint) Starts() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.starts...)
}

func (f *FakeLogpoint) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/getsearchlogs" {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(r.PostForm.Get("requestData")), &data); err != nil {
		http.Error(w, "bad requestData", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls++
	call := f.calls
	fault := f.fault
	f.mu.Unlock()

	if fault != nil {
		if status, body, handled := fault(call, data); handled {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}
	}

	if r.PostForm.Get("username") != f.Account || r.PostForm.Get("secret_key") != f.SecretKey {
		writeJSON(w, map[string]any{"success": false, "message": "Authentication failed"})
		return
	}

	if _, ok := data["search_id"]; ok {
		f.retrieve(w, data)
		return
	}
	f.start(w, data)
}

func (f *FakeLogpoint) start(w http.ResponseWriter, data map[string]any) {
	repos, _ := data["repos"].([]any)
	if len(repos) != 1 {
		writeJSON(w, map[string]any{"success": false, "message": "exactly one repo expected"})
		return
	}
	repo := fmt.Sprint(repos[0])
	if q, _ := data["query"].(string); q == "INVALID" {
		writeJSON(w, map[string]any{"success": false, "message": "Query syntax error near INVALID"})
		return
	}
	limit := -1
	if l, ok := data["limit"].(float64); ok {
		limit = int(l)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, data)

	batches := truncateBatches(f.repos[repo], limit)
	id := fmt.Sprintf("search-%d", len(f.starts))
	f.searches[id] = &fakeSearch{repo: repo, batches: batches}
	writeJSON(w, map[string]any{"success": true, "search_id": id})
}

func (f *FakeLogpoint) retrieve(w http.ResponseWriter, data map[string]any) {
	id := fmt.Sprint(data["search_id"])
	seen := 0
	if v, ok := data["seen_version"].(float64); ok {
		seen = int(v)
	}

	f.mu.Lock()
	s, ok := f.searches[id]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, map[string]any{"success": false, "message": "unknown search id " + id})
		return
	}

	rows := []Row{}
	if seen < len(s.batches) {
		rows = s.batches[seen]
	}
	total := 0
	for _, b := range s.batches {
		total += len(b)
	}
	writeJSON(w, map[string]any{
		"success":    true,
		"final":      seen+1 >= len(s.batches),
		"version":    seen + 1,
		"rows":       rows,
		"totalCount": total,
	})
}

func truncateBatches(batches [][]Row, limit int) [][]Row {
	if limit < 0 {
		return batches
	}
	out := make([][]Row, 0, len(batches))
	left := limit
	for _, b := range batches {
		if left <= 0 {
			break
		}
		if len(b) > left {
			b = b[:left]
		}
		out = append(out, b)
		left -= len(b)
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
