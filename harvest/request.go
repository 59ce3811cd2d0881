package harvest

import (
	"strings"

	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/logpoint"
)

// ErrInvalidRequest marks caller contract violations
var ErrInvalidRequest = errors.ErrInvalidRequest

// SearchRequest is one logical harvest. Build it with NewSearchRequest; it is
// immutable afterwards.
type SearchRequest struct {
	query  string
	rng    logpoint.TimeRange
	repos  []string
	limit  int
	fields []string
}

// NewSearchRequest validates the parameters and copies the slices
func NewSearchRequest(query string, rng logpoint.TimeRange, repos []string, limit int, fields []string) (SearchRequest, error) {
	req := SearchRequest{
		query:  query,
		rng:    rng,
		repos:  append([]string(nil), repos...),
		limit:  limit,
		fields: append([]string(nil), fields...),
	}
	if err := req.Validate(); err != nil {
		return SearchRequest{}, err
	}
	return req, nil
}

// Validate checks the caller contract. NewSearchRequest already calls it; the
// coordinator calls it again so a zero SearchRequest is rejected too.
func (r SearchRequest) Validate() error {
	if len(r.repos) == 0 {
		return errors.WithHint(errors.NewInvalidRequestError("at least one repository is required"),
			"set search.repos or pass --repos")
	}
	seen := make(map[string]struct{}, len(r.repos))
	for _, repo := range r.repos {
		if strings.TrimSpace(repo) == "" {
			return errors.NewInvalidRequestError("repository names must not be blank")
		}
		if _, dup := seen[repo]; dup {
			return errors.NewInvalidRequestError("repository %q listed twice", repo)
		}
		seen[repo] = struct{}{}
	}

	if r.limit <= 0 {
		return errors.NewInvalidRequestError("limit must be at least 1, got %d", r.limit)
	}

	if len(r.fields) == 0 {
		return errors.WithHint(errors.NewInvalidRequestError("at least one output field is required"),
			"set search.fields or pass --fields")
	}
	for _, f := range r.fields {
		if strings.TrimSpace(f) == "" {
			return errors.NewInvalidRequestError("output field names must not be blank")
		}
	}

	if !r.rng.Valid() {
		return errors.NewInvalidRequestError("time range end %s is before start %s",
			r.rng.End.Format("2006-01-02T15:04:05Z07:00"), r.rng.Start.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

// Query returns the Logpoint query string
func (r SearchRequest) Query() string { return r.query }

// Range returns the search window
func (r SearchRequest) Range() logpoint.TimeRange { return r.rng }

// Repos returns a copy of the repository list in request order
func (r SearchRequest) Repos() []string { return append([]string(nil), r.repos...) }

// Limit returns the maximum number of records to emit
func (r SearchRequest) Limit() int { return r.limit }

// Fields returns a copy of the output field list
func (r SearchRequest) Fields() []string { return append([]string(nil), r.fields...) }
