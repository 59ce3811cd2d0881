package am

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/teranos/lpharvest/errors"
)

// ParseList reads a list-valued setting. TOML arrays are taken element by
// element; a single string (from an environment variable or a flag) is split
// like a shell command line, and unquoted commas also separate items, so
//
//	repos = "127.0.0.1:5504/_logpoint,'10.0.0.7:5504/repo one'"
//
// yields two repositories.
func ParseList(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return splitList(v)
	case []string:
		return trimAll(v), nil
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			items = append(items, fmt.Sprint(item))
		}
		return trimAll(items), nil
	default:
		return nil, errors.Newf("expected a list or a string, got %T", value)
	}
}

func splitList(s string) ([]string, error) {
	words, err := shellquote.Split(s)
	if err != nil {
		return nil, errors.Wrapf(err, "parse list %q", s)
	}

	// a quoted word keeps its commas only when it was quoted as a whole
	var items []string
	for _, w := range words {
		if isQuotedIn(s, w) {
			items = append(items, w)
			continue
		}
		items = append(items, strings.Split(w, ",")...)
	}
	return trimAll(items), nil
}

func isQuotedIn(s, word string) bool {
	return strings.Contains(s, "'"+word+"'") || strings.Contains(s, `"`+word+`"`)
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
