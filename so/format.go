package so

import (
	"path/filepath"
	"strings"

	"github.com/teranos/lpharvest/errors"
)

// Format names an output encoding
type Format string

const (
	FormatCSV       Format = "csv"
	FormatTSV       Format = "tsv"
	FormatJSON      Format = "json"
	FormatJSONLines Format = "jsonl"
	FormatYAML      Format = "yaml"
	FormatSQLite    Format = "sqlite"
)

var extensions = map[string]Format{
	".csv":    FormatCSV,
	".tsv":    FormatTSV,
	".json":   FormatJSON,
	".jsonl":  FormatJSONLines,
	".ndjson": FormatJSONLines,
	".yaml":   FormatYAML,
	".yml":    FormatYAML,
	".db":     FormatSQLite,
	".sqlite": FormatSQLite,
}

// ParseFormat accepts a format name; empty and "auto" return ""
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", "auto":
		return "", nil
	case FormatCSV, FormatTSV, FormatJSON, FormatJSONLines, FormatYAML, FormatSQLite:
		return f, nil
	case "ndjson":
		return FormatJSONLines, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", errors.WithHint(errors.NewInvalidRequestError("unknown output format %q", s),
			"use csv, tsv, json, jsonl, yaml or sqlite")
	}
}

// DetectFormat picks a format from the path's extension
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	return "", errors.WithHint(errors.NewInvalidRequestError("cannot infer output format from %q", path),
		"use a .csv, .tsv, .json, .jsonl, .yaml or .db extension, or set output.format")
}
