package so

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/teranos/lpharvest/errors"
)

// writeYAML emits a sequence of mappings. Nodes are built by hand so keys keep
// header order.
func writeYAML(w io.Writer, header []string, rows []Row) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range rows {
		m := &yaml.Node{Kind: yaml.MappingNode}
		for i, key := range header {
			var v any
			if i < len(row) {
				v = row[i]
			}
			val, err := yamlValue(v)
			if err != nil {
				return errors.Wrapf(err, "field %s", key)
			}
			m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, val)
		}
		doc.Content = append(doc.Content, m)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "encode yaml")
	}
	return enc.Close()
}

func yamlValue(v any) (*yaml.Node, error) {
	node := &yaml.Node{}
	if err := node.Encode(normalize(v)); err != nil {
		return nil, err
	}
	return node, nil
}

// normalize converts json.Number and Missing into plain values the YAML
// encoder renders as numbers and null.
func normalize(v any) any {
	switch t := v.(type) {
	case MissingValue:
		return nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	default:
		return v
	}
}
