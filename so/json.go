package so

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/teranos/lpharvest/errors"
)

// object is a row paired with its header; it marshals with keys in header order
type object struct {
	header []string
	row    Row
}

func (o object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range o.header {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')

		var v any
		if i < len(o.row) {
			v = o.row[i]
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", key)
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(w io.Writer, header []string, rows []Row) error {
	objects := make([]object, len(rows))
	for i, row := range rows {
		objects[i] = object{header: header, row: row}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(objects), "encode json")
}

func writeJSONLines(w io.Writer, header []string, rows []Row) error {
	enc := json.NewEncoder(w)
	for i, row := range rows {
		if err := enc.Encode(object{header: header, row: row}); err != nil {
			return errors.Wrapf(err, "encode row %d", i)
		}
	}
	return nil
}
