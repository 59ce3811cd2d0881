package logpoint

import (
	"encoding/base64"
	"encoding/json"

	"github.com/teranos/lpharvest/errors"
)

// cursor is the state needed to resume a Logpoint search
type cursor struct {
	SearchID    string `json:"s"`
	SeenVersion *int64 `json:"v,omitempty"`
}

func (c cursor) encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (cursor, error) {
	var c cursor
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, errors.Wrap(err, "decode cursor")
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, errors.Wrap(err, "decode cursor")
	}
	if c.SearchID == "" {
		return c, errors.New("cursor has no search id")
	}
	return c, nil
}
