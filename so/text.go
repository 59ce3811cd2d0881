package so

import (
	"encoding/csv"
	"io"

	"github.com/teranos/lpharvest/errors"
)

func writeDelimited(w io.Writer, header []string, rows []Row, delim rune, missing string) error {
	writer := csv.NewWriter(w)
	writer.Comma = delim

	if err := writer.Write(header); err != nil {
		return errors.Wrap(err, "failed to write headers")
	}
	for _, row := range rows {
		if err := writer.Write(row.Strings(missing)); err != nil {
			return errors.Wrap(err, "failed to write row")
		}
	}

	writer.Flush()
	return writer.Error()
}
