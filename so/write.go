package so

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/logger"
)

// RunInfo describes the harvest that produced the rows. Only the SQLite sink
// stores it.
type RunInfo struct {
	ID       string
	Query    string
	Status   string
	Started  time.Time
	Finished time.Time
}

// WriteOptions configures Write
type WriteOptions struct {
	Format    Format // empty: detect from the path's extension
	Delimiter rune   // CSV only; default ','
	Missing   string // text rendering of Missing
	Run       RunInfo
	Logger    *zap.SugaredLogger
}

// Write encodes header and rows to path. File sinks write to a temporary file
// in the target directory and rename it into place.
func Write(ctx context.Context, path string, header []string, rows []Row, opts WriteOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	format := opts.Format
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return err
		}
	}

	log := logger.OrNop(opts.Logger)
	start := time.Now()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create directory for %s", path)
		}
	}

	var err error
	if format == FormatSQLite {
		err = writeSQLite(ctx, path, header, rows, opts.Run, log)
	} else {
		err = writeFile(path, func(w io.Writer) error { return Encode(w, format, header, rows, opts) })
	}
	if err != nil {
		return errors.Wrapf(err, "write %s", path)
	}

	log.Infow("Output written",
		logger.FieldPath, path,
		logger.FieldFormat, string(format),
		logger.FieldCount, len(rows),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return nil
}

// Encode writes header and rows to w in one of the stream formats. SQLite
// needs a file and is rejected.
func Encode(w io.Writer, format Format, header []string, rows []Row, opts WriteOptions) error {
	switch format {
	case FormatCSV:
		delim := opts.Delimiter
		if delim == 0 {
			delim = ','
		}
		return writeDelimited(w, header, rows, delim, opts.Missing)
	case FormatTSV:
		return writeDelimited(w, header, rows, '\t', opts.Missing)
	case FormatJSON:
		return writeJSON(w, header, rows)
	case FormatJSONLines:
		return writeJSONLines(w, header, rows)
	case FormatYAML:
		return writeYAML(w, header, rows)
	case FormatSQLite:
		return errors.NewInvalidRequestError("format %q cannot be streamed, give an output path", format)
	default:
		return errors.NewInvalidRequestError("unsupported output format %q", format)
	}
}

func writeFile(path string, encode func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	buf := bufio.NewWriter(tmp)
	if err = encode(buf); err != nil {
		return err
	}
	if err = buf.Flush(); err != nil {
		return errors.Wrap(err, "flush")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(err, "chmod")
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "rename into place")
	}
	return nil
}
