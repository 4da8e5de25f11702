package sink

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/Sumatoshi-tech/githarvest/pkg/records"
)

// Stdout names the standard output as a sink target.
const Stdout = "-"

// WriteCloser is a Sink that must be closed to flush its records.
type WriteCloser interface {
	records.Sink
	Close() error
}

// Open selects a sink by target: Stdout writes JSON lines to stdout,
// sqlite:/// and postgres:// URLs open a Database, anything else is a JSON
// lines file path (an optional file:// prefix is stripped). compress applies
// to JSON lines only.
func Open(ctx context.Context, target string, compress bool, stdout io.Writer, logger *slog.Logger) (WriteCloser, error) {
	switch {
	case target == Stdout:
		if compress {
			return NewCompressedJSONLines(stdout), nil
		}

		return NewJSONLines(stdout), nil
	case strings.HasPrefix(target, "sqlite:///"),
		strings.HasPrefix(target, "postgres://"),
		strings.HasPrefix(target, "postgresql://"):
		db, err := OpenDatabase(ctx, target, logger)
		if err != nil {
			return nil, err
		}

		return db, nil
	default:
		file, err := CreateJSONLines(strings.TrimPrefix(target, "file://"), compress)
		if err != nil {
			return nil, err
		}

		return file, nil
	}
}
