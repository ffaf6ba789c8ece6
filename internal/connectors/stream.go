package connectors

import (
	"context"
	"io"
)

// SliceStream serves rows from memory. It is used by connectors that have to
// buffer a dataset (e.g. to sort it) and by tests.
type SliceStream struct {
	rows []Row
	pos  int
}

func NewSliceStream(rows []Row) *SliceStream {
	return &SliceStream{rows: rows}
}

func (s *SliceStream) Next(ctx context.Context) (Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *SliceStream) Close() error { return nil }

// watermarkStream tracks the watermark of the last yielded row that has one.
type watermarkStream struct {
	RowStream
	opts CheckpointOptions
	from *Watermark
	last *Watermark
}

// NewWatermarkStream wraps inner, which must yield rows in watermark order, as
// a CheckpointStream resuming from from.
func NewWatermarkStream(inner RowStream, from *Watermark, opts CheckpointOptions) CheckpointStream {
	return &watermarkStream{RowStream: inner, from: from, opts: opts}
}

func (s *watermarkStream) Next(ctx context.Context) (Row, error) {
	row, err := s.RowStream.Next(ctx)
	if err != nil {
		return nil, err
	}
	// A NULL watermark cannot be resumed from, so it never becomes the checkpoint.
	value := row[s.opts.WatermarkColumn]
	if value == nil {
		return row, nil
	}
	wm := &Watermark{Value: value}
	if s.opts.TieBreakerColumn != "" {
		wm.TieBreaker = row[s.opts.TieBreakerColumn]
	}
	if s.last == nil || CompareValues(value, s.last.Value) >= 0 {
		s.last = wm
	}
	return row, nil
}

func (s *watermarkStream) Checkpoint() *Watermark {
	if s.last == nil {
		return s.from
	}
	return s.last
}

// rowIdentityStream derives identities from a row stream.
type rowIdentityStream struct {
	rows    RowStream
	columns []string
}

// IdentitiesFromRows adapts a row stream into an identity stream over columns.
func IdentitiesFromRows(rows RowStream, columns []string) IdentityStream {
	return &rowIdentityStream{rows: rows, columns: columns}
}

func (s *rowIdentityStream) Next(ctx context.Context) (string, error) {
	row, err := s.rows.Next(ctx)
	if err != nil {
		return "", err
	}
	return IdentityOf(row, s.columns)
}

func (s *rowIdentityStream) Close() error { return s.rows.Close() }

// After reports whether row sorts strictly after from.
func After(row Row, from *Watermark, opts CheckpointOptions) bool {
	if from == nil || from.Value == nil {
		return true
	}
	c := CompareValues(row[opts.WatermarkColumn], from.Value)
	if c != 0 || opts.TieBreakerColumn == "" {
		return c > 0
	}
	return CompareValues(row[opts.TieBreakerColumn], from.TieBreaker) > 0
}
