// Package rowio defines the lazy, multi-pass Reader<Row> contract
// BATCH-mode preparers replay against, plus two concrete
// implementations: an in-memory slice reader and a parquet-backed
// reader for datasets too large to hold in memory.
package rowio

import (
	"context"
	"io"

	"github.com/zerfoo/metagraph/row"
)

// Iterator yields rows one at a time and must be released on every
// exit path.
type Iterator interface {
	// Next advances to the next row. It returns io.EOF when exhausted.
	Next(ctx context.Context) (row.Row, error)
	// Close releases any resources (open files, goroutines) held by
	// the iterator.
	Close() error
}

// Reader is a lazy, multi-pass readable sequence of rows. Filter and
// Map build new readers without materializing the underlying data;
// it is safe to open multiple Iterators concurrently against the same
// Reader (each fold preparer in meta/kfold and meta/bygroup does so).
type Reader interface {
	// Iterator opens a fresh cursor over the reader's rows.
	Iterator(ctx context.Context) (Iterator, error)
	// Filter returns a new Reader admitting only rows for which keep
	// returns true.
	Filter(keep func(row.Row) bool) Reader
	// Map returns a new Reader whose rows are the result of applying
	// fn to each row of the underlying reader.
	Map(fn func(row.Row) row.Row) Reader
}

// ErrClosed is returned by Next after Close has been called.
var ErrClosed = io.ErrClosedPipe
