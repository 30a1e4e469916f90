package rowio

import (
	"context"
	"io"

	"github.com/zerfoo/metagraph/row"
)

// Slice is an in-memory Reader backed by a plain []row.Row, the
// default for tests and datasets small enough to fit in memory.
type Slice struct {
	rows []row.Row
}

// NewSlice wraps rows as a Reader. rows is not copied; callers must
// not mutate it afterward.
func NewSlice(rows []row.Row) *Slice {
	return &Slice{rows: rows}
}

// Iterator implements Reader.
func (s *Slice) Iterator(_ context.Context) (Iterator, error) {
	return &sliceIterator{rows: s.rows}, nil
}

// Filter implements Reader.
func (s *Slice) Filter(keep func(row.Row) bool) Reader {
	return &filteredReader{base: s, keep: keep}
}

// Map implements Reader.
func (s *Slice) Map(fn func(row.Row) row.Row) Reader {
	return &mappedReader{base: s, fn: fn}
}

type sliceIterator struct {
	rows   []row.Row
	cursor int
	closed bool
}

func (it *sliceIterator) Next(_ context.Context) (row.Row, error) {
	if it.closed {
		return nil, ErrClosed
	}
	if it.cursor >= len(it.rows) {
		return nil, io.EOF
	}
	r := it.rows[it.cursor]
	it.cursor++
	return r, nil
}

func (it *sliceIterator) Close() error {
	it.closed = true
	return nil
}

// filteredReader lazily admits only rows matching keep, without
// materializing the filtered set.
type filteredReader struct {
	base Reader
	keep func(row.Row) bool
}

func (f *filteredReader) Iterator(ctx context.Context) (Iterator, error) {
	base, err := f.base.Iterator(ctx)
	if err != nil {
		return nil, err
	}
	return &filteredIterator{base: base, keep: f.keep}, nil
}

func (f *filteredReader) Filter(keep func(row.Row) bool) Reader {
	return &filteredReader{base: f, keep: keep}
}

func (f *filteredReader) Map(fn func(row.Row) row.Row) Reader {
	return &mappedReader{base: f, fn: fn}
}

type filteredIterator struct {
	base Iterator
	keep func(row.Row) bool
}

func (it *filteredIterator) Next(ctx context.Context) (row.Row, error) {
	for {
		r, err := it.base.Next(ctx)
		if err != nil {
			return nil, err
		}
		if it.keep(r) {
			return r, nil
		}
	}
}

func (it *filteredIterator) Close() error {
	return it.base.Close()
}

// mappedReader lazily transforms each row via fn.
type mappedReader struct {
	base Reader
	fn   func(row.Row) row.Row
}

func (m *mappedReader) Iterator(ctx context.Context) (Iterator, error) {
	base, err := m.base.Iterator(ctx)
	if err != nil {
		return nil, err
	}
	return &mappedIterator{base: base, fn: m.fn}, nil
}

func (m *mappedReader) Filter(keep func(row.Row) bool) Reader {
	return &filteredReader{base: m, keep: keep}
}

func (m *mappedReader) Map(fn func(row.Row) row.Row) Reader {
	return &mappedReader{base: m, fn: fn}
}

type mappedIterator struct {
	base Iterator
	fn   func(row.Row) row.Row
}

func (it *mappedIterator) Next(ctx context.Context) (row.Row, error) {
	r, err := it.base.Next(ctx)
	if err != nil {
		return nil, err
	}
	return it.fn(r), nil
}

func (it *mappedIterator) Close() error {
	return it.base.Close()
}
