package rowio

import (
	"context"
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/zerfoo/metagraph/row"
)

// Parquet is a lazy, multi-pass Reader backed by a parquet file on
// disk. Each Iterator call reopens the file, so concurrent fold
// readers (meta/kfold admits k+1 simultaneous readers over the same
// dataset) never share a cursor.
type Parquet struct {
	path    string
	columns []string
}

// NewParquet opens path lazily: the file is not touched until Iterator
// is called. columns fixes which parquet fields become row positions,
// in order; pass nil to use the file's declared schema field order.
func NewParquet(path string, columns []string) *Parquet {
	return &Parquet{path: path, columns: columns}
}

// Iterator implements Reader.
func (p *Parquet) Iterator(_ context.Context) (Iterator, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("rowio: open %s: %w", p.path, err)
	}

	reader := parquet.NewReader(f)

	columns := p.columns
	if columns == nil {
		for _, field := range reader.Schema().Fields() {
			columns = append(columns, field.Name())
		}
	}

	return &parquetIterator{file: f, reader: reader, columns: columns}, nil
}

// Filter implements Reader.
func (p *Parquet) Filter(keep func(row.Row) bool) Reader {
	return &filteredReader{base: p, keep: keep}
}

// Map implements Reader.
func (p *Parquet) Map(fn func(row.Row) row.Row) Reader {
	return &mappedReader{base: p, fn: fn}
}

type parquetIterator struct {
	file    *os.File
	reader  *parquet.Reader
	columns []string
}

func (it *parquetIterator) Next(_ context.Context) (row.Row, error) {
	rec := make(map[string]any, len(it.columns))
	if err := it.reader.Read(&rec); err != nil {
		return nil, err
	}

	out := make(row.Row, len(it.columns))
	for i, name := range it.columns {
		if v, ok := rec[name]; ok {
			out[i] = v
		} else {
			out[i] = row.Absent
		}
	}
	return out, nil
}

func (it *parquetIterator) Close() error {
	closeErr := it.reader.Close()
	fileErr := it.file.Close()
	if closeErr != nil {
		return closeErr
	}
	return fileErr
}
