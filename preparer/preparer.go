// Package preparer defines the streaming/batch trainer contract a
// Preparable transformer's factory method returns.
package preparer

import (
	"context"

	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/rowio"
)

// Mode selects whether a Preparer needs a replayable reader at Finish.
type Mode int

const (
	// Stream preparers need only a single forward pass; they may
	// discard rows as they are processed and receive a nil reader at
	// Finish.
	Stream Mode = iota
	// Batch preparers receive a replayable rowio.Reader at Finish and
	// may iterate the data multiple times.
	Batch
)

func (m Mode) String() string {
	if m == Batch {
		return "batch"
	}
	return "stream"
}

// Result is the pair of prepared transformers a Preparer's Finish
// produces. Both fields are typed as `any` here (rather than
// transformer.Prepared) to avoid an import cycle between preparer and
// transformer; callers type-assert to transformer.Prepared.
type Result struct {
	ForPreparationData any
	ForNewData         any
}

// Preparer is the stateful accumulator a Preparable transformer
// produces when training begins.
type Preparer interface {
	// Mode reports whether Finish will receive a replayable reader.
	Mode() Mode

	// Process accepts one training row and updates internal state.
	Process(ctx context.Context, r row.Row) error

	// Finish produces the pair of prepared transformers. reader is nil
	// iff Mode() == Stream.
	Finish(ctx context.Context, reader rowio.Reader) (Result, error)
}

// Context exposes the executor resources a Preparer may need: the
// estimated number of examples it will see, and the parallelism
// available for any inner tasks it chooses to spawn (fold training,
// candidate evaluation).
type Context struct {
	EstimatedExampleCount int
	Parallelism           int
}
