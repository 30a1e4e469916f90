// Package dagexec provides the minimal DAG executor and the sub-DAG
// primitives (Placeholder, Constant, ArrayElement, VariadicList) the
// Best-Model Selector uses to build and prepare its internal
// evaluation sub-DAG. It is deliberately small: a general graph
// compiler/optimizer remains out of scope, this package exists only to
// make the meta-transformer core's own preparers runnable end to end.
package dagexec

import (
	"context"
	"fmt"

	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/transformer"
)

// Placeholder is a root producer that, during a sub-DAG pass, is fed
// the full array-valued row (one slot per selector input). It carries
// no computation of its own.
type Placeholder struct{}

// NewPlaceholder creates a Placeholder root.
func NewPlaceholder() *Placeholder { return &Placeholder{} }

func (*Placeholder) HasConstantResult() bool { return false }

// Constant is a root producer whose value never changes across rows.
type Constant struct {
	Value row.Value
}

// NewConstant wraps a fixed value as a root producer.
func NewConstant(v row.Value) *Constant { return &Constant{Value: v} }

func (*Constant) HasConstantResult() bool { return true }

// ArrayElement is a Prepared transformer over a single Placeholder
// input: it pulls the value at a fixed position out of the
// placeholder's array-valued row.
type ArrayElement struct {
	placeholder *Placeholder
	index       int
}

// NewArrayElement builds an accessor for position index of placeholder's
// array value.
func NewArrayElement(placeholder *Placeholder, index int) *ArrayElement {
	return &ArrayElement{placeholder: placeholder, index: index}
}

func (*ArrayElement) HasConstantResult() bool { return false }

func (e *ArrayElement) InputList() []producer.Producer {
	return []producer.Producer{e.placeholder}
}

func (e *ArrayElement) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	if len(inputs) != 1 {
		panic(fmt.Sprintf("dagexec: ArrayElement.WithInputs expects 1 input, got %d", len(inputs)))
	}
	ph, ok := inputs[0].(*Placeholder)
	if !ok {
		panic("dagexec: ArrayElement.WithInputs expects a *Placeholder")
	}
	return &ArrayElement{placeholder: ph, index: e.index}
}

func (*ArrayElement) Arity() int { return 1 }

// Apply implements transformer.Prepared. r has exactly one slot (this
// accessor's sole input is the placeholder); that slot holds the
// placeholder's array-valued row, out of which Apply pulls e.index.
func (e *ArrayElement) Apply(_ context.Context, _ any, r row.Row) (row.Value, error) {
	if len(r) != 1 {
		return row.Absent, fmt.Errorf("dagexec: array element expects 1 input, got %d", len(r))
	}
	arr, ok := r[0].([]row.Value)
	if !ok {
		return row.Absent, fmt.Errorf("dagexec: array element input is not array-valued (%T)", r[0])
	}
	if e.index < 0 || e.index >= len(arr) {
		return row.Absent, fmt.Errorf("dagexec: array element index %d out of range for array of length %d", e.index, len(arr))
	}
	return arr[e.index], nil
}

// Index returns the position this accessor reads.
func (e *ArrayElement) Index() int { return e.index }

// VariadicList is a Prepared transformer that packs its N inputs into
// a single []row.Value output, used to route multiple array-accessors
// into one value when a candidate/evaluator expects a list input.
type VariadicList struct {
	inputs []producer.Producer
}

// NewVariadicList packs inputs into a list-valued transformer.
func NewVariadicList(inputs ...producer.Producer) *VariadicList {
	return &VariadicList{inputs: inputs}
}

func (*VariadicList) HasConstantResult() bool { return false }

func (v *VariadicList) InputList() []producer.Producer { return v.inputs }

func (v *VariadicList) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	return &VariadicList{inputs: inputs}
}

func (v *VariadicList) Arity() int { return len(v.inputs) }

func (v *VariadicList) Apply(_ context.Context, _ any, r row.Row) (row.Value, error) {
	out := make([]row.Value, len(r))
	copy(out, r)
	return out, nil
}

var (
	_ producer.Producer      = (*Placeholder)(nil)
	_ producer.Producer      = (*Constant)(nil)
	_ transformer.Prepared   = (*ArrayElement)(nil)
	_ transformer.Prepared   = (*VariadicList)(nil)
)
