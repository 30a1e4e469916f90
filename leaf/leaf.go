// Package leaf provides the handful of concrete leaf transformers
// needed to exercise the meta-transformer family end to end: the
// literal scenarios in spec.md section 8 (XOR candidates, a trained-value
// set recorder, a Rank transformer) and a couple of trivial building
// blocks (Identity, Constant). Spec.md explicitly places concrete leaf
// transformers out of scope for the core, so this package is kept
// intentionally minimal: just enough to write the literal tests.
package leaf

import (
	"context"
	"fmt"
	"sort"

	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/rowio"
	"github.com/zerfoo/metagraph/transformer"
)

// staticPreparable is shared scaffolding for leaf transformers whose
// "training" ignores the data entirely and always yields the same
// Prepared pair (XOR, IdentityOnA, Identity, Constant below).
type staticPreparable struct {
	inputs []producer.Producer
	build  func(inputs []producer.Producer) transformer.Prepared
}

func (s *staticPreparable) HasConstantResult() bool         { return false }
func (s *staticPreparable) InputList() []producer.Producer  { return s.inputs }
func (s *staticPreparable) Arity() int                      { return len(s.inputs) }
func (s *staticPreparable) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	return &staticPreparable{inputs: inputs, build: s.build}
}

func (s *staticPreparable) Preparer(_ context.Context, _ preparer.Context) (preparer.Preparer, error) {
	return &staticPreparer{result: s.build(s.inputs)}, nil
}

type staticPreparer struct {
	result transformer.Prepared
}

func (p *staticPreparer) Mode() preparer.Mode                      { return preparer.Stream }
func (p *staticPreparer) Process(_ context.Context, _ row.Row) error { return nil }
func (p *staticPreparer) Finish(_ context.Context, _ rowio.Reader) (preparer.Result, error) {
	return preparer.Result{ForPreparationData: p.result, ForNewData: p.result}, nil
}

// staticPrepared is a Prepared transformer whose Apply is a fixed
// function of its input row, with no execution cache.
type staticPrepared struct {
	inputs []producer.Producer
	fn     func(row.Row) (row.Value, error)
}

func (s *staticPrepared) HasConstantResult() bool        { return false }
func (s *staticPrepared) InputList() []producer.Producer { return s.inputs }
func (s *staticPrepared) Arity() int                      { return len(s.inputs) }
func (s *staticPrepared) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	return &staticPrepared{inputs: inputs, fn: s.fn}
}
func (s *staticPrepared) Apply(_ context.Context, _ any, r row.Row) (row.Value, error) {
	return s.fn(r)
}

// XOR is the "correct XOR function" candidate from the best-model
// scenario: a Preparable over two boolean/int-valued inputs whose
// prepared form returns their logical XOR.
func XOR(a, b producer.Producer) transformer.Preparable {
	return &staticPreparable{
		inputs: []producer.Producer{a, b},
		build: func(inputs []producer.Producer) transformer.Prepared {
			return &staticPrepared{inputs: inputs, fn: func(r row.Row) (row.Value, error) {
				av, bv, err := twoInts(r)
				if err != nil {
					return row.Absent, err
				}
				if (av != 0) != (bv != 0) {
					return 1, nil
				}
				return 0, nil
			}}
		},
	}
}

// IdentityOnA is the "identity on a" decoy candidate from the
// best-model scenario: returns its first input unchanged, ignoring the
// second.
func IdentityOnA(a, b producer.Producer) transformer.Preparable {
	return &staticPreparable{
		inputs: []producer.Producer{a, b},
		build: func(inputs []producer.Producer) transformer.Prepared {
			return &staticPrepared{inputs: inputs, fn: func(r row.Row) (row.Value, error) {
				if len(r) < 1 {
					return row.Absent, fmt.Errorf("leaf.IdentityOnA: expected 2 inputs, got %d", len(r))
				}
				return r[0], nil
			}}
		},
	}
}

// Identity is a trivial one-input passthrough Preparable.
func Identity(in producer.Producer) transformer.Preparable {
	return &staticPreparable{
		inputs: []producer.Producer{in},
		build: func(inputs []producer.Producer) transformer.Prepared {
			return &staticPrepared{inputs: inputs, fn: func(r row.Row) (row.Value, error) {
				if len(r) != 1 {
					return row.Absent, fmt.Errorf("leaf.Identity: expected 1 input, got %d", len(r))
				}
				return r[0], nil
			}}
		},
	}
}

// Constant is a zero-input-dependent Preparable whose prepared form
// always returns v, regardless of training data or the (possibly
// empty) input row.
func Constant(v row.Value, inputs ...producer.Producer) transformer.Preparable {
	return &staticPreparable{
		inputs: inputs,
		build: func(ins []producer.Producer) transformer.Prepared {
			return &staticPrepared{inputs: ins, fn: func(_ row.Row) (row.Value, error) {
				return v, nil
			}}
		},
	}
}

func twoInts(r row.Row) (int, int, error) {
	if len(r) != 2 {
		return 0, 0, fmt.Errorf("leaf.XOR: expected 2 inputs, got %d", len(r))
	}
	a, err := asInt(r[0])
	if err != nil {
		return 0, 0, err
	}
	b, err := asInt(r[1])
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func asInt(v row.Value) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("leaf: expected int or bool, got %T", v)
	}
}

var (
	_ transformer.Preparable = (*staticPreparable)(nil)
	_ transformer.Prepared   = (*staticPrepared)(nil)
)

// Rank is a Preparable over one numeric input: it learns the sorted
// order of the distinct values seen during (streaming) preparation and, once
// prepared, maps each input value to its 0-based rank. Values never
// seen during training map to Absent.
type Rank struct {
	input producer.Producer
}

// NewRank builds a Rank transformer over a single input.
func NewRank(input producer.Producer) *Rank {
	return &Rank{input: input}
}

func (r *Rank) HasConstantResult() bool        { return false }
func (r *Rank) InputList() []producer.Producer { return []producer.Producer{r.input} }
func (r *Rank) Arity() int                     { return 1 }
func (r *Rank) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	if len(inputs) != 1 {
		panic("leaf.Rank: expected 1 input")
	}
	return &Rank{input: inputs[0]}
}

func (r *Rank) Preparer(_ context.Context, _ preparer.Context) (preparer.Preparer, error) {
	return &rankPreparer{input: r.input, seen: make(map[int]struct{})}, nil
}

type rankPreparer struct {
	input producer.Producer
	seen  map[int]struct{}
}

func (p *rankPreparer) Mode() preparer.Mode { return preparer.Stream }

func (p *rankPreparer) Process(_ context.Context, r row.Row) error {
	if len(r) != 1 {
		return fmt.Errorf("leaf.Rank: expected 1 input, got %d", len(r))
	}
	if row.IsAbsent(r[0]) {
		return nil
	}
	v, err := asInt(r[0])
	if err != nil {
		return err
	}
	p.seen[v] = struct{}{}
	return nil
}

func (p *rankPreparer) Finish(_ context.Context, _ rowio.Reader) (preparer.Result, error) {
	values := make([]int, 0, len(p.seen))
	for v := range p.seen {
		values = append(values, v)
	}
	sort.Ints(values)

	rankOf := make(map[int]int, len(values))
	for i, v := range values {
		rankOf[v] = i
	}

	prepared := &staticPrepared{
		inputs: []producer.Producer{p.input},
		fn: func(r row.Row) (row.Value, error) {
			if len(r) != 1 {
				return row.Absent, fmt.Errorf("leaf.Rank: expected 1 input, got %d", len(r))
			}
			if row.IsAbsent(r[0]) {
				return row.Absent, nil
			}
			v, err := asInt(r[0])
			if err != nil {
				return row.Absent, err
			}
			rnk, ok := rankOf[v]
			if !ok {
				return row.Absent, nil
			}
			return rnk, nil
		},
	}

	return preparer.Result{ForPreparationData: prepared, ForNewData: prepared}, nil
}

var _ transformer.Preparable = (*Rank)(nil)

// SetRecorder is a Preparable over one input: it records every
// training value it processes and, once prepared, its for-preparation-
// data Apply reports membership in the set this particular instance
// saw. Used to make the k-fold trained-indicator scenario observable:
// each fold preparer only sees 9/10 of the values, so a training row's
// own fold reports "not seen" while the retrain preparer (which sees
// everything) reports "seen".
type SetRecorder struct {
	input producer.Producer
}

// NewSetRecorder builds a SetRecorder over a single input.
func NewSetRecorder(input producer.Producer) *SetRecorder {
	return &SetRecorder{input: input}
}

func (s *SetRecorder) HasConstantResult() bool        { return false }
func (s *SetRecorder) InputList() []producer.Producer { return []producer.Producer{s.input} }
func (s *SetRecorder) Arity() int                      { return 1 }
func (s *SetRecorder) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	if len(inputs) != 1 {
		panic("leaf.SetRecorder: expected 1 input")
	}
	return &SetRecorder{input: inputs[0]}
}

func (s *SetRecorder) Preparer(_ context.Context, _ preparer.Context) (preparer.Preparer, error) {
	return &setRecorderPreparer{input: s.input, seen: make(map[int]struct{})}, nil
}

// IdempotentPreparer implements transformer.IdempotentPreparer: a
// training value's membership is unaffected by duplicate occurrences.
func (s *SetRecorder) IdempotentPreparer() bool { return true }

type setRecorderPreparer struct {
	input producer.Producer
	seen  map[int]struct{}
}

func (p *setRecorderPreparer) Mode() preparer.Mode { return preparer.Stream }

func (p *setRecorderPreparer) Process(_ context.Context, r row.Row) error {
	if len(r) != 1 {
		return fmt.Errorf("leaf.SetRecorder: expected 1 input, got %d", len(r))
	}
	if row.IsAbsent(r[0]) {
		return nil
	}
	v, err := asInt(r[0])
	if err != nil {
		return err
	}
	p.seen[v] = struct{}{}
	return nil
}

func (p *setRecorderPreparer) Finish(_ context.Context, _ rowio.Reader) (preparer.Result, error) {
	seen := p.seen
	prepared := &staticPrepared{
		inputs: []producer.Producer{p.input},
		fn: func(r row.Row) (row.Value, error) {
			if len(r) != 1 {
				return row.Absent, fmt.Errorf("leaf.SetRecorder: expected 1 input, got %d", len(r))
			}
			v, err := asInt(r[0])
			if err != nil {
				return row.Absent, err
			}
			if _, ok := seen[v]; ok {
				return 1, nil
			}
			return 0, nil
		},
	}
	return preparer.Result{ForPreparationData: prepared, ForNewData: prepared}, nil
}

var _ transformer.Preparable = (*SetRecorder)(nil)

// Accuracy is the evaluator candidate used by the XOR best-model
// scenario: a Preparable over (predicted, label) that accumulates the
// match rate across every training row and, once prepared, always
// returns that single constant rate regardless of its input row.
type Accuracy struct {
	predicted producer.Producer
	label     producer.Producer
}

// NewAccuracy builds an accuracy evaluator over predicted and label.
func NewAccuracy(predicted, label producer.Producer) *Accuracy {
	return &Accuracy{predicted: predicted, label: label}
}

func (a *Accuracy) HasConstantResult() bool { return false }
func (a *Accuracy) InputList() []producer.Producer {
	return []producer.Producer{a.predicted, a.label}
}
func (a *Accuracy) Arity() int { return 2 }
func (a *Accuracy) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	if len(inputs) != 2 {
		panic("leaf.Accuracy: expected 2 inputs")
	}
	return &Accuracy{predicted: inputs[0], label: inputs[1]}
}

func (a *Accuracy) Preparer(_ context.Context, _ preparer.Context) (preparer.Preparer, error) {
	return &accuracyPreparer{inputs: []producer.Producer{a.predicted, a.label}}, nil
}

type accuracyPreparer struct {
	inputs  []producer.Producer
	matches int
	total   int
}

func (p *accuracyPreparer) Mode() preparer.Mode { return preparer.Stream }

func (p *accuracyPreparer) Process(_ context.Context, r row.Row) error {
	if len(r) != 2 {
		return fmt.Errorf("leaf.Accuracy: expected 2 inputs, got %d", len(r))
	}
	predicted, err := asInt(r[0])
	if err != nil {
		return err
	}
	label, err := asInt(r[1])
	if err != nil {
		return err
	}
	p.total++
	if predicted == label {
		p.matches++
	}
	return nil
}

func (p *accuracyPreparer) Finish(_ context.Context, _ rowio.Reader) (preparer.Result, error) {
	rate := 0.0
	if p.total > 0 {
		rate = float64(p.matches) / float64(p.total)
	}
	prepared := &constantPrepared{inputs: p.inputs, value: rate}
	return preparer.Result{ForPreparationData: prepared, ForNewData: prepared}, nil
}

// constantPrepared is a Prepared transformer whose Apply always
// returns the same value, regardless of its input row.
type constantPrepared struct {
	inputs []producer.Producer
	value  row.Value
}

func (c *constantPrepared) HasConstantResult() bool        { return true }
func (c *constantPrepared) InputList() []producer.Producer { return c.inputs }
func (c *constantPrepared) Arity() int                      { return len(c.inputs) }
func (c *constantPrepared) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	return &constantPrepared{inputs: inputs, value: c.value}
}
func (c *constantPrepared) Apply(_ context.Context, _ any, _ row.Row) (row.Value, error) {
	return c.value, nil
}

var (
	_ transformer.Preparable  = (*Accuracy)(nil)
	_ transformer.Prepared    = (*constantPrepared)(nil)
	_ transformer.ConstantResult = (*constantPrepared)(nil)
)

// Count is a Preparable over one input: it counts occurrences of each
// training value and, once prepared, its apply returns that value's
// count (0 if never seen). Used to make the prepared-by-group
// multiplicity scenario observable.
type Count struct {
	input producer.Producer
}

// NewCount builds a Count over a single input.
func NewCount(input producer.Producer) *Count {
	return &Count{input: input}
}

func (c *Count) HasConstantResult() bool        { return false }
func (c *Count) InputList() []producer.Producer { return []producer.Producer{c.input} }
func (c *Count) Arity() int                     { return 1 }
func (c *Count) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	if len(inputs) != 1 {
		panic("leaf.Count: expected 1 input")
	}
	return &Count{input: inputs[0]}
}

func (c *Count) Preparer(_ context.Context, _ preparer.Context) (preparer.Preparer, error) {
	return &countPreparer{input: c.input, counts: make(map[int]int)}, nil
}

type countPreparer struct {
	input  producer.Producer
	counts map[int]int
}

func (p *countPreparer) Mode() preparer.Mode { return preparer.Stream }

func (p *countPreparer) Process(_ context.Context, r row.Row) error {
	if len(r) != 1 {
		return fmt.Errorf("leaf.Count: expected 1 input, got %d", len(r))
	}
	if row.IsAbsent(r[0]) {
		return nil
	}
	v, err := asInt(r[0])
	if err != nil {
		return err
	}
	p.counts[v]++
	return nil
}

func (p *countPreparer) Finish(_ context.Context, _ rowio.Reader) (preparer.Result, error) {
	counts := p.counts
	prepared := &staticPrepared{
		inputs: []producer.Producer{p.input},
		fn: func(r row.Row) (row.Value, error) {
			if len(r) != 1 {
				return row.Absent, fmt.Errorf("leaf.Count: expected 1 input, got %d", len(r))
			}
			if row.IsAbsent(r[0]) {
				return row.Absent, nil
			}
			v, err := asInt(r[0])
			if err != nil {
				return row.Absent, err
			}
			return counts[v], nil
		},
	}
	return preparer.Result{ForPreparationData: prepared, ForNewData: prepared}, nil
}

var _ transformer.Preparable = (*Count)(nil)
