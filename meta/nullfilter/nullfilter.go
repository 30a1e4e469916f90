// Package nullfilter implements the Null-Filtered Wrapper: it forwards
// only complete rows to a wrapped preparer during training, and, at
// inference, short-circuits to a fallback value when any input of a
// row is absent.
package nullfilter

import (
	"context"

	"github.com/zerfoo/metagraph/dagexec"
	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/rowio"
	"github.com/zerfoo/metagraph/transformer"
)

type config struct {
	filteredPreparation bool
	filteredApplication bool
	fallbackValue       row.Value
}

// Option configures a Wrapper via copy-on-write setters.
type Option func(*config)

// WithFilteredPreparation toggles whether rows containing any absent
// input are skipped during training (default true).
func WithFilteredPreparation(on bool) Option {
	return func(c *config) { c.filteredPreparation = on }
}

// WithFilteredApplication toggles whether a row containing any absent
// input is short-circuited to the fallback value at inference time
// instead of being evaluated by the wrapped prepared transformer
// (default true).
func WithFilteredApplication(on bool) Option {
	return func(c *config) { c.filteredApplication = on }
}

// WithFallbackValue sets the value returned when filtered application
// skips evaluation (default row.Absent).
func WithFallbackValue(v row.Value) Option {
	return func(c *config) { c.fallbackValue = v }
}

// Wrapper wraps a Preparable or already-Prepared transformer with
// null-filtering semantics. It is itself always a transformer.Preparable:
// when the wrapped transformer is already Prepared, its "preparer" is a
// trivial pass-through that needs no training data.
type Wrapper struct {
	wrapped transformer.Transformer
	cfg     config
	// constantAbsent is set at construction if any input is a
	// compile-time Constant known to be absent; the wrapper then
	// reduces to a constant-absent producer, per spec's edge case.
	constantAbsent bool
}

// New wraps transformer t with null-filtering semantics.
func New(t transformer.Transformer, opts ...Option) *Wrapper {
	cfg := config{
		filteredPreparation: true,
		filteredApplication: true,
		fallbackValue:       row.Absent,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	w := &Wrapper{wrapped: t, cfg: cfg}
	for _, in := range t.InputList() {
		if c, ok := in.(*dagexec.Constant); ok && row.IsAbsent(c.Value) {
			w.constantAbsent = true
			break
		}
	}
	return w
}

func (w *Wrapper) HasConstantResult() bool {
	return w.constantAbsent
}

func (w *Wrapper) InputList() []producer.Producer { return w.wrapped.InputList() }

func (w *Wrapper) Arity() int { return w.wrapped.Arity() }

func (w *Wrapper) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	return New(w.wrapped.WithInputs(inputs...), optionsOf(w.cfg)...)
}

func optionsOf(cfg config) []Option {
	return []Option{
		WithFilteredPreparation(cfg.filteredPreparation),
		WithFilteredApplication(cfg.filteredApplication),
		WithFallbackValue(cfg.fallbackValue),
	}
}

// Preparer implements transformer.Preparable.
func (w *Wrapper) Preparer(ctx context.Context, pctx preparer.Context) (preparer.Preparer, error) {
	if w.constantAbsent {
		return &constantAbsentPreparer{inputs: w.wrapped.InputList()}, nil
	}

	if inner, ok := w.wrapped.(transformer.Prepared); ok {
		return &alreadyPreparedPreparer{inner: wrapPrepared(inner, w.cfg)}, nil
	}

	innerPreparable, ok := w.wrapped.(transformer.Preparable)
	if !ok {
		return nil, &nullfilterConfigError{"wrapped transformer is neither Preparable nor Prepared"}
	}

	innerPreparer, err := innerPreparable.Preparer(ctx, pctx)
	if err != nil {
		return nil, err
	}

	return &filteringPreparer{inner: innerPreparer, cfg: w.cfg}, nil
}

type nullfilterConfigError struct{ msg string }

func (e *nullfilterConfigError) Error() string { return "nullfilter: " + e.msg }

// constantAbsentPreparer realizes the compile-time-absent edge case:
// no data is ever consumed, both prepared outputs always return Absent.
type constantAbsentPreparer struct {
	inputs []producer.Producer
}

func (p *constantAbsentPreparer) Mode() preparer.Mode { return preparer.Stream }

func (p *constantAbsentPreparer) Process(_ context.Context, _ row.Row) error { return nil }

func (p *constantAbsentPreparer) Finish(_ context.Context, _ rowio.Reader) (preparer.Result, error) {
	out := constantPrepared{inputs: p.inputs, value: row.Absent}
	return preparer.Result{ForPreparationData: out, ForNewData: out}, nil
}

type constantPrepared struct {
	inputs []producer.Producer
	value  row.Value
}

func (c constantPrepared) HasConstantResult() bool        { return true }
func (c constantPrepared) InputList() []producer.Producer { return c.inputs }
func (c constantPrepared) Arity() int                      { return len(c.inputs) }
func (c constantPrepared) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	return constantPrepared{inputs: inputs, value: c.value}
}
func (c constantPrepared) Apply(_ context.Context, _ any, _ row.Row) (row.Value, error) {
	return c.value, nil
}

// alreadyPreparedPreparer is used when the wrapped transformer is
// already a Prepared value (no training to do): both prepared outputs
// are the same filtered-application wrapper around it.
type alreadyPreparedPreparer struct {
	inner transformer.Prepared
}

func (p *alreadyPreparedPreparer) Mode() preparer.Mode { return preparer.Stream }

func (p *alreadyPreparedPreparer) Process(_ context.Context, _ row.Row) error { return nil }

func (p *alreadyPreparedPreparer) Finish(_ context.Context, _ rowio.Reader) (preparer.Result, error) {
	return preparer.Result{ForPreparationData: p.inner, ForNewData: p.inner}, nil
}

// filteringPreparer forwards only complete rows to inner during
// Process, and wraps the reader passed to inner.Finish with a
// complete-rows-only predicate during Finish.
type filteringPreparer struct {
	inner preparer.Preparer
	cfg   config
}

func (p *filteringPreparer) Mode() preparer.Mode { return p.inner.Mode() }

func (p *filteringPreparer) Process(ctx context.Context, r row.Row) error {
	if p.cfg.filteredPreparation && r.HasAbsent() {
		return nil
	}
	return p.inner.Process(ctx, r)
}

func (p *filteringPreparer) Finish(ctx context.Context, reader rowio.Reader) (preparer.Result, error) {
	innerReader := reader
	if p.cfg.filteredPreparation && reader != nil {
		innerReader = reader.Filter(func(r row.Row) bool { return !r.HasAbsent() })
	}

	result, err := p.inner.Finish(ctx, innerReader)
	if err != nil {
		return preparer.Result{}, err
	}

	forPrep, ok := result.ForPreparationData.(transformer.Prepared)
	if !ok {
		return preparer.Result{}, &nullfilterConfigError{"wrapped preparer's for-preparation-data result is not a Prepared transformer"}
	}
	forNew, ok := result.ForNewData.(transformer.Prepared)
	if !ok {
		return preparer.Result{}, &nullfilterConfigError{"wrapped preparer's for-new-data result is not a Prepared transformer"}
	}

	return preparer.Result{
		ForPreparationData: wrapPrepared(forPrep, p.cfg),
		ForNewData:         wrapPrepared(forNew, p.cfg),
	}, nil
}

// prepared is the filtered-application wrapper around a wrapped
// Prepared transformer.
type prepared struct {
	inner transformer.Prepared
	cfg   config
}

func wrapPrepared(inner transformer.Prepared, cfg config) transformer.Prepared {
	return &prepared{inner: inner, cfg: cfg}
}

func (p *prepared) HasConstantResult() bool        { return p.inner.HasConstantResult() }
func (p *prepared) InputList() []producer.Producer { return p.inner.InputList() }
func (p *prepared) Arity() int                      { return p.inner.Arity() }
func (p *prepared) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	return &prepared{inner: p.inner.WithInputs(inputs...).(transformer.Prepared), cfg: p.cfg}
}

func (p *prepared) Apply(ctx context.Context, cache any, r row.Row) (row.Value, error) {
	if p.cfg.filteredApplication && r.HasAbsent() {
		return p.cfg.fallbackValue, nil
	}
	return p.inner.Apply(ctx, cache, r)
}

// ApplyMinibatch implements transformer.MinibatchApplier: it partitions
// the minibatch into complete and incomplete rows, invokes the wrapped
// prepared transformer only on the complete subset, and splices the
// fallback value back in at the original positions.
func (p *prepared) ApplyMinibatch(ctx context.Context, cache any, cols [][]row.Value, out []row.Value) error {
	if !p.cfg.filteredApplication {
		return applyRowwise(ctx, p.inner, cache, cols, out)
	}

	applier, ok := p.inner.(transformer.MinibatchApplier)
	n := len(out)
	complete := make([]int, 0, n)
	for i := 0; i < n; i++ {
		hasAbsent := false
		for _, col := range cols {
			if row.IsAbsent(col[i]) {
				hasAbsent = true
				break
			}
		}
		if hasAbsent {
			out[i] = p.cfg.fallbackValue
		} else {
			complete = append(complete, i)
		}
	}

	if len(complete) == 0 {
		return nil
	}

	subCols := make([][]row.Value, len(cols))
	for c := range cols {
		sub := make([]row.Value, len(complete))
		for j, idx := range complete {
			sub[j] = cols[c][idx]
		}
		subCols[c] = sub
	}
	subOut := make([]row.Value, len(complete))

	if ok {
		if err := applier.ApplyMinibatch(ctx, cache, subCols, subOut); err != nil {
			return err
		}
	} else {
		for j := range complete {
			r := make(row.Row, len(subCols))
			for c := range subCols {
				r[c] = subCols[c][j]
			}
			v, err := p.inner.Apply(ctx, cache, r)
			if err != nil {
				return err
			}
			subOut[j] = v
		}
	}

	for j, idx := range complete {
		out[idx] = subOut[j]
	}
	return nil
}

func applyRowwise(ctx context.Context, inner transformer.Prepared, cache any, cols [][]row.Value, out []row.Value) error {
	n := len(out)
	for i := 0; i < n; i++ {
		r := make(row.Row, len(cols))
		for c := range cols {
			r[c] = cols[c][i]
		}
		v, err := inner.Apply(ctx, cache, r)
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}

var (
	_ transformer.Preparable       = (*Wrapper)(nil)
	_ transformer.Prepared         = (*prepared)(nil)
	_ transformer.MinibatchApplier = (*prepared)(nil)
)
