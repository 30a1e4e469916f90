// Package kfold implements the K-Fold Cross-Trainer: it trains k
// sub-models in parallel on k-1 folds each, plus optionally one
// full-data model, and routes inference to the sub-model whose fold
// excluded the example.
package kfold

import (
	"context"
	"fmt"

	"github.com/zerfoo/metagraph/dagerr"
	"github.com/zerfoo/metagraph/dagexec"
	"github.com/zerfoo/metagraph/fold"
	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/rowio"
	"github.com/zerfoo/metagraph/transformer"
)

type config struct {
	k                 int
	seed              uint64
	retrainForNewData bool
	groupInput        producer.Producer // nil means "per-row unique index"
}

// Option configures a CrossTrainer via copy-on-write setters.
type Option func(*config)

// WithK sets the number of folds (>= 2, default 5).
func WithK(k int) Option { return func(c *config) { c.k = k } }

// WithSeed perturbs fold assignment (default 0).
func WithSeed(seed uint64) Option { return func(c *config) { c.seed = seed } }

// WithRetrainForNewData toggles training one additional model on all
// data (default true).
func WithRetrainForNewData(on bool) Option {
	return func(c *config) { c.retrainForNewData = on }
}

// WithGroupInput sets the producer whose value groups rows into the
// same fold (default: none, each row gets its own unique fold-index
// counter).
func WithGroupInput(p producer.Producer) Option {
	return func(c *config) { c.groupInput = p }
}

// CrossTrainer is the K-Fold Cross-Trainer, wrapping a single candidate
// Preparable transformer.
type CrossTrainer struct {
	wrapped transformer.Preparable
	cfg     config
}

// New builds a CrossTrainer around wrapped.
func New(wrapped transformer.Preparable, opts ...Option) (*CrossTrainer, error) {
	cfg := config{k: 5, seed: 0, retrainForNewData: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.k < 2 {
		return nil, dagerr.New(dagerr.Argument, "kfold.New", 0, fmt.Errorf("k must be >= 2, got %d", cfg.k))
	}
	return &CrossTrainer{wrapped: wrapped, cfg: cfg}, nil
}

func (c *CrossTrainer) HasConstantResult() bool { return false }

// InputList is the wrapped transformer's inputs, plus the group input
// as a trailing column when one is explicitly configured.
func (c *CrossTrainer) InputList() []producer.Producer {
	base := c.wrapped.InputList()
	if c.cfg.groupInput == nil {
		out := make([]producer.Producer, len(base))
		copy(out, base)
		return out
	}
	out := make([]producer.Producer, len(base)+1)
	copy(out, base)
	out[len(base)] = c.cfg.groupInput
	return out
}

func (c *CrossTrainer) Arity() int { return len(c.InputList()) }

func (c *CrossTrainer) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	if c.cfg.groupInput == nil {
		wrapped := c.wrapped.WithInputs(inputs...).(transformer.Preparable)
		return &CrossTrainer{wrapped: wrapped, cfg: c.cfg}
	}
	if len(inputs) == 0 {
		panic("kfold: WithInputs requires at least the group column")
	}
	wrapped := c.wrapped.WithInputs(inputs[:len(inputs)-1]...).(transformer.Preparable)
	cfg := c.cfg
	cfg.groupInput = inputs[len(inputs)-1]
	return &CrossTrainer{wrapped: wrapped, cfg: cfg}
}

// Preparer implements transformer.Preparable.
func (c *CrossTrainer) Preparer(ctx context.Context, pctx preparer.Context) (preparer.Preparer, error) {
	n := pctx.EstimatedExampleCount
	foldEstimate := (n * (c.cfg.k - 1)) / c.cfg.k
	if foldEstimate < 0 {
		foldEstimate = 0
	}

	children := make([]preparer.Preparer, c.cfg.k)
	for i := 0; i < c.cfg.k; i++ {
		p, err := c.wrapped.Preparer(ctx, preparer.Context{EstimatedExampleCount: foldEstimate, Parallelism: pctx.Parallelism})
		if err != nil {
			return nil, dagerr.New(dagerr.Configuration, "kfold.CrossTrainer.Preparer", 0, err)
		}
		children[i] = p
	}

	var retrain preparer.Preparer
	if c.cfg.retrainForNewData {
		p, err := c.wrapped.Preparer(ctx, preparer.Context{EstimatedExampleCount: n, Parallelism: pctx.Parallelism})
		if err != nil {
			return nil, dagerr.New(dagerr.Configuration, "kfold.CrossTrainer.Preparer", 0, err)
		}
		retrain = p
	}

	mode := children[0].Mode()
	for _, p := range children {
		if p.Mode() != mode {
			return nil, dagerr.New(dagerr.Configuration, "kfold.CrossTrainer.Preparer", 0,
				fmt.Errorf("mixed preparer modes across folds"))
		}
	}
	if retrain != nil && retrain.Mode() != mode {
		return nil, dagerr.New(dagerr.Configuration, "kfold.CrossTrainer.Preparer", 0,
			fmt.Errorf("mixed preparer modes between folds and retrain preparer"))
	}

	return &crossPreparer{
		k:               c.cfg.k,
		seed:            c.cfg.seed,
		mode:            mode,
		groupInput:      c.cfg.groupInput,
		children:        children,
		retrain:         retrain,
		parallelism:     pctx.Parallelism,
		wrappedInputs:   c.wrapped.InputList(),
		nextUngroupedID: 0,
	}, nil
}

type crossPreparer struct {
	k            int
	seed         uint64
	mode         preparer.Mode
	groupInput   producer.Producer // nil means "per-row unique index"
	children     []preparer.Preparer
	retrain      preparer.Preparer
	parallelism  int
	wrappedInputs []producer.Producer

	nextUngroupedID int
}

func (p *crossPreparer) hasGroupColumn() bool { return p.groupInput != nil }

func (p *crossPreparer) Mode() preparer.Mode { return p.mode }

func (p *crossPreparer) Process(ctx context.Context, r row.Row) error {
	var group row.Value
	var inner row.Row
	if p.hasGroupColumn() {
		if len(r) == 0 {
			return fmt.Errorf("kfold: expected a trailing group column, got empty row")
		}
		group = r[len(r)-1]
		inner = r[:len(r)-1]
	} else {
		group = p.nextUngroupedID
		p.nextUngroupedID++
		inner = r
	}

	f := fold.Fold(group, p.k, p.seed)

	for i, child := range p.children {
		if i == f {
			continue
		}
		if err := child.Process(ctx, inner); err != nil {
			return err
		}
	}
	if p.retrain != nil {
		if err := p.retrain.Process(ctx, inner); err != nil {
			return err
		}
	}
	return nil
}

func (p *crossPreparer) Finish(ctx context.Context, reader rowio.Reader) (preparer.Result, error) {
	pool := dagexec.NewWorkerPool(ctx, min(p.k+1, max(1, p.parallelism)))

	results := make([]preparer.Result, p.k)
	errs := make([]error, p.k)
	var retrainResult preparer.Result
	var retrainErr error

	hasGroup := p.hasGroupColumn()

	for i := 0; i < p.k; i++ {
		i := i
		pool.Submit(func(taskCtx context.Context) error {
			var foldReader rowio.Reader
			if p.mode == preparer.Batch && reader != nil {
				foldReader = reader.Filter(func(r row.Row) bool {
					return fold.Fold(groupOf(r, hasGroup), p.k, p.seed) != i
				}).Map(func(r row.Row) row.Row { return dropGroup(r, hasGroup) })
			}
			res, err := p.children[i].Finish(taskCtx, foldReader)
			results[i] = res
			errs[i] = err
			return err
		})
	}

	if p.retrain != nil {
		pool.Submit(func(taskCtx context.Context) error {
			var retrainReader rowio.Reader
			if p.mode == preparer.Batch && reader != nil {
				retrainReader = reader.Map(func(r row.Row) row.Row { return dropGroup(r, hasGroup) })
			}
			res, err := p.retrain.Finish(taskCtx, retrainReader)
			retrainResult = res
			retrainErr = err
			return err
		})
	}

	taskErrs := pool.Shutdown()
	if len(taskErrs) > 0 {
		pool.ShutdownNow()
		return preparer.Result{}, dagerr.New(dagerr.InnerTask, "kfold.crossPreparer.Finish", 0, taskErrs[0])
	}

	foldPrepared := make([]transformer.Prepared, p.k)
	for i, res := range results {
		if errs[i] != nil {
			return preparer.Result{}, dagerr.New(dagerr.InnerTask, "kfold.crossPreparer.Finish", 0, errs[i])
		}
		fp, ok := res.ForPreparationData.(transformer.Prepared)
		if !ok {
			return preparer.Result{}, dagerr.New(dagerr.Reduction, "kfold.crossPreparer.Finish", 0,
				fmt.Errorf("fold %d result is not a Prepared transformer", i))
		}
		foldPrepared[i] = fp
	}

	dispatch := &dispatchPrepared{
		folds:         foldPrepared,
		k:             p.k,
		seed:          p.seed,
		groupInput:    p.groupInput,
		wrappedInputs: p.wrappedInputs,
	}

	forPreparationData := transformer.Prepared(dispatch)

	var forNewData transformer.Prepared
	if p.retrain != nil {
		if retrainErr != nil {
			return preparer.Result{}, dagerr.New(dagerr.InnerTask, "kfold.crossPreparer.Finish", 0, retrainErr)
		}
		retrainPrepared, ok := retrainResult.ForPreparationData.(transformer.Prepared)
		if !ok {
			return preparer.Result{}, dagerr.New(dagerr.Reduction, "kfold.crossPreparer.Finish", 0,
				fmt.Errorf("retrain result is not a Prepared transformer"))
		}
		forNewData = &ignoreGroupPrepared{inner: retrainPrepared, groupInput: p.groupInput, wrappedInputs: p.wrappedInputs}
	} else {
		forNewData = dispatch
	}

	return preparer.Result{ForPreparationData: forPreparationData, ForNewData: forNewData}, nil
}

func groupOf(r row.Row, hasGroupColumn bool) row.Value {
	if hasGroupColumn {
		return r[len(r)-1]
	}
	return nil
}

func dropGroup(r row.Row, hasGroupColumn bool) row.Row {
	if hasGroupColumn {
		return r[:len(r)-1]
	}
	return r
}

// dispatchPrepared is the for-preparation-data output: per row, it
// computes the fold from the (still-present) group column and
// dispatches to that fold's prepared sub-transformer, guaranteeing no
// training row is scored by a sub-model that saw it.
//
// When there is no explicit group column (the default "per-row unique
// index" grouping), dispatch cannot be recomputed at inference time
// (the training-time row index is not observable from the row alone);
// in that configuration this output is only meaningful against the
// exact training stream it was prepared on, consistent with the
// source's similar restriction for ungrouped cross-training.
type dispatchPrepared struct {
	folds         []transformer.Prepared
	k             int
	seed          uint64
	groupInput    producer.Producer // nil means "per-row unique index"
	wrappedInputs []producer.Producer
	counter       int
}

func (d *dispatchPrepared) hasGroupColumn() bool { return d.groupInput != nil }

func (d *dispatchPrepared) HasConstantResult() bool { return false }

func (d *dispatchPrepared) InputList() []producer.Producer {
	return inputListWithGroup(d.wrappedInputs, d.groupInput)
}

func (d *dispatchPrepared) Arity() int { return len(d.InputList()) }

func (d *dispatchPrepared) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	wrappedInputs, groupInput := splitGroup(inputs, d.hasGroupColumn())
	folds := make([]transformer.Prepared, len(d.folds))
	for i, f := range d.folds {
		folds[i] = f.WithInputs(wrappedInputs...).(transformer.Prepared)
	}
	return &dispatchPrepared{folds: folds, k: d.k, seed: d.seed, groupInput: groupInput, wrappedInputs: wrappedInputs}
}

func (d *dispatchPrepared) Apply(ctx context.Context, cache any, r row.Row) (row.Value, error) {
	hasGroup := d.hasGroupColumn()
	var group row.Value
	var inner row.Row
	if hasGroup {
		if len(r) == 0 {
			return row.Absent, fmt.Errorf("kfold: expected a trailing group column, got empty row")
		}
		group = r[len(r)-1]
		inner = r[:len(r)-1]
	} else {
		group = d.counter
		d.counter++
		inner = r
	}
	f := fold.Fold(group, d.k, d.seed)
	return d.folds[f].Apply(ctx, cache, inner)
}

// ignoreGroupPrepared wraps the retrain-for-new-data prepared
// transformer so that it accepts (and ignores) the trailing group
// column, preserving the CrossTrainer's own arity.
type ignoreGroupPrepared struct {
	inner         transformer.Prepared
	groupInput    producer.Producer // nil means "per-row unique index"
	wrappedInputs []producer.Producer
}

func (g *ignoreGroupPrepared) hasGroupColumn() bool { return g.groupInput != nil }

func (g *ignoreGroupPrepared) HasConstantResult() bool { return g.inner.HasConstantResult() }

func (g *ignoreGroupPrepared) InputList() []producer.Producer {
	return inputListWithGroup(g.wrappedInputs, g.groupInput)
}

func (g *ignoreGroupPrepared) Arity() int { return len(g.InputList()) }

func (g *ignoreGroupPrepared) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	wrappedInputs, groupInput := splitGroup(inputs, g.hasGroupColumn())
	return &ignoreGroupPrepared{inner: g.inner.WithInputs(wrappedInputs...).(transformer.Prepared), groupInput: groupInput, wrappedInputs: wrappedInputs}
}

func (g *ignoreGroupPrepared) Apply(ctx context.Context, cache any, r row.Row) (row.Value, error) {
	inner := dropGroup(r, g.hasGroupColumn())
	return g.inner.Apply(ctx, cache, inner)
}

func inputListWithGroup(wrappedInputs []producer.Producer, groupInput producer.Producer) []producer.Producer {
	if groupInput == nil {
		out := make([]producer.Producer, len(wrappedInputs))
		copy(out, wrappedInputs)
		return out
	}
	out := make([]producer.Producer, len(wrappedInputs)+1)
	copy(out, wrappedInputs)
	out[len(wrappedInputs)] = groupInput
	return out
}

func splitGroup(inputs []producer.Producer, hasGroupColumn bool) (wrappedInputs []producer.Producer, groupInput producer.Producer) {
	if !hasGroupColumn {
		return inputs, nil
	}
	return inputs[:len(inputs)-1], inputs[len(inputs)-1]
}

// FoldModels returns the per-fold prepared sub-transformers behind a
// CrossTrainer's for-preparation-data output, in fold order. ok is
// false if prepared did not come from a kfold.CrossTrainer. Exposed
// for diagnostics (e.g. the Best-Model Selector's fold-dispersion
// report); not needed for ordinary inference.
func FoldModels(prepared transformer.Prepared) (folds []transformer.Prepared, ok bool) {
	d, ok := prepared.(*dispatchPrepared)
	if !ok {
		return nil, false
	}
	out := make([]transformer.Prepared, len(d.folds))
	copy(out, d.folds)
	return out, true
}

var (
	_ transformer.Preparable = (*CrossTrainer)(nil)
	_ transformer.Prepared   = (*dispatchPrepared)(nil)
	_ transformer.Prepared   = (*ignoreGroupPrepared)(nil)
)
