package bestmodel

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/zerfoo/metagraph/dagerr"
	"github.com/zerfoo/metagraph/dagexec"
	"github.com/zerfoo/metagraph/meta/kfold"
	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/rowio"
	"github.com/zerfoo/metagraph/transformer"
)

// markerProducer is a throwaway sentinel passed to an EvaluatorFactory
// exactly once, at Selector construction time, so New can tell which
// of the returned evaluator's inputs is the predicted-label slot
// (identity-equal to the marker) versus a "real" data input that must
// be folded into the selector's own flat input list.
type markerProducer struct{}

func (markerProducer) HasConstantResult() bool { return false }

// Selector is the Best-Model Selector: it cross-trains every candidate,
// evaluates each with evaluatorFactory's evaluator, and retrains the
// winner on the full dataset.
type Selector struct {
	candidates       []transformer.Preparable
	evaluatorFactory EvaluatorFactory
	cfg              config

	flatInputs []producer.Producer
	indexOf    map[producer.Producer]int
}

// New builds a Selector over candidates, each evaluated by the
// transformer evaluatorFactory builds for it. Input discovery calls
// evaluatorFactory once, with a marker producer standing in for the
// predicted-value slot, purely to separate that slot from the
// evaluator's other ("real") inputs.
func New(candidates []transformer.Preparable, evaluatorFactory EvaluatorFactory, opts ...Option) (*Selector, error) {
	if len(candidates) == 0 {
		return nil, dagerr.New(dagerr.Configuration, "bestmodel.New", 0, errors.New("at least one candidate is required"))
	}
	if evaluatorFactory == nil {
		return nil, dagerr.New(dagerr.Configuration, "bestmodel.New", 0, errors.New("evaluatorFactory is required"))
	}

	cfg := config{splitCount: 5, seed: 0, mode: Cheat}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := validate(cfg); err != nil {
		return nil, dagerr.New(dagerr.Argument, "bestmodel.New", 0, err)
	}

	var marker markerProducer
	evalProbe, err := evaluatorFactory(marker)
	if err != nil {
		return nil, dagerr.New(dagerr.Configuration, "bestmodel.New", 0, fmt.Errorf("probing evaluator factory: %w", err))
	}

	indexOf := make(map[producer.Producer]int)
	var flat []producer.Producer
	add := func(p producer.Producer) {
		if _, seen := indexOf[p]; seen {
			return
		}
		indexOf[p] = len(flat)
		flat = append(flat, p)
	}

	if cfg.groupInput != nil {
		add(cfg.groupInput)
	}
	for _, p := range evalProbe.InputList() {
		if p == producer.Producer(marker) {
			continue
		}
		add(p)
	}
	for _, c := range candidates {
		for _, p := range c.InputList() {
			add(p)
		}
	}

	return &Selector{
		candidates:       candidates,
		evaluatorFactory: evaluatorFactory,
		cfg:              cfg,
		flatInputs:       flat,
		indexOf:          indexOf,
	}, nil
}

func (s *Selector) HasConstantResult() bool { return false }

func (s *Selector) InputList() []producer.Producer {
	out := make([]producer.Producer, len(s.flatInputs))
	copy(out, s.flatInputs)
	return out
}

func (s *Selector) Arity() int { return len(s.flatInputs) }

func (s *Selector) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	if len(inputs) != len(s.flatInputs) {
		panic(fmt.Sprintf("bestmodel: WithInputs expects %d inputs, got %d", len(s.flatInputs), len(inputs)))
	}
	indexOf := make(map[producer.Producer]int, len(inputs))
	flat := make([]producer.Producer, len(inputs))
	copy(flat, inputs)
	for i, p := range flat {
		indexOf[p] = i
	}
	return &Selector{
		candidates:       s.candidates,
		evaluatorFactory: s.evaluatorFactory,
		cfg:              s.cfg,
		flatInputs:       flat,
		indexOf:          indexOf,
	}
}

// Preparer implements transformer.Preparable.
func (s *Selector) Preparer(_ context.Context, pctx preparer.Context) (preparer.Preparer, error) {
	return &selectorPreparer{sel: s, pctx: pctx}, nil
}

type selectorPreparer struct {
	sel  *Selector
	pctx preparer.Context
	n    int
}

// Mode is always Batch: selecting a winner requires cross-training
// every candidate over the full dataset before any evaluation can
// happen.
func (p *selectorPreparer) Mode() preparer.Mode { return preparer.Batch }

func (p *selectorPreparer) Process(_ context.Context, _ row.Row) error {
	p.n++
	return nil
}

func (p *selectorPreparer) Finish(ctx context.Context, reader rowio.Reader) (preparer.Result, error) {
	if reader == nil {
		return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.selectorPreparer.Finish", 0,
			errors.New("best-model selection requires a replayable reader"))
	}
	return p.sel.finish(ctx, reader, p.n, p.pctx)
}

// finish implements spec.md §4.6 steps 1-7: build a sub-DAG wiring
// each candidate through its own k-fold cross-trainer and evaluator,
// prepare it in one executor pass, read off each candidate's constant
// evaluation, pick a winner, and retrain the winner alone on the full
// dataset.
func (s *Selector) finish(ctx context.Context, reader rowio.Reader, n int, pctx preparer.Context) (preparer.Result, error) {
	builder := dagexec.NewBuilder()
	placeholder := dagexec.NewPlaceholder()
	builder.AddNode(placeholder)

	accessors := make([]*dagexec.ArrayElement, len(s.flatInputs))
	for i := range s.flatInputs {
		accessors[i] = dagexec.NewArrayElement(placeholder, i)
		builder.AddNode(accessors[i], placeholder)
	}

	remap := func(inputs []producer.Producer) ([]producer.Producer, error) {
		out := make([]producer.Producer, len(inputs))
		for i, p := range inputs {
			idx, ok := s.indexOf[p]
			if !ok {
				return nil, fmt.Errorf("unresolved input %v", p)
			}
			out[i] = accessors[idx]
		}
		return out, nil
	}

	var groupAccessor producer.Producer
	if s.cfg.groupInput != nil {
		idx, ok := s.indexOf[s.cfg.groupInput]
		if !ok {
			return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.Selector.finish", 0,
				errors.New("group input is not part of the selector's input list"))
		}
		groupAccessor = accessors[idx]
	}

	crossTrainers := make([]*kfold.CrossTrainer, len(s.candidates))
	evaluators := make([]transformer.Preparable, len(s.candidates))

	for i, cand := range s.candidates {
		remappedInputs, err := remap(cand.InputList())
		if err != nil {
			return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.Selector.finish", 0,
				fmt.Errorf("candidate %d: %w", i, err))
		}
		remappedCand := cand.WithInputs(remappedInputs...).(transformer.Preparable)

		kfoldOpts := []kfold.Option{
			kfold.WithK(s.cfg.splitCount),
			kfold.WithSeed(s.cfg.seed),
			kfold.WithRetrainForNewData(false),
		}
		if groupAccessor != nil {
			kfoldOpts = append(kfoldOpts, kfold.WithGroupInput(groupAccessor))
		}
		ct, err := kfold.New(remappedCand, kfoldOpts...)
		if err != nil {
			return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.Selector.finish", 0,
				fmt.Errorf("candidate %d: %w", i, err))
		}
		crossTrainers[i] = ct
		builder.AddNode(ct, ct.InputList()...)

		evaluator, err := s.evaluatorFactory(ct)
		if err != nil {
			return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.Selector.finish", 0,
				fmt.Errorf("candidate %d evaluator: %w", i, err))
		}
		evalInputs := make([]producer.Producer, len(evaluator.InputList()))
		for j, p := range evaluator.InputList() {
			if p == producer.Producer(ct) {
				evalInputs[j] = p
				continue
			}
			idx, ok := s.indexOf[p]
			if !ok {
				return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.Selector.finish", 0,
					fmt.Errorf("candidate %d evaluator: unresolved input %v", i, p))
			}
			evalInputs[j] = accessors[idx]
		}
		remappedEval := evaluator.WithInputs(evalInputs...).(transformer.Preparable)
		evaluators[i] = remappedEval
		builder.AddNode(remappedEval, remappedEval.InputList()...)
	}

	outputs := make([]producer.Producer, 0, 2*len(s.candidates))
	for i := range s.candidates {
		outputs = append(outputs, crossTrainers[i], evaluators[i])
	}
	graph, err := builder.Build(outputs...)
	if err != nil {
		return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.Selector.finish", 0, err)
	}

	parallelism := pctx.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	exec := dagexec.NewExecutor(parallelism)

	prepared, err := exec.Prepare(ctx, graph, reader)
	if err != nil {
		return preparer.Result{}, err
	}

	firstRow, err := firstRowOf(ctx, reader)
	if err != nil {
		return preparer.Result{}, dagerr.New(dagerr.Reduction, "bestmodel.Selector.finish", 0, err)
	}

	evaluations := make([]row.Value, len(s.candidates))
	for i, evalNode := range evaluators {
		evalPrepared, ok := prepared[evalNode]
		if !ok {
			return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.Selector.finish", 0,
				fmt.Errorf("candidate %d evaluator did not prepare", i))
		}
		if !evalPrepared.HasConstantResult() {
			return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.Selector.finish", 0,
				fmt.Errorf("candidate %d evaluator is not constant-result", i))
		}
		v, err := exec.Eval(ctx, evalNode, firstRow, prepared)
		if err != nil {
			return preparer.Result{}, dagerr.New(dagerr.Reduction, "bestmodel.Selector.finish", 0, err)
		}
		evaluations[i] = v
	}

	best, err := bestIndex(evaluations)
	if err != nil {
		return preparer.Result{}, dagerr.New(dagerr.Reduction, "bestmodel.Selector.finish", 0, err)
	}

	winner := s.candidates[best]
	winnerInputs := winner.InputList()
	winnerIdx := make([]int, len(winnerInputs))
	for i, p := range winnerInputs {
		idx, ok := s.indexOf[p]
		if !ok {
			return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.Selector.finish", 0,
				fmt.Errorf("winning candidate: unresolved input %v", p))
		}
		winnerIdx[i] = idx
	}
	winnerReader := reader.Map(func(full row.Row) row.Row {
		out := make(row.Row, len(winnerIdx))
		for i, idx := range winnerIdx {
			out[i] = full[idx]
		}
		return out
	})

	finalResult, err := prepareDirect(ctx, winner, winnerReader, preparer.Context{EstimatedExampleCount: n, Parallelism: parallelism})
	if err != nil {
		return preparer.Result{}, err
	}
	finalNewData, ok := finalResult.ForNewData.(transformer.Prepared)
	if !ok {
		return preparer.Result{}, dagerr.New(dagerr.Reduction, "bestmodel.Selector.finish", 0,
			errors.New("winning candidate's retrain result is not a transformer.Prepared"))
	}

	report, reportErr := s.buildReport(ctx, exec, crossTrainers, evaluations, prepared, firstRow, best)
	if reportErr != nil {
		return preparer.Result{}, reportErr
	}

	forNewData := transformer.Prepared(&WithReport{Prepared: finalNewData, Report: report})

	var forPreparationData transformer.Prepared
	switch s.cfg.mode {
	case CrossInference:
		crossPrepared, ok := prepared[crossTrainers[best]]
		if !ok {
			return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.Selector.finish", 0,
				errors.New("winning candidate's cross-trainer did not prepare"))
		}
		// crossPrepared.Apply expects a row shaped like the winning
		// candidate's own input list (plus a trailing group column,
		// when configured), not the Selector's full flatInputs row.
		// Wrap it so a downstream node driving the Selector's own
		// input contract projects down to the narrower arity first.
		candInputs := s.candidates[best].InputList()
		idx := make([]int, 0, len(candInputs)+1)
		for _, p := range candInputs {
			pos, ok := s.indexOf[p]
			if !ok {
				return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.Selector.finish", 0,
					fmt.Errorf("winning candidate's cross-trainer input %v not in selector input list", p))
			}
			idx = append(idx, pos)
		}
		if s.cfg.groupInput != nil {
			idx = append(idx, s.indexOf[s.cfg.groupInput])
		}
		forPreparationData = newCrossInferencePrepared(crossPrepared, s.flatInputs, idx)
	default:
		forPreparationData = finalNewData
	}

	return preparer.Result{ForPreparationData: forPreparationData, ForNewData: forNewData}, nil
}

// crossInferencePrepared adapts a cross-trainer's Prepared form, whose
// Apply expects a row shaped like the wrapped candidate's own (narrow)
// input list, to the Selector's full flatInputs row shape: Apply
// projects down to the candidate's positions via idx before
// delegating.
type crossInferencePrepared struct {
	wrapped transformer.Prepared
	inputs  []producer.Producer
	idx     []int
}

func newCrossInferencePrepared(wrapped transformer.Prepared, flatInputs []producer.Producer, idx []int) *crossInferencePrepared {
	inputs := make([]producer.Producer, len(flatInputs))
	copy(inputs, flatInputs)
	idxCopy := make([]int, len(idx))
	copy(idxCopy, idx)
	return &crossInferencePrepared{wrapped: wrapped, inputs: inputs, idx: idxCopy}
}

func (c *crossInferencePrepared) HasConstantResult() bool        { return c.wrapped.HasConstantResult() }
func (c *crossInferencePrepared) InputList() []producer.Producer { return c.inputs }
func (c *crossInferencePrepared) Arity() int                     { return len(c.inputs) }

func (c *crossInferencePrepared) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	if len(inputs) != len(c.inputs) {
		panic(fmt.Sprintf("bestmodel.crossInferencePrepared: WithInputs expects %d inputs, got %d", len(c.inputs), len(inputs)))
	}
	cp := *c
	cp.inputs = inputs
	return &cp
}

func (c *crossInferencePrepared) Apply(ctx context.Context, cache any, r row.Row) (row.Value, error) {
	if len(r) != len(c.inputs) {
		return row.Absent, fmt.Errorf("bestmodel.crossInferencePrepared: expected %d inputs, got %d", len(c.inputs), len(r))
	}
	projected := make(row.Row, len(c.idx))
	for i, pos := range c.idx {
		projected[i] = r[pos]
	}
	return c.wrapped.Apply(ctx, cache, projected)
}

var _ transformer.Prepared = (*crossInferencePrepared)(nil)

func firstRowOf(ctx context.Context, reader rowio.Reader) (row.Row, error) {
	it, err := reader.Iterator(ctx)
	if err != nil {
		return nil, err
	}
	defer it.Close()
	r, err := it.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty dataset")
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

var (
	_ transformer.Preparable = (*Selector)(nil)
)
