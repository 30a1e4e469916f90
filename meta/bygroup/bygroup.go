// Package bygroup implements the Prepared-By-Group Wrapper: it trains
// one independent copy of a wrapped transformer per distinct value of a
// group input, and at inference dispatches each row to the sub-
// transformer for its group.
package bygroup

import (
	"context"
	"fmt"

	"github.com/zerfoo/metagraph/dagerr"
	"github.com/zerfoo/metagraph/dagexec"
	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/rowio"
	"github.com/zerfoo/metagraph/transformer"
)

// UnknownGroupPolicy controls inference behavior for a group never seen
// during training.
type UnknownGroupPolicy int

const (
	// ReturnAbsent yields the absent sentinel for an unseen group.
	ReturnAbsent UnknownGroupPolicy = iota
	// UseAny dispatches to an arbitrary (but, within a process,
	// deterministic: first-seen) sub-transformer for an unseen group.
	UseAny
)

func (p UnknownGroupPolicy) String() string {
	switch p {
	case ReturnAbsent:
		return "RETURN_ABSENT"
	case UseAny:
		return "USE_ANY"
	default:
		return fmt.Sprintf("UnknownGroupPolicy(%d)", int(p))
	}
}

type config struct {
	unknownGroupPolicy UnknownGroupPolicy
}

// Option configures a Wrapper via copy-on-write setters.
type Option func(*config)

// WithUnknownGroupPolicy sets the policy applied at inference for a
// group unseen during training (default ReturnAbsent).
func WithUnknownGroupPolicy(p UnknownGroupPolicy) Option {
	return func(c *config) { c.unknownGroupPolicy = p }
}

// Wrapper is the Prepared-By-Group Wrapper: always a Preparable, always
// trained in batch mode regardless of the wrapped transformer's own
// preparer mode (a full pass over the reader is required to discover
// every group).
type Wrapper struct {
	wrapped    transformer.Preparable
	groupInput producer.Producer
	cfg        config
}

// New wraps transformer t, training one copy per distinct value of
// groupInput. The group column is read first (position 0) of every row
// this wrapper's preparer processes.
func New(wrapped transformer.Preparable, groupInput producer.Producer, opts ...Option) *Wrapper {
	cfg := config{unknownGroupPolicy: ReturnAbsent}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Wrapper{wrapped: wrapped, groupInput: groupInput, cfg: cfg}
}

func (w *Wrapper) HasConstantResult() bool { return false }

func (w *Wrapper) InputList() []producer.Producer {
	return prependGroup(w.groupInput, w.wrapped.InputList())
}

func (w *Wrapper) Arity() int { return len(w.InputList()) }

func (w *Wrapper) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	if len(inputs) == 0 {
		panic("bygroup: WithInputs requires at least the group column")
	}
	wrapped := w.wrapped.WithInputs(inputs[1:]...).(transformer.Preparable)
	return &Wrapper{wrapped: wrapped, groupInput: inputs[0], cfg: w.cfg}
}

// Preparer implements transformer.Preparable.
func (w *Wrapper) Preparer(_ context.Context, pctx preparer.Context) (preparer.Preparer, error) {
	return &groupPreparer{
		wrapped:       w.wrapped,
		pctx:          pctx,
		cfg:           w.cfg,
		groupInput:    w.groupInput,
		wrappedInputs: w.wrapped.InputList(),
		sub:           newGroupMap[preparer.Preparer](),
	}, nil
}

type groupPreparer struct {
	wrapped       transformer.Preparable
	pctx          preparer.Context
	cfg           config
	groupInput    producer.Producer
	wrappedInputs []producer.Producer
	sub           *groupMap[preparer.Preparer]
}

// Mode is always Batch: a complete pass over the reader is required to
// discover every group before any sub-preparer can finish.
func (p *groupPreparer) Mode() preparer.Mode { return preparer.Batch }

func (p *groupPreparer) Process(ctx context.Context, r row.Row) error {
	if len(r) == 0 {
		return fmt.Errorf("bygroup: expected a leading group column, got empty row")
	}
	key := row.NewGroupKey(r[0])
	inner := r[1:]

	sp, err := p.sub.getOrCreate(key, func() (preparer.Preparer, error) {
		return p.wrapped.Preparer(ctx, p.pctx)
	})
	if err != nil {
		return dagerr.New(dagerr.Configuration, "bygroup.groupPreparer.Process", 0, err)
	}
	return sp.Process(ctx, inner)
}

func (p *groupPreparer) Finish(ctx context.Context, reader rowio.Reader) (preparer.Result, error) {
	keys := p.sub.Keys()
	parallelism := p.pctx.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	pool := dagexec.NewWorkerPool(ctx, min(len(keys)+1, parallelism))

	results := make([]preparer.Result, len(keys))
	errs := make([]error, len(keys))

	for i, key := range keys {
		i, key := i, key
		sp, _ := p.sub.get(key)
		pool.Submit(func(taskCtx context.Context) error {
			var groupReader rowio.Reader
			if reader != nil && sp.Mode() == preparer.Batch {
				groupReader = reader.Filter(func(r row.Row) bool {
					return len(r) > 0 && row.NewGroupKey(r[0]) == key
				}).Map(func(r row.Row) row.Row { return r[1:] })
			}
			res, err := sp.Finish(taskCtx, groupReader)
			results[i] = res
			errs[i] = err
			return err
		})
	}

	taskErrs := pool.Shutdown()
	if len(taskErrs) > 0 {
		pool.ShutdownNow()
		return preparer.Result{}, dagerr.New(dagerr.InnerTask, "bygroup.groupPreparer.Finish", 0, taskErrs[0])
	}

	forPrep := make(map[row.GroupKey]transformer.Prepared, len(keys))
	forNew := make(map[row.GroupKey]transformer.Prepared, len(keys))

	for i, key := range keys {
		if errs[i] != nil {
			return preparer.Result{}, dagerr.New(dagerr.InnerTask, "bygroup.groupPreparer.Finish", 0, errs[i])
		}
		fp, ok := results[i].ForPreparationData.(transformer.Prepared)
		if !ok {
			return preparer.Result{}, dagerr.New(dagerr.Reduction, "bygroup.groupPreparer.Finish", 0,
				fmt.Errorf("group %v result is not a Prepared transformer", key))
		}
		np, ok := results[i].ForNewData.(transformer.Prepared)
		if !ok {
			return preparer.Result{}, dagerr.New(dagerr.Reduction, "bygroup.groupPreparer.Finish", 0,
				fmt.Errorf("group %v result is not a Prepared transformer", key))
		}
		forPrep[key] = fp
		forNew[key] = np
	}

	orderedKeys := make([]row.GroupKey, len(keys))
	copy(orderedKeys, keys)

	forPreparationData := &groupDispatchPrepared{
		groups:        forPrep,
		orderedKeys:   orderedKeys,
		cfg:           p.cfg,
		groupInput:    p.groupInput,
		wrappedInputs: p.wrappedInputs,
	}
	forNewData := &groupDispatchPrepared{
		groups:        forNew,
		orderedKeys:   orderedKeys,
		cfg:           p.cfg,
		groupInput:    p.groupInput,
		wrappedInputs: p.wrappedInputs,
	}

	return preparer.Result{ForPreparationData: forPreparationData, ForNewData: forNewData}, nil
}

// groupDispatchPrepared is the Wrapper's Prepared output: per row, it
// looks up the sub-transformer for the row's group and applies it to
// the row's remaining (non-group) inputs.
type groupDispatchPrepared struct {
	groups        map[row.GroupKey]transformer.Prepared
	orderedKeys   []row.GroupKey
	cfg           config
	groupInput    producer.Producer
	wrappedInputs []producer.Producer
}

func (d *groupDispatchPrepared) HasConstantResult() bool { return false }

func (d *groupDispatchPrepared) InputList() []producer.Producer {
	return prependGroup(d.groupInput, d.wrappedInputs)
}

func (d *groupDispatchPrepared) Arity() int { return len(d.InputList()) }

func (d *groupDispatchPrepared) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	if len(inputs) == 0 {
		panic("bygroup: WithInputs requires at least the group column")
	}
	groups := make(map[row.GroupKey]transformer.Prepared, len(d.groups))
	for k, v := range d.groups {
		groups[k] = v.WithInputs(inputs[1:]...).(transformer.Prepared)
	}
	return &groupDispatchPrepared{
		groups:        groups,
		orderedKeys:   d.orderedKeys,
		cfg:           d.cfg,
		groupInput:    inputs[0],
		wrappedInputs: inputs[1:],
	}
}

func (d *groupDispatchPrepared) Apply(ctx context.Context, cache any, r row.Row) (row.Value, error) {
	if len(r) == 0 {
		return row.Absent, fmt.Errorf("bygroup: expected a leading group column, got empty row")
	}
	key := row.NewGroupKey(r[0])
	inner := r[1:]

	sp, ok := d.groups[key]
	if !ok {
		switch d.cfg.unknownGroupPolicy {
		case UseAny:
			if len(d.orderedKeys) == 0 {
				return row.Absent, nil
			}
			sp = d.groups[d.orderedKeys[0]]
		default:
			return row.Absent, nil
		}
	}
	return sp.Apply(ctx, cache, inner)
}

// SubtransformerMap builds the auxiliary view over an already-prepared
// Wrapper output: a Prepared transformer whose input list is the
// original non-group inputs (no group column), and whose Apply returns
// the complete map from group key to that group's sub-transformer's
// output on those inputs.
func SubtransformerMap(prepared transformer.Prepared) (transformer.Prepared, error) {
	d, ok := prepared.(*groupDispatchPrepared)
	if !ok {
		return nil, dagerr.New(dagerr.Argument, "bygroup.SubtransformerMap", 0,
			fmt.Errorf("prepared is not a bygroup Wrapper output (%T)", prepared))
	}
	return &subtransformerMapPrepared{dispatch: d}, nil
}

type subtransformerMapPrepared struct {
	dispatch *groupDispatchPrepared
}

func (s *subtransformerMapPrepared) HasConstantResult() bool { return false }

func (s *subtransformerMapPrepared) InputList() []producer.Producer {
	out := make([]producer.Producer, len(s.dispatch.wrappedInputs))
	copy(out, s.dispatch.wrappedInputs)
	return out
}

func (s *subtransformerMapPrepared) Arity() int { return len(s.dispatch.wrappedInputs) }

func (s *subtransformerMapPrepared) WithInputs(inputs ...producer.Producer) transformer.Transformer {
	full := append([]producer.Producer{s.dispatch.groupInput}, inputs...)
	newDispatch := s.dispatch.WithInputs(full...).(*groupDispatchPrepared)
	return &subtransformerMapPrepared{dispatch: newDispatch}
}

// Apply returns a map[row.GroupKey]row.Value: every group's
// sub-transformer applied to r.
func (s *subtransformerMapPrepared) Apply(ctx context.Context, cache any, r row.Row) (row.Value, error) {
	out := make(map[row.GroupKey]row.Value, len(s.dispatch.orderedKeys))
	for _, key := range s.dispatch.orderedKeys {
		sp := s.dispatch.groups[key]
		v, err := sp.Apply(ctx, cache, r)
		if err != nil {
			return row.Absent, err
		}
		out[key] = v
	}
	return out, nil
}

func prependGroup(groupInput producer.Producer, rest []producer.Producer) []producer.Producer {
	out := make([]producer.Producer, len(rest)+1)
	out[0] = groupInput
	copy(out[1:], rest)
	return out
}

var (
	_ transformer.Preparable = (*Wrapper)(nil)
	_ transformer.Prepared   = (*groupDispatchPrepared)(nil)
	_ transformer.Prepared   = (*subtransformerMapPrepared)(nil)
)
