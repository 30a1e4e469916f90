package bestmodel

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/zerfoo/metagraph/dagexec"
	"github.com/zerfoo/metagraph/meta/kfold"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/transformer"
)

// CandidateReport summarizes one candidate's evaluation.
type CandidateReport struct {
	Evaluation   float64
	FoldMean     float64
	FoldVariance float64
}

// SelectionReport is the decision-audit trail attached to a Selector's
// for-new-data output: which candidate won, and what each candidate's
// per-fold sub-models output on the representative (first) row used to
// read off the constant evaluations. It supplements (never replaces)
// the largest-evaluation-wins rule itself, whose ties go to the lowest
// candidate index.
type SelectionReport struct {
	WinningIndex int
	Candidates   []CandidateReport
}

// WithReport wraps a Prepared transformer with its SelectionReport,
// promoting every transformer.Prepared method via embedding so the
// wrapped value remains a drop-in Prepared transformer.
type WithReport struct {
	transformer.Prepared
	Report SelectionReport
}

// BestPreparedModel is the auxiliary "best prepared model" view: the
// for-new-data output already is the best prepared model, so this is
// the identity, named for callers who want the un-annotated
// transformer.Prepared without unwrapping WithReport themselves.
func BestPreparedModel(prepared transformer.Prepared) transformer.Prepared {
	if wr, ok := prepared.(*WithReport); ok {
		return wr.Prepared
	}
	return prepared
}

// buildReport computes the per-candidate fold-dispersion diagnostic.
// Evaluating the constant evaluator more than once would be a no-op
// (it is constant by contract), so instead this applies each
// candidate's k per-fold sub-models directly to the same representative
// row used for the main evaluation, and summarizes the spread with
// gonum/stat.
func (s *Selector) buildReport(ctx context.Context, exec *dagexec.Executor, crossTrainers []*kfold.CrossTrainer, evaluations []row.Value, prepared map[producer.Producer]transformer.Prepared, firstRow row.Row, best int) (SelectionReport, error) {
	report := SelectionReport{WinningIndex: best, Candidates: make([]CandidateReport, len(s.candidates))}

	for i, ct := range crossTrainers {
		evalVal, err := asFloat64(evaluations[i])
		if err != nil {
			return SelectionReport{}, fmt.Errorf("candidate %d evaluation: %w", i, err)
		}

		crossPrepared, ok := prepared[ct]
		if !ok {
			return SelectionReport{}, fmt.Errorf("candidate %d: cross-trainer did not prepare", i)
		}
		folds, ok := kfold.FoldModels(crossPrepared)
		mean, variance := 0.0, 0.0
		if ok && len(folds) > 0 {
			foldInputRow, err := evalInputsFor(ctx, exec, ct, firstRow, prepared)
			if err != nil {
				return SelectionReport{}, fmt.Errorf("candidate %d: %w", i, err)
			}
			// Fold sub-models are trained on the wrapped candidate's own
			// inputs, without the trailing group column the
			// cross-trainer itself carries.
			if s.cfg.groupInput != nil && len(foldInputRow) > 0 {
				foldInputRow = foldInputRow[:len(foldInputRow)-1]
			}
			values := make([]float64, 0, len(folds))
			for _, fp := range folds {
				v, err := fp.Apply(ctx, nil, foldInputRow)
				if err != nil {
					continue
				}
				f, err := asFloat64(v)
				if err != nil {
					continue
				}
				values = append(values, f)
			}
			if len(values) > 0 {
				mean, variance = stat.MeanVariance(values, nil)
			}
		}

		report.Candidates[i] = CandidateReport{Evaluation: evalVal, FoldMean: mean, FoldVariance: variance}
	}

	return report, nil
}

// evalInputsFor resolves the row a cross-trainer's own InputList
// expects, given the shared sub-DAG's full placeholder row.
func evalInputsFor(ctx context.Context, exec *dagexec.Executor, ct *kfold.CrossTrainer, firstRow row.Row, prepared map[producer.Producer]transformer.Prepared) (row.Row, error) {
	inputs := ct.InputList()
	out := make(row.Row, len(inputs))
	for i, p := range inputs {
		v, err := exec.Eval(ctx, p, firstRow, prepared)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// bestIndex picks the candidate with the largest evaluation value,
// breaking ties by lowest index.
func bestIndex(evaluations []row.Value) (int, error) {
	if len(evaluations) == 0 {
		return 0, errors.New("no candidates evaluated")
	}
	best := 0
	bestVal, err := asFloat64(evaluations[0])
	if err != nil {
		return 0, fmt.Errorf("candidate 0: %w", err)
	}
	for i := 1; i < len(evaluations); i++ {
		v, err := asFloat64(evaluations[i])
		if err != nil {
			return 0, fmt.Errorf("candidate %d: %w", i, err)
		}
		if v > bestVal {
			bestVal = v
			best = i
		}
	}
	return best, nil
}

// asFloat64 converts an evaluator's scalar output to float64 for
// comparison and statistics. Evaluators are expected to emit ordinary
// numeric scores; anything else is rejected with an error.
func asFloat64(v row.Value) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("evaluation value is not numeric (%T)", v)
	}
}

var _ transformer.Prepared = (*WithReport)(nil)
