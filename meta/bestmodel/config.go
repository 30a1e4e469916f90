// Package bestmodel implements the Best-Model Selector: it cross-trains
// every candidate preparable transformer, evaluates each with a
// user-supplied evaluator, and retrains the winner on the full dataset.
package bestmodel

import (
	"fmt"

	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/transformer"
)

// Mode selects how the selector's for-preparation-data output is
// derived from the winning candidate.
type Mode int

const (
	// Cheat reuses the final, all-data-retrained model for
	// for-preparation-data output too: simple, but its predictions on
	// training rows are optimistic (the model has seen every row).
	Cheat Mode = iota
	// CrossInference uses the winning candidate's fold-dispatching
	// cross-trained variant for for-preparation-data output, so a
	// downstream preparer never sees a prediction tainted by the row's
	// own participation in training.
	CrossInference
)

func (m Mode) String() string {
	switch m {
	case CrossInference:
		return "CROSS_INFERENCE"
	default:
		return "CHEAT"
	}
}

// EvaluatorFactory builds the preparable evaluation node for one
// candidate, given the producer that will carry that candidate's
// predictions. The returned transformer must be constant-result once
// prepared: its output must not depend on its input row.
type EvaluatorFactory func(predicted producer.Producer) (transformer.Preparable, error)

type config struct {
	splitCount int
	seed       uint64
	groupInput producer.Producer // nil means "per-row unique index"
	mode       Mode
}

// Option configures a Selector via copy-on-write setters.
type Option func(*config)

// WithSplitCount sets the number of folds used for candidate
// evaluation (>= 2, default 5).
func WithSplitCount(splitCount int) Option {
	return func(c *config) { c.splitCount = splitCount }
}

// WithSeed perturbs fold assignment (default 0).
func WithSeed(seed uint64) Option { return func(c *config) { c.seed = seed } }

// WithGroupInput sets the producer whose value groups rows into the
// same fold (default: none, each row gets its own unique fold-index
// counter).
func WithGroupInput(p producer.Producer) Option {
	return func(c *config) { c.groupInput = p }
}

// WithMode sets the preparation-data inference mode (default Cheat).
func WithMode(m Mode) Option { return func(c *config) { c.mode = m } }

func validate(cfg config) error {
	if cfg.splitCount < 2 {
		return fmt.Errorf("splitCount must be >= 2, got %d", cfg.splitCount)
	}
	return nil
}
