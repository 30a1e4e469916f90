// Command zerfoo-train runs the literal XOR Best-Model Selector
// scenario end to end: two candidate transformers (a closed-form XOR
// and a decoy identity-on-a) compete for the lowest cross-validated
// error against an accuracy evaluator, and the winner is retrained on
// the full dataset and applied to a held-out set of rows.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/zerfoo/metagraph/dagexec"
	"github.com/zerfoo/metagraph/leaf"
	"github.com/zerfoo/metagraph/meta/bestmodel"
	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/producer"
	"github.com/zerfoo/metagraph/row"
	"github.com/zerfoo/metagraph/rowio"
	"github.com/zerfoo/metagraph/transformer"
)

func main() {
	rows := flag.Int("rows", 1000, "number of synthetic training rows to generate")
	seed := flag.Int64("seed", 1337, "random seed for synthetic data and fold assignment")
	splitCount := flag.Int("splits", 4, "cross-validation split count")
	flag.Parse()

	if err := run(*rows, *seed, *splitCount); err != nil {
		log.Fatalf("zerfoo-train: %v", err)
	}
}

func run(numRows int, seed int64, splitCount int) error {
	a := dagexec.NewPlaceholder()
	b := dagexec.NewPlaceholder()
	label := dagexec.NewPlaceholder()

	candidates := []transformer.Preparable{
		leaf.XOR(a, b),
		leaf.IdentityOnA(a, b),
	}

	evaluatorFactory := func(predicted producer.Producer) (transformer.Preparable, error) {
		return leaf.NewAccuracy(predicted, label), nil
	}

	sel, err := bestmodel.New(candidates, evaluatorFactory,
		bestmodel.WithSplitCount(splitCount), bestmodel.WithSeed(uint64(seed)))
	if err != nil {
		return fmt.Errorf("building selector: %w", err)
	}

	reader := rowio.NewSlice(xorRows(numRows, seed))

	ctx := context.Background()
	prep, err := sel.Preparer(ctx, preparer.Context{EstimatedExampleCount: numRows, Parallelism: 4})
	if err != nil {
		return fmt.Errorf("creating preparer: %w", err)
	}

	it, err := reader.Iterator(ctx)
	if err != nil {
		return fmt.Errorf("opening reader: %w", err)
	}
	for {
		r, err := it.Next(ctx)
		if err != nil {
			break
		}
		if err := prep.Process(ctx, r); err != nil {
			it.Close()
			return fmt.Errorf("processing row: %w", err)
		}
	}
	it.Close()

	result, err := prep.Finish(ctx, reader)
	if err != nil {
		return fmt.Errorf("finishing preparation: %w", err)
	}

	wr, ok := result.ForNewData.(*bestmodel.WithReport)
	if !ok {
		return fmt.Errorf("unexpected ForNewData type %T", result.ForNewData)
	}

	names := []string{"leaf.XOR", "leaf.IdentityOnA"}
	fmt.Printf("winning candidate: %s (index %d)\n", names[wr.Report.WinningIndex], wr.Report.WinningIndex)
	for i, c := range wr.Report.Candidates {
		fmt.Printf("  %-20s evaluation=%.4f fold_mean=%.4f fold_variance=%.6f\n",
			names[i], c.Evaluation, c.FoldMean, c.FoldVariance)
	}

	fmt.Println("held-out predictions:")
	for _, c := range []struct{ a, b int }{{0, 0}, {0, 1}, {1, 0}, {1, 1}} {
		v, err := wr.Apply(ctx, nil, row.Row{c.a, c.b})
		if err != nil {
			return fmt.Errorf("applying winner to (%d,%d): %w", c.a, c.b, err)
		}
		fmt.Printf("  xor(%d,%d) = %v\n", c.a, c.b, v)
	}

	return nil
}

// xorRows builds n deterministic training rows in the selector's own
// input-list ordering: the evaluator's non-predicted input (label)
// first, then each candidate's inputs (a, b) in first-seen order.
func xorRows(n int, seed int64) []row.Row {
	r := rand.New(rand.NewSource(seed))
	rows := make([]row.Row, n)
	for i := range rows {
		a := r.Intn(2)
		b := r.Intn(2)
		lbl := a ^ b
		rows[i] = row.Row{lbl, a, b}
	}
	return rows
}
