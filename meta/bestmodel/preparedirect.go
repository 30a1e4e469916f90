package bestmodel

import (
	"context"
	"errors"
	"io"

	"github.com/zerfoo/metagraph/dagerr"
	"github.com/zerfoo/metagraph/preparer"
	"github.com/zerfoo/metagraph/rowio"
	"github.com/zerfoo/metagraph/transformer"
)

// prepareDirect drives a single Preparable's full Preparer/Process/
// Finish lifecycle against reader, independent of dagexec.Executor.
// Executor.Prepare only ever records a node's ForPreparationData (so
// that every other graph node can be looked up uniformly); the
// selector's final retrain step specifically needs ForNewData from
// the winning candidate trained on the complete dataset, which
// Executor.Prepare cannot hand back.
func prepareDirect(ctx context.Context, candidate transformer.Preparable, reader rowio.Reader, pctx preparer.Context) (preparer.Result, error) {
	prep, err := candidate.Preparer(ctx, pctx)
	if err != nil {
		return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.prepareDirect", 0, err)
	}

	it, err := reader.Iterator(ctx)
	if err != nil {
		return preparer.Result{}, dagerr.New(dagerr.Configuration, "bestmodel.prepareDirect", 0, err)
	}
	for {
		r, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			it.Close()
			return preparer.Result{}, dagerr.New(dagerr.InnerTask, "bestmodel.prepareDirect", 0, err)
		}
		if err := prep.Process(ctx, r); err != nil {
			it.Close()
			return preparer.Result{}, dagerr.New(dagerr.InnerTask, "bestmodel.prepareDirect", 0, err)
		}
	}
	it.Close()

	var finishReader rowio.Reader
	if prep.Mode() == preparer.Batch {
		finishReader = reader
	}

	result, err := prep.Finish(ctx, finishReader)
	if err != nil {
		return preparer.Result{}, dagerr.New(dagerr.InnerTask, "bestmodel.prepareDirect", 0, err)
	}
	return result, nil
}
