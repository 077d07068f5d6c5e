package runner

import (
	"Go2FlowFeatures/internal/metrics"
	"Go2FlowFeatures/internal/model"
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// WriterError reports the failure of a single writer.
type WriterError struct {
	Writer string
	Err    error
}

func (e *WriterError) Error() string {
	return fmt.Sprintf("writer %s: %v", e.Writer, e.Err)
}

func (e *WriterError) Unwrap() error {
	return e.Err
}

// Export hands the result to every writer in order. A failing writer does
// not stop the others; all failures are joined into the returned error.
// The run moves to Exported and then Done either way.
func (r *Runner) Export(ctx context.Context, res *Result, writers ...model.Writer) error {
	payload := res.Payload()
	logger := log.WithField("run_id", res.RunID)

	var errs []error
	for _, w := range writers {
		start := time.Now()
		if err := w.Write(ctx, payload); err != nil {
			metrics.WriterErrors.WithLabelValues(w.Name()).Inc()
			logger.WithError(err).WithField("writer", w.Name()).Error("Export failed")
			errs = append(errs, &WriterError{Writer: w.Name(), Err: err})
			continue
		}
		metrics.RowsExported.WithLabelValues(w.Name()).Add(float64(len(payload.Rows)))
		logger.WithFields(log.Fields{
			"writer":  w.Name(),
			"rows":    len(payload.Rows),
			"elapsed": time.Since(start),
		}).Info("Exported feature rows")
	}

	r.setState(res, Exported)
	r.setState(res, Done)
	return errors.Join(errs...)
}
