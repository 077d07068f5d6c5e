package model

import "context"

// Writer defines a generic interface for exporting the feature rows of a run.
type Writer interface {
	// Name identifies the writer in logs and errors.
	Name() string

	// Write persists or forwards one run's export.
	Write(ctx context.Context, export *Export) error

	// Close releases connections and files held by the writer.
	Close() error
}
