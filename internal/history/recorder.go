package history

import (
	"context"
	"errors"
)

type Recorder interface {
	Record(ctx context.Context, r *Record) error
}

type MultiRecorder []Recorder

func (m MultiRecorder) Record(ctx context.Context, r *Record) error {
	var errs []error
	for _, rec := range m {
		if rec == nil {
			continue
		}
		if err := rec.Record(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Record) error {
	return nil
}
