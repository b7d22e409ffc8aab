package storage

import (
	"context"
	"errors"

	"paraScope/internal/model"
)

// Storage defines a sink for decoded records.
type Storage interface {
	PutRecords(ctx context.Context, records []model.Record) error
}

// Multi fans a batch out to every sink. All sinks are tried; their errors
// are joined.
type Multi []Storage

func (m Multi) PutRecords(ctx context.Context, records []model.Record) error {
	var errs []error
	for _, s := range m {
		if err := s.PutRecords(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
