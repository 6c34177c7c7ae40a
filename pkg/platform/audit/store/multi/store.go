// Package multi fans one record out to several sinks.
package multi

import (
	"context"
	"errors"

	audit "audittrail/pkg/platform/audit"
)

// Store appends to every wrapped store in order. A failing store does not stop the
// others; all failures are joined into the returned error.
type Store struct {
	stores []audit.Store
}

func New(stores ...audit.Store) *Store {
	s := &Store{}
	for _, store := range stores {
		if store != nil {
			s.stores = append(s.stores, store)
		}
	}
	return s
}

func (s *Store) Append(ctx context.Context, record audit.Record) error {
	var errs []error
	for _, store := range s.stores {
		if err := store.Append(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
