package service

import (
	"context"
	"errors"

	"roomsync/internal/metrics"
	"roomsync/internal/repository"
	apperrors "roomsync/pkg/errors"
)

const maxCASAttempts = 16

// withVersionRetry повторяет read-modify-write, пока CAS по версии не пройдет
func withVersionRetry(ctx context.Context, entity string, fn func() error) error {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		err := fn()
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		metrics.CASRetries.WithLabelValues(entity).Inc()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return apperrors.Newf(apperrors.ErrConflict, "%s was modified concurrently, please retry", entity)
}
