package fixture

import (
	"context"
	"fmt"

	"github.com/danmuck/aqltest/internal/observability"
	"github.com/rs/zerolog/log"
)

// Populate writes every fixture record into namespace.set and returns how many were written.
func Populate(ctx context.Context, store Store, namespace, set string) (int, error) {
	written := 0
	defer func() {
		observability.RecordFixtureRecords(set, written)
	}()

	for _, rec := range Records() {
		if err := store.Put(ctx, namespace, set, rec); err != nil {
			return written, fmt.Errorf("populate %s.%s: %w", namespace, set, err)
		}
		written++
	}
	log.Info().Str("ns", namespace).Str("set", set).Int("records", written).Msg("populated fixture set")
	return written, nil
}
