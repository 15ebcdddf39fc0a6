// Package refresher recomputes cached profile embeddings in bulk.
//
// A backfill walks every student and tutor profile, embeds the bio, help
// and location texts under the current model and upserts the three slots.
// Profiles are split into batches; batches are embedded concurrently with a
// bounded number of embedder calls in flight, and each batch is written in
// its own transaction.
//
//	r := refresher.New(service, log)
//	stats, err := r.RefreshAll(ctx, &refresher.Config{Workers: 8, OnlyMissing: true})
//	if errors.Is(err, refresher.ErrRefreshInProgress) {
//	    // another backfill is running
//	}
//
// Per-profile embedding failures are counted in Statistics and do not stop
// the run. Storage failures and cancellation do.
package refresher
