// Package matching ranks tutors for a student in two stages.
//
// Stage one, the Retriever, scores every tutor by weighted cosine similarity
// of the bio, help and locations embeddings and keeps the best candidates.
// Stage two, the Reranker, combines that similarity with three structured
// signals (class strength, availability overlap and location match) into a
// final score.
//
// Service ties the stages to storage: it keeps the embedding slot cache in
// step with profile edits, persists match runs and appends selected tutors
// to a student's latest run.
//
//	svc, err := matching.NewService(store, emb, matching.DefaultOptions(), log)
//	if err != nil {
//	    return err
//	}
//	rows, err := svc.ComputeRankedMatches(ctx, studentID)
//
// Vectors missing from the slot cache are computed on the fly with the
// service's embedder, so a stale cache changes nothing but latency.
package matching
