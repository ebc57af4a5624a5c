package qset

// ChainDelta is one signed adjustment to the questions_count aggregate.
// It applies to the Qset StartID and to every ancestor up to its root,
// walking parent references upward and persisting each step within the
// enclosing transaction.
type ChainDelta struct {
	StartID string
	Delta   int
}

// ChainDeltas computes the ancestor-chain adjustments required when an entity
// holding count questions moves from oldParentID to newParentID. Either id may
// be empty: a creation has no old parent, a deletion has no new one. A nil
// result means the aggregate is unaffected and no propagation must run.
func ChainDeltas(oldParentID, newParentID string, count int) []ChainDelta {
	if count == 0 || oldParentID == newParentID {
		return nil
	}
	deltas := make([]ChainDelta, 0, 2)
	if oldParentID != "" {
		deltas = append(deltas, ChainDelta{StartID: oldParentID, Delta: -count})
	}
	if newParentID != "" {
		deltas = append(deltas, ChainDelta{StartID: newParentID, Delta: count})
	}
	return deltas
}
