package services

import "time"

// ReviewerLoad is one row of the reviewer workload snapshot: how many
// questions a reviewer (or admin) currently holds in pending_review.
type ReviewerLoad struct {
	ReviewerID   uint      `json:"reviewer_id"`
	PendingCount int       `json:"pending_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// PickReviewer selects the least-loaded reviewer from a workload snapshot.
// Ties are broken by earliest account creation, then by lowest id, so the
// choice is deterministic for any input ordering. Returns false when the
// snapshot is empty.
func PickReviewer(loads []ReviewerLoad) (uint, bool) {
	if len(loads) == 0 {
		return 0, false
	}

	best := loads[0]
	for _, l := range loads[1:] {
		if l.PendingCount < best.PendingCount {
			best = l
			continue
		}
		if l.PendingCount > best.PendingCount {
			continue
		}
		if l.CreatedAt.Before(best.CreatedAt) {
			best = l
			continue
		}
		if l.CreatedAt.Equal(best.CreatedAt) && l.ReviewerID < best.ReviewerID {
			best = l
		}
	}
	return best.ReviewerID, true
}
