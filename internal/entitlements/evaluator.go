package entitlements

// DefaultFreeTierCap is the number of results a free-tier visitor may see
// for any single query.
const DefaultFreeTierCap = 10

// UnboundedResults marks a verdict with no result cap.
const UnboundedResults = -1

// Evaluator answers access questions from a snapshot. It is pure: no I/O, no
// clock reads, no mutation, so the exact same decisions can be replayed
// anywhere. The server-side list truncation is the enforcement point; any
// client-side use of the same rules is advisory only.
type Evaluator struct {
	freeTierCap int
}

// NewEvaluator builds an evaluator with the provided free-tier cap. Values
// below 1 fall back to the default cap.
func NewEvaluator(freeTierCap int) Evaluator {
	if freeTierCap < 1 {
		freeTierCap = DefaultFreeTierCap
	}
	return Evaluator{freeTierCap: freeTierCap}
}

// CanAccessCategory reports whether the snapshot grants category browsing.
// Category-level unlocks are a vestigial concept: only a subscription opens
// categories, and no per-category unlock rows exist.
func (e Evaluator) CanAccessCategory(s *Snapshot, category string) bool {
	if s == nil {
		return false
	}
	return s.FullAccess()
}

// CanAccessSearch reports whether the full result set for the query is
// visible.
func (e Evaluator) CanAccessSearch(s *Snapshot, query string) bool {
	if s == nil {
		return false
	}
	return s.FullAccess() || s.HasUnlock(query)
}

// MaxVisibleResults returns the per-query result cap, with UnboundedResults
// meaning no cap.
func (e Evaluator) MaxVisibleResults(s *Snapshot, query string) int {
	if e.CanAccessSearch(s, query) {
		return UnboundedResults
	}
	return e.freeTierCap
}

// ShouldShowUpgradeBanner reports whether the caller should surface the
// upgrade prompt: results were withheld and the requester has no full access
// for this query.
func (e Evaluator) ShouldShowUpgradeBanner(s *Snapshot, query string, totalResults, visibleResults int) bool {
	if e.CanAccessSearch(s, query) {
		return false
	}
	return totalResults > visibleResults
}

// VisibleCount applies the cap to a total, returning how many results may
// leave the boundary.
func (e Evaluator) VisibleCount(s *Snapshot, query string, totalResults int) int {
	limit := e.MaxVisibleResults(s, query)
	if limit == UnboundedResults || totalResults <= limit {
		return totalResults
	}
	return limit
}
