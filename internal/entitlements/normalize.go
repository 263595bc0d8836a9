package entitlements

import "strings"

// NormalizeQuery applies the canonical trim+lowercase transform used for
// unlock keys. The same transform runs at grant-write time and at check time;
// a mismatch between the two would make unlocks silently fail to match.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
