package collector

// AggregateScopes unions scope sets observed across multiple audit
// events for the same external_id (§4.2.2, P4). Order is stable: first
// occurrence order, deduplicated.
func AggregateScopes(sets ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, set := range sets {
		for _, scope := range set {
			if _, ok := seen[scope]; ok {
				continue
			}
			seen[scope] = struct{}{}
			out = append(out, scope)
		}
	}
	return out
}
