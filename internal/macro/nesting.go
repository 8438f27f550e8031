package macro

// ─── Nesting & Pairing ──────────────────────────────────────────────────────
//
// Every structural edit of a List re-runs recalculate over the whole list.
// Lists are editor-sized, so the O(n·m) pairing scan is not a concern.

// classifier returns the nesting role and bracket family of a type tag.
type classifier func(tag string) (Role, string)

// recalculate renumbers positions, assigns nesting depths and rebuilds
// bracket pairs for items in list order.
func recalculate(items []*FlatItem, classify classifier) {
	roles := make([]Role, len(items))
	families := make([]string, len(items))
	for i, it := range items {
		it.Position = i + 1
		it.Pair = NoItem
		roles[i], families[i] = classify(it.Type)
	}

	assignDepths(items, roles)
	pairBrackets(items, roles, families)
}

// assignDepths runs the single left-to-right depth pass. A bracket-end
// decrements before it is recorded so it sits at its start's depth; a
// bracket-start is recorded and then increments so its body sits one level
// deeper. Depth never drops below zero.
func assignDepths(items []*FlatItem, roles []Role) {
	depth := 0
	for i, it := range items {
		switch roles[i] {
		case RoleClose:
			if depth > 0 {
				depth--
			}
			it.NestDepth = depth
		case RoleOpen:
			it.NestDepth = depth
			depth++
		default:
			it.NestDepth = depth
		}
	}
}

// pairBrackets links every bracket-start, in list order, to the first
// unclaimed bracket-end of the same family at the same depth after it.
// Starts without a candidate are left unpaired.
func pairBrackets(items []*FlatItem, roles []Role, families []string) {
	var ends []int
	for i := range items {
		if roles[i] == RoleClose {
			ends = append(ends, i)
		}
	}

	for i, start := range items {
		if roles[i] != RoleOpen || start.Pair != NoItem {
			continue
		}
		for _, j := range ends {
			end := items[j]
			if end.Pair != NoItem || j <= i {
				continue
			}
			if end.NestDepth != start.NestDepth || families[j] != families[i] {
				continue
			}
			start.Pair = end.ID
			end.Pair = start.ID
			break
		}
	}
}
