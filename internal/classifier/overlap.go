package classifier

import "sort"

// Group is a run of detections whose spans chain together through
// overlaps. The whole union [Start, End) is replaced by the winner's
// template, so no byte of any member survives redaction.
type Group struct {
	Start   int
	End     int
	Winner  Detection
	Members []Detection // winner first, then the absorbed detections by start
}

// Absorbed returns the members other than the winner.
func (g Group) Absorbed() []Detection {
	return g.Members[1:]
}

// MergeOverlaps folds detections into non-overlapping groups, ordered by
// start. Overlapping spans merge into their union; the member that outranks
// the others supplies the replacement. Ranking: more sensitive tier first,
// then the longer span, then the earlier start, then catalog order.
// Adjacent spans do not merge.
func MergeOverlaps(detections []Detection) []Group {
	if len(detections) == 0 {
		return nil
	}

	sorted := append([]Detection(nil), detections...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End > b.End
		}
		return a.Category.rank() < b.Category.rank()
	})

	var groups []Group
	for _, d := range sorted {
		if n := len(groups); n > 0 && d.Start < groups[n-1].End {
			last := &groups[n-1]
			last.Members = append(last.Members, d)
			if outranks(d, last.Winner) {
				last.Winner = d
			}
			if d.End > last.End {
				last.End = d.End
			}
			continue
		}
		groups = append(groups, Group{Start: d.Start, End: d.End, Winner: d, Members: []Detection{d}})
	}

	for i := range groups {
		groups[i].Members = winnerFirst(groups[i].Members, groups[i].Winner)
	}
	return groups
}

// winnerFirst moves w to the front of members, keeping the others in order.
func winnerFirst(members []Detection, w Detection) []Detection {
	out := make([]Detection, 0, len(members))
	out = append(out, w)
	skipped := false
	for _, m := range members {
		if !skipped && m == w {
			skipped = true
			continue
		}
		out = append(out, m)
	}
	return out
}

// outranks reports whether a wins an overlap against b.
func outranks(a, b Detection) bool {
	if ra, rb := tierPriority(a.Sensitivity), tierPriority(b.Sensitivity); ra != rb {
		return ra < rb
	}
	if a.Len() != b.Len() {
		return a.Len() > b.Len()
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.Category.rank() < b.Category.rank()
}

// tierPriority orders unknown tiers after L3.
func tierPriority(t Tier) int {
	if r := t.Rank(); r > 0 {
		return r
	}
	return len(Tiers) + 1
}
