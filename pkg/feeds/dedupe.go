package feeds

import (
	"sort"
)

// preferenceScore ranks duplicate records for the same MatchKey. Numeric
// scoring keeps the surviving record deterministic regardless of which
// feed was fetched first: a stream beats no stream, a live record beats
// a prematch one, richer odds beat sparser ones, manual entries lose to
// either feed.
func preferenceScore(e *Event) int {
	score := 0
	if e.HasStream {
		score += 32
	}
	if e.Status == StatusLive {
		score += 16
	}
	switch e.Origin {
	case OriginOperator:
		score += 8
	case OriginMarketing:
		score += 4
	}
	score += e.Odds.richness()
	return score
}

// Dedupe merges records sharing a MatchKey, keeping the preferred one
// and borrowing odds and start time from the loser when the winner lacks
// them. Output order is deterministic: start time, then match key.
func Dedupe(events []Event) []Event {
	byKey := make(map[string]*Event, len(events))
	order := make([]string, 0, len(events))

	for i := range events {
		ev := events[i]
		ev.RecomputeHasStream()

		existing, ok := byKey[ev.MatchKey]
		if !ok {
			copied := ev
			byKey[ev.MatchKey] = &copied
			order = append(order, ev.MatchKey)
			continue
		}

		winner, loser := existing, &ev
		if better(&ev, existing) {
			winner, loser = &ev, existing
		}

		// Borrow what the winner lacks; the identity stays the winner's.
		if winner.Odds == nil {
			winner.Odds = loser.Odds
		}
		if winner.StartTimeEpochMS == nil {
			winner.StartTimeEpochMS = loser.StartTimeEpochMS
		}
		if winner.Sport == "" {
			winner.Sport = loser.Sport
		}

		copied := *winner
		byKey[ev.MatchKey] = &copied
	}

	out := make([]Event, 0, len(byKey))
	for _, key := range order {
		out = append(out, *byKey[key])
	}

	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := startOrZero(&out[i]), startOrZero(&out[j])
		if ti != tj {
			return ti < tj
		}
		return out[i].MatchKey < out[j].MatchKey
	})
	return out
}

// better reports whether a should survive over b. The final tie-break on
// ID keeps the outcome independent of arrival order.
func better(a, b *Event) bool {
	sa, sb := preferenceScore(a), preferenceScore(b)
	if sa != sb {
		return sa > sb
	}
	return a.ID < b.ID
}

// FilterByStatus returns the events matching the given status.
func FilterByStatus(events []Event, status Status) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func startOrZero(e *Event) int64 {
	if e.StartTimeEpochMS == nil {
		return 0
	}
	return *e.StartTimeEpochMS
}
