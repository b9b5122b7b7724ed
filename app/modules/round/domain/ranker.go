package rounddomain

import "slices"

// OrderedActors projects the action log (ascending Seq) into distinct actors,
// most recent first. Each actor appears once, at their latest action. Actors
// whose latest actions share a timestamp are ordered by who was seen first.
func OrderedActors(actions []Action) []RankedActor {
	if len(actions) == 0 {
		return nil
	}

	firstSeen := make(map[string]int64, len(actions))
	for _, a := range actions {
		if _, ok := firstSeen[a.UserID]; !ok {
			firstSeen[a.UserID] = a.Seq
		}
	}

	out := make([]RankedActor, 0, len(firstSeen))
	seen := make(map[string]struct{}, len(firstSeen))
	for i := len(actions) - 1; i >= 0; i-- {
		a := actions[i]
		if _, ok := seen[a.UserID]; ok {
			continue
		}
		seen[a.UserID] = struct{}{}
		out = append(out, RankedActor{
			UserID:         a.UserID,
			LastActionTime: a.ActedAt,
			FirstSeenSeq:   firstSeen[a.UserID],
		})
	}

	// Already descending by time; only equal-timestamp runs move.
	slices.SortStableFunc(out, func(x, y RankedActor) int {
		if c := y.LastActionTime.Compare(x.LastActionTime); c != 0 {
			return c
		}
		switch {
		case x.FirstSeenSeq < y.FirstSeenSeq:
			return -1
		case x.FirstSeenSeq > y.FirstSeenSeq:
			return 1
		default:
			return 0
		}
	})
	return out
}
