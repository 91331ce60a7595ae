package domain

// RemoveCards removes the specified cards from a hand and returns the updated hand.
// The input slice is not modified.
func RemoveCards(hand []Card, toRemove ...Card) []Card {
	if len(toRemove) == 0 || len(hand) == 0 {
		return hand
	}

	removeCounts := make(map[Card]int, len(toRemove))
	for _, card := range toRemove {
		removeCounts[card]++
	}

	updated := make([]Card, 0, len(hand))
	for _, card := range hand {
		if count, ok := removeCounts[card]; ok && count > 0 {
			removeCounts[card] = count - 1
			continue
		}
		updated = append(updated, card)
	}
	return updated
}

// ContainsCard reports whether hand holds c.
func ContainsCard(hand []Card, c Card) bool {
	for _, card := range hand {
		if card == c {
			return true
		}
	}
	return false
}

// Disjoint reports whether no card appears twice across the given sets.
func Disjoint(sets ...[]Card) bool {
	seen := make(map[Card]struct{})
	for _, set := range sets {
		for _, c := range set {
			if _, dup := seen[c]; dup {
				return false
			}
			seen[c] = struct{}{}
		}
	}
	return true
}
