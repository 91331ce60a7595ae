package domain

import (
	"fmt"
	"math/rand"
	"strings"
)

// DeckSize is the number of cards in the Truco deck (ranks 4..3, no 8/9/10).
const DeckSize = 40

// HandSize is the number of cards dealt to each player per round.
const HandSize = 3

// Rank is a card rank index in cyclic order: 4 5 6 7 Q J K A 2 3.
type Rank int

// Suit is a suit index in strength order: ♦ ♠ ♥ ♣. Only manilha ties use it.
type Suit int

const rankCount = 10

var (
	rankSymbols = []rune{'4', '5', '6', '7', 'Q', 'J', 'K', 'A', '2', '3'}
	suitSymbols = []rune{'♦', '♠', '♥', '♣'}
)

// Card is a single playing card. Its token form is "{rank}{suit}", e.g. "5♠".
type Card struct {
	Rank Rank
	Suit Suit
}

// String renders the two-character token.
func (c Card) String() string {
	return string([]rune{rankSymbols[c.Rank], suitSymbols[c.Suit]})
}

// Index maps the card into 0..39.
func (c Card) Index() int {
	return int(c.Rank)*len(suitSymbols) + int(c.Suit)
}

// CardFromIndex is the inverse of Card.Index.
func CardFromIndex(i int) Card {
	return Card{Rank: Rank(i / len(suitSymbols)), Suit: Suit(i % len(suitSymbols))}
}

// ParseCard parses a two-character card token.
func ParseCard(token string) (Card, error) {
	runes := []rune(token)
	if len(runes) != 2 {
		return Card{}, fmt.Errorf("invalid card token %q", token)
	}
	rank := indexOf(rankSymbols, runes[0])
	suit := indexOf(suitSymbols, runes[1])
	if rank < 0 || suit < 0 {
		return Card{}, fmt.Errorf("invalid card token %q", token)
	}
	return Card{Rank: Rank(rank), Suit: Suit(suit)}, nil
}

// ParseHand splits a concatenation of card tokens ("5♠K♥A♣") into cards.
func ParseHand(s string) ([]Card, error) {
	runes := []rune(s)
	if len(runes)%2 != 0 {
		return nil, fmt.Errorf("invalid hand %q", s)
	}
	cards := make([]Card, 0, len(runes)/2)
	for i := 0; i < len(runes); i += 2 {
		c, err := ParseCard(string(runes[i : i+2]))
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// FormatHand concatenates card tokens, the persisted form of a hand.
func FormatHand(cards []Card) string {
	var b strings.Builder
	for _, c := range cards {
		b.WriteString(c.String())
	}
	return b.String()
}

// CardTokens renders each card as its token.
func CardTokens(cards []Card) []string {
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.String())
	}
	return out
}

// NewDeck returns the ordered 40-card deck.
func NewDeck() []Card {
	deck := make([]Card, 0, DeckSize)
	for i := 0; i < DeckSize; i++ {
		deck = append(deck, CardFromIndex(i))
	}
	return deck
}

// Deal is the outcome of dealing one round.
type Deal struct {
	Player1 []Card
	Player2 []Card
	Trump   Card
}

// DealRound draws seven distinct cards uniformly from the deck: three for
// each player and the trump indicator. Every round is a fresh draw.
func DealRound(rng *rand.Rand) Deal {
	const draws = 2*HandSize + 1

	seen := make(map[int]struct{}, draws)
	picks := make([]Card, 0, draws)
	for len(picks) < draws {
		i := rng.Intn(DeckSize)
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		picks = append(picks, CardFromIndex(i))
	}

	return Deal{
		Player1: picks[0:HandSize],
		Player2: picks[HandSize : 2*HandSize],
		Trump:   picks[2*HandSize],
	}
}

func indexOf(symbols []rune, r rune) int {
	for i, s := range symbols {
		if s == r {
			return i
		}
	}
	return -1
}
