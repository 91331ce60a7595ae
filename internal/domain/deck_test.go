package domain

import (
	"math/rand"
	"testing"
)

func TestParseCard(t *testing.T) {
	tests := []struct {
		token   string
		want    Card
		wantErr bool
	}{
		{token: "4♦", want: Card{Rank: 0, Suit: 0}},
		{token: "5♠", want: Card{Rank: 1, Suit: 1}},
		{token: "Q♥", want: Card{Rank: 4, Suit: 2}},
		{token: "3♣", want: Card{Rank: 9, Suit: 3}},
		{token: "8♣", wantErr: true},
		{token: "4x", wantErr: true},
		{token: "4", wantErr: true},
		{token: "4♦5♠", wantErr: true},
		{token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseCard(tt.token)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.token)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.token {
				t.Fatalf("String() = %q, want %q", got.String(), tt.token)
			}
		})
	}
}

func TestParseHand(t *testing.T) {
	cards, err := ParseHand("5♠K♥A♣")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cards) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(cards))
	}
	if FormatHand(cards) != "5♠K♥A♣" {
		t.Fatalf("FormatHand = %q", FormatHand(cards))
	}
	if _, err := ParseHand("5♠K"); err == nil {
		t.Fatal("expected error for odd-length hand")
	}
}

func TestNewDeckHasFortyDistinctCards(t *testing.T) {
	deck := NewDeck()
	if len(deck) != DeckSize {
		t.Fatalf("expected %d cards, got %d", DeckSize, len(deck))
	}
	if !Disjoint(deck) {
		t.Fatal("deck contains duplicates")
	}
	for i, c := range deck {
		if c.Index() != i {
			t.Fatalf("card %s has index %d, want %d", c, c.Index(), i)
		}
	}
}

func TestDealRoundIsDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		deal := DealRound(rng)
		if len(deal.Player1) != HandSize || len(deal.Player2) != HandSize {
			t.Fatalf("deal %d: bad hand sizes %d/%d", i, len(deal.Player1), len(deal.Player2))
		}
		if !Disjoint(deal.Player1, deal.Player2, []Card{deal.Trump}) {
			t.Fatalf("deal %d: overlapping cards %v %v %v", i, deal.Player1, deal.Player2, deal.Trump)
		}
		for _, c := range append(append([]Card{}, deal.Player1...), deal.Player2...) {
			if c.Index() < 0 || c.Index() >= DeckSize {
				t.Fatalf("deal %d: card %v outside deck", i, c)
			}
		}
	}
}
