package nakama

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/api"

	"truco/internal/app"
	"truco/internal/ports"
)

func TestAccountAdapter_FindByUsername(t *testing.T) {
	nk := newFakeNakama(&api.User{Id: "u1", Username: "alice"})
	accounts := NewNakamaAccountAdapter(nk)

	p, err := accounts.FindByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	if p.ID != "u1" || p.Username != "alice" {
		t.Fatalf("player = %+v", p)
	}

	if _, err := accounts.FindByUsername(context.Background(), "bob"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("unknown user err = %v, want ErrNotFound", err)
	}
}

func TestAccountAdapter_Players(t *testing.T) {
	nk := newFakeNakama(&api.User{Id: "u1", Username: "alice"}, &api.User{Id: "u2", Username: "bob"})
	accounts := NewNakamaAccountAdapter(nk)

	players, err := accounts.Players(context.Background(), "u1", "u2", "u1", "", "ghost")
	if err != nil {
		t.Fatalf("Players: %v", err)
	}
	if len(players) != 2 || players["u2"].Username != "bob" {
		t.Fatalf("players = %+v", players)
	}

	empty, err := accounts.Players(context.Background())
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty = %+v, %v", empty, err)
	}
}

func TestAccountAdapter_SessionToken(t *testing.T) {
	nk := newFakeNakama()
	accounts := NewNakamaAccountAdapter(nk)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	accounts.now = func() time.Time { return now }

	token, exp, err := accounts.SessionToken(context.Background(), "u1", "alice", map[string]string{app.SessionVarGameID: "g1"}, time.Hour)
	if err != nil {
		t.Fatalf("SessionToken: %v", err)
	}
	if token != "session-u1-g1" {
		t.Fatalf("token = %q", token)
	}
	if exp != now.Add(time.Hour).Unix() {
		t.Fatalf("exp = %d, want %d", exp, now.Add(time.Hour).Unix())
	}

	if _, _, err := accounts.SessionToken(context.Background(), "", "", nil, time.Hour); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestLinkBindingAdapter_FirstDeviceWins(t *testing.T) {
	nk := newFakeNakama()
	bindings := NewNakamaLinkBindingAdapter(nk)
	ctx := context.Background()

	bound, created, err := bindings.BindDevice(ctx, "g1", "u2", "phone")
	if err != nil || !created || bound != "phone" {
		t.Fatalf("first bind = %q, %v, %v", bound, created, err)
	}

	bound, created, err = bindings.BindDevice(ctx, "g1", "u2", "laptop")
	if err != nil {
		t.Fatalf("second bind: %v", err)
	}
	if created || bound != "phone" {
		t.Fatalf("second bind = %q, created %v; want phone, false", bound, created)
	}

	// Bindings are per game and per player.
	if _, created, _ := bindings.BindDevice(ctx, "g2", "u2", "laptop"); !created {
		t.Fatal("expected a fresh binding for another game")
	}
	if _, created, _ := bindings.BindDevice(ctx, "g1", "u1", "tablet"); !created {
		t.Fatal("expected a fresh binding for another player")
	}
}

func TestLinkBindingAdapter_ResetDevice(t *testing.T) {
	nk := newFakeNakama()
	bindings := NewNakamaLinkBindingAdapter(nk)
	ctx := context.Background()

	cleared, err := bindings.ResetDevice(ctx, "g1", "u2")
	if err != nil || cleared {
		t.Fatalf("reset without binding = %v, %v", cleared, err)
	}

	if _, _, err := bindings.BindDevice(ctx, "g1", "u2", "phone"); err != nil {
		t.Fatalf("BindDevice: %v", err)
	}
	if _, _, err := bindings.BindDevice(ctx, "g1", "u1", "tablet"); err != nil {
		t.Fatalf("BindDevice: %v", err)
	}

	cleared, err = bindings.ResetDevice(ctx, "g1", "u2")
	if err != nil || !cleared {
		t.Fatalf("reset = %v, %v", cleared, err)
	}

	bound, created, err := bindings.BindDevice(ctx, "g1", "u2", "laptop")
	if err != nil || !created || bound != "laptop" {
		t.Fatalf("bind after reset = %q, %v, %v", bound, created, err)
	}
	// The other player's binding is untouched.
	if bound, created, _ := bindings.BindDevice(ctx, "g1", "u1", "phone"); created || bound != "tablet" {
		t.Fatalf("other binding = %q, created %v", bound, created)
	}
}

func TestLinkBindingAdapter_RequiresIDs(t *testing.T) {
	bindings := NewNakamaLinkBindingAdapter(newFakeNakama())
	if _, _, err := bindings.BindDevice(context.Background(), "g1", "u1", ""); err == nil {
		t.Fatal("expected error for empty device id")
	}
}

func TestNotifier_Publish(t *testing.T) {
	nk := newFakeNakama()
	notifier := NewNotifier(nk)

	err := notifier.Publish(context.Background(), []ports.Event{
		{
			Kind:       app.EventTurnPlayed,
			GameID:     "g1",
			Recipients: []string{"u1", "u2"},
			Payload:    app.TurnPlayedPayload{GameID: "g1", RoundID: "r1", Seq: 0, PlayerID: "u1", Play: "Tr"},
		},
		{
			Kind:       app.EventRoundDealt,
			GameID:     "g1",
			Recipients: []string{"u2"},
			Private:    true,
			Payload:    map[string]any{"cards": []string{"5♠", "K♥", "A♣"}},
		},
		{Kind: "unknown", GameID: "g1", Recipients: []string{"u1"}},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(nk.notifications) != 3 {
		t.Fatalf("notifications = %d, want 3", len(nk.notifications))
	}

	turn := nk.notifications[0]
	if turn.userID != "u1" || turn.subject != app.EventTurnPlayed || turn.code != NotifyTurnPlayed || turn.persistent {
		t.Fatalf("turn notification = %+v", turn)
	}
	if turn.content["round_id"] != "r1" {
		t.Fatalf("content = %v", turn.content)
	}

	dealt := nk.notifications[2]
	if dealt.userID != "u2" || dealt.code != NotifyRoundDealt || !dealt.persistent {
		t.Fatalf("dealt notification = %+v", dealt)
	}
}

func TestNotifier_PublishCollectsErrors(t *testing.T) {
	nk := newFakeNakama()
	nk.notifyErr = errors.New("user offline")
	notifier := NewNotifier(nk)

	err := notifier.Publish(context.Background(), []ports.Event{
		{Kind: app.EventGameEnded, GameID: "g1", Recipients: []string{"u1", "u2"}, Payload: map[string]any{}},
	})
	if err == nil || strings.Count(err.Error(), "user offline") != 2 {
		t.Fatalf("err = %v, want one failure per recipient", err)
	}
}
