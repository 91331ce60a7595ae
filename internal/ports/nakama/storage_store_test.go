package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"truco/internal/domain"
	"truco/internal/ports"
)

var storeT0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedGame(t *testing.T, store *StorageStore, id, p1, p2 string, start time.Time) (*domain.Game, *domain.Round) {
	t.Helper()
	g := &domain.Game{ID: id, Player1: p1, Player2: p2, StartPlay: start, LastPlay: start}
	r := domain.NewRound(g, id+"-r1", 1, p1, rand.New(rand.NewSource(1)))
	if err := store.CreateGame(context.Background(), g, r); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	return g, r
}

func TestStorageStore_CreateAndGet(t *testing.T) {
	nk := newFakeNakama()
	store := NewStorageStore(nk)
	ctx := context.Background()
	_, r := seedGame(t, store, "g1", "u1", "u2", storeT0)

	g, err := store.GetGame(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if g.Player1 != "u1" || g.Player2 != "u2" || g.Over() {
		t.Fatalf("unexpected game %+v", g)
	}
	if g.Version == "" {
		t.Fatal("expected storage version on game")
	}

	got, turns, err := store.GetRound(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("turns = %d, want 0", len(turns))
	}
	if domain.FormatHand(got.Player1Cards) != domain.FormatHand(r.Player1Cards) || got.TrumpCard != r.TrumpCard {
		t.Fatalf("round did not round-trip: %+v vs %+v", got, r)
	}

	for _, player := range []string{"u1", "u2"} {
		idx, _, err := store.readIndex(ctx, player)
		if err != nil {
			t.Fatalf("readIndex(%s): %v", player, err)
		}
		if len(idx.GameIDs) != 1 || idx.GameIDs[0] != "g1" {
			t.Fatalf("index for %s = %v", player, idx.GameIDs)
		}
	}
}

func TestStorageStore_CreateDuplicateGame(t *testing.T) {
	store := NewStorageStore(newFakeNakama())
	seedGame(t, store, "g1", "u1", "u2", storeT0)

	g := &domain.Game{ID: "g1", Player1: "u1", Player2: "u3", StartPlay: storeT0, LastPlay: storeT0}
	r := domain.NewRound(g, "other", 1, "u1", rand.New(rand.NewSource(2)))
	if err := store.CreateGame(context.Background(), g, r); err == nil {
		t.Fatal("expected duplicate game to fail")
	}
}

func TestStorageStore_CreateRetriesMovedIndex(t *testing.T) {
	nk := newFakeNakama()
	store := NewStorageStore(nk)
	seedGame(t, store, "g1", "u1", "u2", storeT0)

	// Another game lands in u1's index between our read and our write.
	nk.beforeWrite = func() {
		g := &domain.Game{ID: "g2", Player1: "u1", Player2: "u3", StartPlay: storeT0, LastPlay: storeT0}
		r := domain.NewRound(g, "g2-r1", 1, "u1", rand.New(rand.NewSource(3)))
		if err := store.CreateGame(context.Background(), g, r); err != nil {
			t.Errorf("concurrent CreateGame: %v", err)
		}
	}
	seedGame(t, store, "g3", "u1", "u4", storeT0.Add(time.Hour))

	games, err := store.ListGamesByPlayer(context.Background(), "u1", ports.GameFilterAll)
	if err != nil {
		t.Fatalf("ListGamesByPlayer: %v", err)
	}
	if len(games) != 3 {
		t.Fatalf("games = %d, want 3", len(games))
	}
}

func TestStorageStore_GetMissing(t *testing.T) {
	store := NewStorageStore(newFakeNakama())
	ctx := context.Background()

	if _, err := store.GetGame(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("GetGame err = %v, want ErrNotFound", err)
	}
	if _, _, err := store.GetRound(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("GetRound err = %v, want ErrNotFound", err)
	}
	if _, err := store.LastRound(ctx, "nope"); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("LastRound err = %v, want ErrNotFound", err)
	}
}

func TestStorageStore_ReadFailureIsWrapped(t *testing.T) {
	nk := newFakeNakama()
	nk.readErr = errors.New("db down")
	store := NewStorageStore(nk)

	_, err := store.GetGame(context.Background(), "g1")
	if err == nil || errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("err = %v, want wrapped storage failure", err)
	}
}

func TestStorageStore_AppendTurn(t *testing.T) {
	store := NewStorageStore(newFakeNakama())
	ctx := context.Background()
	_, r := seedGame(t, store, "g1", "u1", "u2", storeT0)

	r.Score = 3
	first := domain.Turn{ID: "t0", RoundID: r.ID, Seq: 0, PlayerID: "u1", Play: "Tr", When: storeT0}
	if err := store.AppendTurn(ctx, r, first, -1); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	// Same prevSeq again loses.
	dup := domain.Turn{ID: "t0b", RoundID: r.ID, Seq: 0, PlayerID: "u1", Play: "Gu", When: storeT0}
	if err := store.AppendTurn(ctx, r, dup, -1); !errors.Is(err, ports.ErrSequenceConflict) {
		t.Fatalf("duplicate append err = %v, want ErrSequenceConflict", err)
	}

	second := domain.Turn{ID: "t1", RoundID: r.ID, Seq: 1, PlayerID: "u2", Play: "Ys", When: storeT0.Add(time.Second)}
	if err := store.AppendTurn(ctx, r, second, 0); err != nil {
		t.Fatalf("AppendTurn second: %v", err)
	}

	got, turns, err := store.GetRound(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if got.Score != 3 {
		t.Fatalf("score = %d, want 3", got.Score)
	}
	if len(turns) != 2 || turns[0].Play != "Tr" || turns[1].Play != "Ys" || turns[1].RoundID != r.ID {
		t.Fatalf("unexpected turns %+v", turns)
	}
}

func TestStorageStore_AppendTurnLosesVersionRace(t *testing.T) {
	nk := newFakeNakama()
	store := NewStorageStore(nk)
	ctx := context.Background()
	_, r := seedGame(t, store, "g1", "u1", "u2", storeT0)

	// A competing append commits after our read but before our write.
	nk.beforeWrite = func() {
		rival := domain.Turn{ID: "rival", RoundID: r.ID, Seq: 0, PlayerID: "u1", Play: "Gu", When: storeT0}
		if err := store.AppendTurn(ctx, r, rival, -1); err != nil {
			t.Errorf("rival append: %v", err)
		}
	}
	mine := domain.Turn{ID: "mine", RoundID: r.ID, Seq: 0, PlayerID: "u1", Play: "Tr", When: storeT0}
	if err := store.AppendTurn(ctx, r, mine, -1); !errors.Is(err, ports.ErrSequenceConflict) {
		t.Fatalf("err = %v, want ErrSequenceConflict", err)
	}

	_, turns, _ := store.GetRound(ctx, r.ID)
	if len(turns) != 1 || turns[0].ID != "rival" {
		t.Fatalf("turns = %+v, want only the rival", turns)
	}
}

func TestStorageStore_FinishRound(t *testing.T) {
	store := NewStorageStore(newFakeNakama())
	ctx := context.Background()
	g, r := seedGame(t, store, "g1", "u1", "u2", storeT0)

	r.Finished = true
	r.WinnerPlayer = "u2"
	g.Player2Score = 1
	g.LastPlay = storeT0.Add(time.Minute)
	next := domain.NewRound(g, "g1-r2", 2, "u2", rand.New(rand.NewSource(5)))
	if err := store.FinishRound(ctx, r, g, next); err != nil {
		t.Fatalf("FinishRound: %v", err)
	}

	if err := store.FinishRound(ctx, r, g, nil); !errors.Is(err, ports.ErrSequenceConflict) {
		t.Fatalf("second FinishRound err = %v, want ErrSequenceConflict", err)
	}
	late := domain.Turn{ID: "late", RoundID: r.ID, Seq: 0, PlayerID: "u1", Play: "Gu", When: storeT0}
	if err := store.AppendTurn(ctx, r, late, -1); !errors.Is(err, ports.ErrSequenceConflict) {
		t.Fatalf("append after finish err = %v, want ErrSequenceConflict", err)
	}

	rounds, err := store.ListRounds(ctx, "g1")
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}
	if len(rounds) != 2 || rounds[0].Seq != 1 || rounds[1].Seq != 2 {
		t.Fatalf("rounds = %+v", rounds)
	}
	if !rounds[0].Finished || rounds[0].WinnerPlayer != "u2" {
		t.Fatalf("first round not finished: %+v", rounds[0])
	}

	last, err := store.LastRound(ctx, "g1")
	if err != nil {
		t.Fatalf("LastRound: %v", err)
	}
	if last.ID != "g1-r2" || last.StarterPlayer != "u2" {
		t.Fatalf("last round = %+v", last)
	}

	got, _ := store.GetGame(ctx, "g1")
	if got.Player2Score != 1 || !got.LastPlay.Equal(storeT0.Add(time.Minute)) {
		t.Fatalf("game not updated: %+v", got)
	}
}

func TestStorageStore_FinishRoundRejectsStaleGame(t *testing.T) {
	nk := newFakeNakama()
	store := NewStorageStore(nk)
	ctx := context.Background()
	_, r := seedGame(t, store, "g1", "u1", "u2", storeT0)

	stale, err := store.GetGame(ctx, "g1")
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}

	// Rewrite the game document so its version moves past the one read above.
	objects, _ := nk.StorageRead(ctx, []*runtime.StorageRead{{Collection: collectionGames, Key: "g1"}})
	if len(objects) != 1 {
		t.Fatalf("game objects = %d", len(objects))
	}
	if _, err := nk.StorageWrite(ctx, []*runtime.StorageWrite{
		systemWrite(collectionGames, "g1", objects[0].GetValue(), ""),
	}); err != nil {
		t.Fatalf("StorageWrite: %v", err)
	}

	r.Finished, r.WinnerPlayer = true, "u1"
	stale.Player1Score = 1
	if err := store.FinishRound(ctx, r, stale, nil); !errors.Is(err, ports.ErrSequenceConflict) {
		t.Fatalf("FinishRound with stale game err = %v, want ErrSequenceConflict", err)
	}
	got, _, err := store.GetRound(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if got.Finished {
		t.Fatal("round finished despite the rejected batch")
	}

	fresh, _ := store.GetGame(ctx, "g1")
	fresh.Player1Score = 1
	if err := store.FinishRound(ctx, r, fresh, nil); err != nil {
		t.Fatalf("FinishRound with fresh game: %v", err)
	}
}

func TestStorageStore_ListGamesByPlayerFilters(t *testing.T) {
	store := NewStorageStore(newFakeNakama())
	ctx := context.Background()
	seedGame(t, store, "old", "u1", "u2", storeT0)
	g, r := seedGame(t, store, "new", "u3", "u1", storeT0.Add(time.Hour))

	end := storeT0.Add(2 * time.Hour)
	r.Finished, r.WinnerPlayer = true, "u3"
	g.Player1Score, g.EndPlay, g.WinnerPlayer = domain.MaxScore, &end, "u3"
	if err := store.FinishRound(ctx, r, g, nil); err != nil {
		t.Fatalf("FinishRound: %v", err)
	}

	all, err := store.ListGamesByPlayer(ctx, "u1", ports.GameFilterAll)
	if err != nil {
		t.Fatalf("ListGamesByPlayer: %v", err)
	}
	if len(all) != 2 || all[0].ID != "new" || all[1].ID != "old" {
		t.Fatalf("all = %v, want newest first", gameIDs(all))
	}

	active, _ := store.ListGamesByPlayer(ctx, "u1", ports.GameFilterActive)
	if len(active) != 1 || active[0].ID != "old" {
		t.Fatalf("active = %v", gameIDs(active))
	}
	finished, _ := store.ListGamesByPlayer(ctx, "u1", ports.GameFilterFinished)
	if len(finished) != 1 || finished[0].ID != "new" || finished[0].WinnerPlayer != "u3" {
		t.Fatalf("finished = %v", gameIDs(finished))
	}

	none, err := store.ListGamesByPlayer(ctx, "nobody", ports.GameFilterAll)
	if err != nil || len(none) != 0 {
		t.Fatalf("nobody = %v, %v", none, err)
	}
}

func TestStorageStore_LastPlayFallsBackToUpdateTime(t *testing.T) {
	nk := newFakeNakama()
	store := NewStorageStore(nk)
	value, _ := json.Marshal(gameDocument{ID: "legacy", Player1: "u1", Player2: "u2", StartPlay: storeT0})
	if _, err := nk.StorageWrite(context.Background(), []*runtime.StorageWrite{systemWrite(collectionGames, "legacy", string(value), "")}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	g, err := store.GetGame(context.Background(), "legacy")
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	if !g.LastPlay.Equal(nk.now) {
		t.Fatalf("LastPlay = %v, want storage update time %v", g.LastPlay, nk.now)
	}
}

func gameIDs(games []*domain.Game) []string {
	out := make([]string, 0, len(games))
	for _, g := range games {
		out = append(out, g.ID)
	}
	return out
}
