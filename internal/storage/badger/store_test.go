package badger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zillionare/backtesting/internal/common"
	"github.com/zillionare/backtesting/internal/models"
)

// --- Test helpers ---

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	logger := common.NewLogger("error")
	store, err := NewStore(logger, filepath.Join(dir, "badger"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testLogger() *common.Logger {
	return common.NewLogger("error")
}

func testSession(name string) *models.SessionRecord {
	start, _ := models.ParseDate("2022-03-01")
	end, _ := models.ParseDate("2022-03-31")
	return &models.SessionRecord{
		Name:        name,
		Description: "unit test session",
		Account: models.AccountState{
			Name:       name,
			Token:      "tok-" + name,
			Principal:  1_000_000,
			Commission: 1e-4,
			Start:      start,
			End:        end,
			Cash:       decimal.NewFromInt(990_000),
			Lots: []models.Lot{{
				Symbol: "000001.XSHE", Shares: decimal.NewFromInt(1000),
				CostBasis: 10.0, AcquiredDate: start, AcquiredFactor: 1.0,
			}},
			XDXRCursor: start,
		},
	}
}

// --- Store tests ---

func TestStore_OpenClose(t *testing.T) {
	dir := t.TempDir()
	logger := testLogger()
	store, err := NewStore(logger, filepath.Join(dir, "badger"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if store.DB() == nil {
		t.Fatal("expected non-nil DB")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{}
	if err := store.Close(); err != nil {
		t.Fatalf("Close on nil DB should not error: %v", err)
	}
}

// --- Session Storage tests ---

func TestSessionStorage_CRUD(t *testing.T) {
	store := newTestStore(t)
	ss := NewSessionStorage(store, testLogger())
	ctx := context.Background()

	// Get non-existent
	_, err := ss.GetSession(ctx, "missing")
	if err == nil {
		t.Fatal("expected error for non-existent session")
	}
	te, ok := models.AsTradeError(err)
	if !ok || te.Code != models.CodeNotFound {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	// Save
	rec := testSession("momentum-v1")
	if err := ss.SaveSession(ctx, rec); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if rec.SavedAt.IsZero() {
		t.Error("expected SavedAt to be set")
	}

	// Get existing
	got, err := ss.GetSession(ctx, "momentum-v1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Account.Token != "tok-momentum-v1" {
		t.Errorf("unexpected token: %s", got.Account.Token)
	}
	if len(got.Account.Lots) != 1 || !got.Account.Lots[0].Shares.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("lots did not round-trip: %+v", got.Account.Lots)
	}
	if !got.Account.Cash.Equal(decimal.NewFromInt(990_000)) {
		t.Errorf("cash did not round-trip: %s", got.Account.Cash)
	}

	// Update overwrites
	rec.Description = "updated"
	if err := ss.SaveSession(ctx, rec); err != nil {
		t.Fatalf("SaveSession (update) failed: %v", err)
	}
	got, _ = ss.GetSession(ctx, "momentum-v1")
	if got.Description != "updated" {
		t.Errorf("expected updated description, got %s", got.Description)
	}

	// List
	ss.SaveSession(ctx, testSession("momentum-v2"))
	names, err := ss.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(names) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(names))
	}

	// Delete
	if err := ss.DeleteSession(ctx, "momentum-v1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	_, err = ss.GetSession(ctx, "momentum-v1")
	if err == nil {
		t.Fatal("expected error after delete")
	}

	// Delete non-existent (should not error)
	if err := ss.DeleteSession(ctx, "nonexistent"); err != nil {
		t.Fatalf("DeleteSession non-existent should not error: %v", err)
	}
}

func TestSessionStorage_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "badger")
	logger := testLogger()

	store, err := NewStore(logger, path)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	ss := NewSessionStorage(store, logger)
	rec := testSession("durable")
	rec.Account.Entrusts = []models.Entrust{{
		ID: "e1", Account: "durable", Symbol: "000001.XSHE",
		Side: models.SideBuy, Shares: decimal.NewFromInt(1000),
		OrderTime: time.Date(2022, 3, 1, 9, 40, 0, 0, time.UTC),
		Status:    models.StatusFilled,
	}}
	if err := ss.SaveSession(context.Background(), rec); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	store.Close()

	store2, err := NewStore(logger, path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store2.Close()

	got, err := NewSessionStorage(store2, logger).GetSession(context.Background(), "durable")
	if err != nil {
		t.Fatalf("GetSession after reopen failed: %v", err)
	}
	if len(got.Account.Entrusts) != 1 || got.Account.Entrusts[0].ID != "e1" {
		t.Errorf("entrusts did not survive reopen: %+v", got.Account.Entrusts)
	}
}
