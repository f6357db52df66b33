package badger

import (
	"context"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/zillionare/backtesting/internal/common"
	"github.com/zillionare/backtesting/internal/models"
)

type sessionStorage struct {
	store  *Store
	logger *common.Logger
}

// NewSessionStorage creates a SessionStore backed by BadgerHold.
func NewSessionStorage(store *Store, logger *common.Logger) *sessionStorage {
	return &sessionStorage{store: store, logger: logger}
}

func (s *sessionStorage) SaveSession(_ context.Context, rec *models.SessionRecord) error {
	rec.SavedAt = time.Now().UTC()
	if err := s.store.db.Upsert(rec.Name, rec); err != nil {
		return models.InfraErr(models.CodePersistence, "save session %s: %v", rec.Name, err)
	}
	s.logger.Debug().Str("session", rec.Name).Msg("Session saved")
	return nil
}

func (s *sessionStorage) GetSession(_ context.Context, name string) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	err := s.store.db.Get(name, &rec)
	if err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, models.AccountErr(models.CodeNotFound, "session %s not found", name)
		}
		return nil, models.InfraErr(models.CodePersistence, "get session %s: %v", name, err)
	}
	return &rec, nil
}

func (s *sessionStorage) DeleteSession(_ context.Context, name string) error {
	err := s.store.db.Delete(name, models.SessionRecord{})
	if err != nil && err != badgerhold.ErrNotFound {
		return models.InfraErr(models.CodePersistence, "delete session %s: %v", name, err)
	}
	return nil
}

func (s *sessionStorage) ListSessions(_ context.Context) ([]string, error) {
	var recs []models.SessionRecord
	if err := s.store.db.Find(&recs, nil); err != nil {
		return nil, models.InfraErr(models.CodePersistence, "list sessions: %v", err)
	}
	names := make([]string, 0, len(recs))
	for _, r := range recs {
		names = append(names, r.Name)
	}
	return names, nil
}

func (s *sessionStorage) Close() error {
	return s.store.Close()
}
