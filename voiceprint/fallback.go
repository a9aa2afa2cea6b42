package voiceprint

import (
	"context"
	"errors"
	"log"
)

// FallbackStore пара основного и резервного хранилищ. Каждая операция
// сначала идёт в основное; при ErrStoreUnavailable запрос уходит в
// резервное, а деградация пишется в лог. Любая другая ошибка основного
// возвращается как есть — резерв прикрывает только недоступность
// бэкенда, не его логику
type FallbackStore struct {
	primary   Store
	secondary Store
}

// NewFallbackStore собирает цепочку primary -> secondary
func NewFallbackStore(primary, secondary Store) *FallbackStore {
	return &FallbackStore{primary: primary, secondary: secondary}
}

func (s *FallbackStore) Upsert(ctx context.Context, profile SpeakerProfile) error {
	err := s.primary.Upsert(ctx, profile)
	if !errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	s.logDegraded("upsert", err)
	return s.secondary.Upsert(ctx, profile)
}

func (s *FallbackStore) Get(ctx context.Context, id string) (*SpeakerProfile, error) {
	p, err := s.primary.Get(ctx, id)
	if !errors.Is(err, ErrStoreUnavailable) {
		return p, err
	}
	s.logDegraded("get", err)
	return s.secondary.Get(ctx, id)
}

func (s *FallbackStore) List(ctx context.Context) ([]SpeakerProfile, error) {
	profiles, err := s.primary.List(ctx)
	if !errors.Is(err, ErrStoreUnavailable) {
		return profiles, err
	}
	s.logDegraded("list", err)
	return s.secondary.List(ctx)
}

func (s *FallbackStore) Search(ctx context.Context, query Voiceprint, topK int) ([]MatchCandidate, error) {
	candidates, err := s.primary.Search(ctx, query, topK)
	if !errors.Is(err, ErrStoreUnavailable) {
		return candidates, err
	}
	s.logDegraded("search", err)
	return s.secondary.Search(ctx, query, topK)
}

func (s *FallbackStore) SearchFiltered(ctx context.Context, query Voiceprint, topK int, names []string) ([]MatchCandidate, error) {
	candidates, err := s.primary.SearchFiltered(ctx, query, topK, names)
	if !errors.Is(err, ErrStoreUnavailable) {
		return candidates, err
	}
	s.logDegraded("search_filtered", err)
	return s.secondary.SearchFiltered(ctx, query, topK, names)
}

func (s *FallbackStore) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.primary.Delete(ctx, id)
	if !errors.Is(err, ErrStoreUnavailable) {
		return ok, err
	}
	s.logDegraded("delete", err)
	return s.secondary.Delete(ctx, id)
}

// Close закрывает оба хранилища, возвращая первую ошибку
func (s *FallbackStore) Close() error {
	err := s.primary.Close()
	if cerr := s.secondary.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *FallbackStore) logDegraded(op string, err error) {
	log.Printf("[Voiceprint] Основное хранилище недоступно, %s уходит в резервное: %v", op, err)
}
