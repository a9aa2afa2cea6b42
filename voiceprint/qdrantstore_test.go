package voiceprint

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

func TestQdrantStore_Integration(t *testing.T) {
	// Пропускаем если нет сервера
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		t.Skip("QDRANT_HOST not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := DefaultQdrantConfig()
	cfg.Host = host
	cfg.Collection = fmt.Sprintf("speakers_test_%d", time.Now().UnixNano())

	store, err := NewQdrantStore(ctx, cfg)
	if err != nil {
		t.Skipf("Qdrant недоступен: %v", err)
	}
	defer store.Close()
	defer store.client.DeleteCollection(ctx, cfg.Collection)

	now := time.Now().UTC().Truncate(time.Millisecond)
	original := testProfile("интеграция-1", "Анна", []float32{1, 0.2, 0}, now)
	if err := store.Upsert(ctx, original); err != nil {
		t.Fatalf("Upsert не удался: %v", err)
	}

	got, err := store.Get(ctx, "интеграция-1")
	if err != nil {
		t.Fatalf("Get не удался: %v", err)
	}
	if got == nil {
		t.Fatal("Профиль не найден после Upsert")
	}
	if got.Name != "Анна" || got.SampleCount != 1 {
		t.Fatalf("Профиль искажён: %+v", got)
	}
	if got.Voiceprint.Dim != original.Voiceprint.Dim {
		t.Fatalf("Размерность изменилась: %d != %d", got.Voiceprint.Dim, original.Voiceprint.Dim)
	}
	if !got.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt изменился: %v != %v", got.CreatedAt, now)
	}

	candidates, err := store.Search(ctx, NewVoiceprint([]float32{1, 0.2, 0}), 3)
	if err != nil {
		t.Fatalf("Search не удался: %v", err)
	}
	if len(candidates) != 1 || candidates[0].ProfileID != "интеграция-1" {
		t.Fatalf("Поиск не нашёл профиль: %v", candidates)
	}
	if candidates[0].Similarity < 0.99 {
		t.Errorf("Схожесть с самим собой должна быть ~1, получено %f", candidates[0].Similarity)
	}

	deleted, err := store.Delete(ctx, "интеграция-1")
	if err != nil {
		t.Fatalf("Delete не удался: %v", err)
	}
	if !deleted {
		t.Fatal("Delete должен вернуть true для существующего профиля")
	}
	got, err = store.Get(ctx, "интеграция-1")
	if err != nil {
		t.Fatalf("Get после Delete не удался: %v", err)
	}
	if got != nil {
		t.Fatalf("Профиль остался после удаления: %+v", got)
	}
}

func TestPointIDDeterministic(t *testing.T) {
	// Готовый UUID проходит как есть
	const ready = "4f0e2f5e-7b1a-4c2d-9e3f-1a2b3c4d5e6f"
	if got := pointID(ready).GetUuid(); got != ready {
		t.Fatalf("UUID должен проходить без изменений: %q != %q", got, ready)
	}

	// Произвольный id детерминированно сводится к валидному UUID
	first := pointID("анна").GetUuid()
	second := pointID("анна").GetUuid()
	if first != second {
		t.Fatalf("id точки нестабилен: %q != %q", first, second)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("id точки не является UUID: %q (%v)", first, err)
	}
	if other := pointID("борис").GetUuid(); other == first {
		t.Fatalf("Разные id профилей дали один id точки: %q", other)
	}
}

func TestProfileFromPayloadRoundTrip(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	payload := qdrant.NewValueMap(map[string]any{
		"spk_id":       "p1",
		"name":         "Анна",
		"tags":         []any{"команда", "гость"},
		"sample_count": 3,
		"sources": []any{
			map[string]any{"kind": "file", "ref": "a.wav"},
			map[string]any{"kind": "mic", "ref": "2026-05-01T12:00:00Z"},
		},
		"sample_path": "/clips/p1.wav",
		"created_at":  created.UnixMilli(),
		"updated_at":  updated.UnixMilli(),
	})

	p := profileFromPayload(payload, []float32{0.6, 0.8})

	if p.ID != "p1" || p.Name != "Анна" || p.SampleCount != 3 {
		t.Fatalf("Профиль восстановлен неверно: %+v", p)
	}
	if p.SamplePath != "/clips/p1.wav" {
		t.Errorf("SamplePath потерялся: %q", p.SamplePath)
	}
	if p.Voiceprint.Dim != 2 || p.Voiceprint.Values[0] != 0.6 || p.Voiceprint.Values[1] != 0.8 {
		t.Errorf("Вектор восстановлен неверно: %+v", p.Voiceprint)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "команда" || p.Tags[1] != "гость" {
		t.Errorf("Теги восстановлены неверно: %v", p.Tags)
	}
	if len(p.Sources) != 2 || p.Sources[0].Kind != "file" || p.Sources[1].Ref != "2026-05-01T12:00:00Z" {
		t.Errorf("Источники восстановлены неверно: %v", p.Sources)
	}
	if !p.CreatedAt.Equal(created) || !p.UpdatedAt.Equal(updated) {
		t.Errorf("Времена восстановлены неверно: %v / %v", p.CreatedAt, p.UpdatedAt)
	}
}
