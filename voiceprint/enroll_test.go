package voiceprint

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

// stubEmbedder возвращает направление, закодированное в первом сэмпле
// аудио, и считает вызовы
type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (e *stubEmbedder) Embed(_ context.Context, samples []float32) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.fail {
		return nil, errors.New("embed failed")
	}
	if len(samples) == 0 {
		return nil, errors.New("empty window")
	}
	if samples[0] > 0 {
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

// markedSample сэмпл заданной длительности с меткой направления в
// первом отсчёте
func markedSample(mark float32, seconds float64) []float32 {
	out := make([]float32, int(seconds*16000))
	for i := range out {
		out[i] = mark
	}
	return out
}

func newTestEnroller(t *testing.T, embedder Embedder) (*Enroller, Store) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("Не удалось открыть хранилище: %v", err)
	}
	return NewEnroller(store, embedder, DefaultEnrollConfig()), store
}

func TestEnrollCreatesProfile(t *testing.T) {
	embedder := &stubEmbedder{}
	enroller, store := newTestEnroller(t, embedder)
	ctx := context.Background()

	profile, err := enroller.Enroll(ctx, EnrollRequest{
		Name:    "Анна",
		Tags:    []string{"команда", "команда"},
		Sources: []SourceRef{{Kind: "file", Ref: "anna.wav"}},
	}, [][]float32{markedSample(1, 3.0)})
	if err != nil {
		t.Fatalf("Enroll не удался: %v", err)
	}
	if profile.ID == "" {
		t.Fatal("ID профиля не сгенерирован")
	}
	if profile.SampleCount != 1 {
		t.Fatalf("SampleCount = %d, ожидалось 1", profile.SampleCount)
	}
	if len(profile.Tags) != 1 {
		t.Fatalf("Дубликаты тегов не схлопнулись: %v", profile.Tags)
	}
	if norm := vectorNorm(profile.Voiceprint.Values); math.Abs(norm-1) > 1e-6 {
		t.Fatalf("Отпечаток не нормализован: норма %v", norm)
	}

	// 3 секунды при окне 1.5 и шаге 0.75 дают окна с началом на
	// 0, 0.75 и 1.5 секундах
	if embedder.calls != 3 {
		t.Fatalf("Ожидалось 3 окна, эмбеддер вызван %d раз", embedder.calls)
	}

	saved, err := store.Get(ctx, profile.ID)
	if err != nil || saved == nil {
		t.Fatalf("Профиль не сохранился: %v, %v", saved, err)
	}
}

func TestEnrollShortSampleSingleWindow(t *testing.T) {
	embedder := &stubEmbedder{}
	enroller, _ := newTestEnroller(t, embedder)

	// Сэмпл короче минимальной длительности идёт одним окном
	_, err := enroller.Enroll(context.Background(), EnrollRequest{Name: "Анна"},
		[][]float32{markedSample(1, 0.5)})
	if err != nil {
		t.Fatalf("Enroll не удался: %v", err)
	}
	if embedder.calls != 1 {
		t.Fatalf("Короткий сэмпл должен идти одним окном, вызовов: %d", embedder.calls)
	}
}

func TestEnrollMergeIdempotentDirection(t *testing.T) {
	embedder := &stubEmbedder{}
	enroller, _ := newTestEnroller(t, embedder)
	ctx := context.Background()

	sample := markedSample(1, 2.0)
	first, err := enroller.Enroll(ctx, EnrollRequest{ID: "p1", Name: "Анна"}, [][]float32{sample})
	if err != nil {
		t.Fatalf("Первый Enroll не удался: %v", err)
	}

	second, err := enroller.Enroll(ctx, EnrollRequest{
		ID:    "p1",
		Name:  "Анна",
		Merge: true,
	}, [][]float32{sample})
	if err != nil {
		t.Fatalf("Merge не удался: %v", err)
	}

	if second.SampleCount != 2 {
		t.Fatalf("После merge SampleCount = %d, ожидалось 2", second.SampleCount)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("Merge не должен менять CreatedAt")
	}
	// То же аудио не меняет направление отпечатка
	sim := CosineSimilarity(first.Voiceprint.Values, second.Voiceprint.Values)
	if math.Abs(float64(sim)-1) > 1e-5 {
		t.Fatalf("Направление отпечатка изменилось: сходство %v", sim)
	}
}

func TestEnrollMergeUnionsMetadata(t *testing.T) {
	enroller, _ := newTestEnroller(t, &stubEmbedder{})
	ctx := context.Background()

	_, err := enroller.Enroll(ctx, EnrollRequest{
		ID:      "p1",
		Name:    "Анна",
		Tags:    []string{"команда"},
		Sources: []SourceRef{{Kind: "file", Ref: "a.wav"}},
	}, [][]float32{markedSample(1, 2.0)})
	if err != nil {
		t.Fatalf("Enroll не удался: %v", err)
	}

	merged, err := enroller.Enroll(ctx, EnrollRequest{
		ID:      "p1",
		Name:    "Анна",
		Tags:    []string{"гость"},
		Sources: []SourceRef{{Kind: "file", Ref: "b.wav"}},
		Merge:   true,
	}, [][]float32{markedSample(1, 2.0)})
	if err != nil {
		t.Fatalf("Merge не удался: %v", err)
	}

	if len(merged.Tags) != 2 || merged.Tags[0] != "гость" || merged.Tags[1] != "команда" {
		t.Fatalf("Теги не объединились: %v", merged.Tags)
	}
	if len(merged.Sources) != 2 || merged.Sources[1].Ref != "b.wav" {
		t.Fatalf("Источники не дописались: %v", merged.Sources)
	}
}

func TestEnrollNoUsableAudio(t *testing.T) {
	enroller, _ := newTestEnroller(t, &stubEmbedder{fail: true})

	_, err := enroller.Enroll(context.Background(), EnrollRequest{Name: "Анна"},
		[][]float32{markedSample(1, 2.0), markedSample(1, 2.0)})
	if !errors.Is(err, ErrNoUsableAudio) {
		t.Fatalf("Ожидалась ErrNoUsableAudio, получено %v", err)
	}
}

func TestEnrollValidation(t *testing.T) {
	enroller, _ := newTestEnroller(t, &stubEmbedder{})
	ctx := context.Background()

	if _, err := enroller.Enroll(ctx, EnrollRequest{}, [][]float32{markedSample(1, 2.0)}); err == nil {
		t.Fatal("Пустое имя должно давать ошибку")
	}
	if _, err := enroller.Enroll(ctx, EnrollRequest{Name: "Анна", Merge: true},
		[][]float32{markedSample(1, 2.0)}); err == nil {
		t.Fatal("Merge без ID должен давать ошибку")
	}
	if _, err := enroller.Enroll(ctx, EnrollRequest{Name: "Анна"}, nil); !errors.Is(err, ErrNoUsableAudio) {
		t.Fatal("Без сэмплов должна быть ErrNoUsableAudio")
	}
}

func TestRename(t *testing.T) {
	enroller, store := newTestEnroller(t, &stubEmbedder{})
	ctx := context.Background()

	if _, err := enroller.Enroll(ctx, EnrollRequest{ID: "p1", Name: "Анна"},
		[][]float32{markedSample(1, 2.0)}); err != nil {
		t.Fatalf("Enroll не удался: %v", err)
	}

	renamed, err := enroller.Rename(ctx, "p1", "Анна Петровна")
	if err != nil {
		t.Fatalf("Rename не удался: %v", err)
	}
	if renamed.Name != "Анна Петровна" {
		t.Fatalf("Имя не изменилось: %s", renamed.Name)
	}

	saved, _ := store.Get(ctx, "p1")
	if saved.Name != "Анна Петровна" {
		t.Fatal("Переименование не сохранилось")
	}

	if _, err := enroller.Rename(ctx, "нет-такого", "Имя"); err == nil {
		t.Fatal("Rename несуществующего профиля должен давать ошибку")
	}
}
