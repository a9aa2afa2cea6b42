package ai

import (
	"context"
	"os"
	"testing"
)

func TestSherpaEmbedder_Integration(t *testing.T) {
	// Пропускаем если нет модели
	modelPath := os.Getenv("SPEAKER_EMBEDDING_MODEL")
	if modelPath == "" {
		t.Skip("SPEAKER_EMBEDDING_MODEL not set")
	}
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		t.Skipf("Embedding model not found: %s", modelPath)
	}

	embedder, err := NewSherpaEmbedder(DefaultSherpaEmbedderConfig(modelPath))
	if err != nil {
		t.Fatalf("Не удалось создать SherpaEmbedder: %v", err)
	}
	defer embedder.Close()

	dim := embedder.Dim()
	if dim <= 0 {
		t.Fatalf("Размерность эмбеддинга должна быть положительной, получено %d", dim)
	}

	ctx := context.Background()
	emb, err := embedder.Embed(ctx, sineWave(220, 2, 16000))
	if err != nil {
		t.Fatalf("Embed не удался: %v", err)
	}
	if len(emb) != dim {
		t.Errorf("Длина эмбеддинга %d не совпадает с Dim() %d", len(emb), dim)
	}
	nonZero := false
	for _, v := range emb {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("Эмбеддинг целиком нулевой")
	}

	// Слишком короткое аудио отклоняется
	if _, err := embedder.Embed(ctx, make([]float32, 100)); err == nil {
		t.Error("Ожидалась ошибка на слишком коротком аудио")
	}

	// Пустой вход отклоняется
	if _, err := embedder.Embed(ctx, nil); err == nil {
		t.Error("Ожидалась ошибка на пустом входе")
	}

	// Отменённый контекст не доходит до модели
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := embedder.Embed(cancelled, sineWave(220, 2, 16000)); err == nil {
		t.Error("Ожидалась ошибка при отменённом контексте")
	}
}

func TestSherpaEmbedderConfig_Defaults(t *testing.T) {
	config := DefaultSherpaEmbedderConfig("/path/to/emb.onnx")

	if config.ModelPath != "/path/to/emb.onnx" {
		t.Errorf("Ожидался путь '/path/to/emb.onnx', получен %q", config.ModelPath)
	}
	if config.SampleRate != 16000 {
		t.Errorf("Ожидалась частота 16000, получена %d", config.SampleRate)
	}
	if config.NumThreads != 2 {
		t.Errorf("Ожидалось 2 потока, получено %d", config.NumThreads)
	}
	if config.Provider != "cpu" {
		t.Errorf("Ожидался provider 'cpu', получен %q", config.Provider)
	}
}

func TestNewSherpaEmbedder_MissingModel(t *testing.T) {
	_, err := NewSherpaEmbedder(DefaultSherpaEmbedderConfig("/nonexistent/emb.onnx"))
	if err == nil {
		t.Fatal("Ожидалась ошибка при отсутствующей модели")
	}
}
