package ai

import (
	"os"
	"strings"
	"testing"
)

func TestSherpaDiarizer_Integration(t *testing.T) {
	// Пропускаем если нет моделей
	segmentationPath := os.Getenv("DIARIZATION_SEGMENTATION_MODEL")
	embeddingPath := os.Getenv("DIARIZATION_EMBEDDING_MODEL")

	if segmentationPath == "" || embeddingPath == "" {
		t.Skip("DIARIZATION_SEGMENTATION_MODEL and DIARIZATION_EMBEDDING_MODEL not set")
	}
	if _, err := os.Stat(segmentationPath); os.IsNotExist(err) {
		t.Skipf("Segmentation model not found: %s", segmentationPath)
	}
	if _, err := os.Stat(embeddingPath); os.IsNotExist(err) {
		t.Skipf("Embedding model not found: %s", embeddingPath)
	}

	config := DefaultSherpaDiarizerConfig(segmentationPath, embeddingPath)
	diarizer, err := NewSherpaDiarizer(config)
	if err != nil {
		t.Fatalf("Не удалось создать SherpaDiarizer: %v", err)
	}
	defer diarizer.Close()

	if rate := diarizer.SampleRate(); rate <= 0 {
		t.Errorf("Частота дискретизации должна быть положительной, получено %d", rate)
	}

	// Тишина: пустой результат или редкие ложные интервалы, но каждый
	// обязан нести RunTag вида runN
	silence := make([]float32, 16000*3)
	intervals, err := diarizer.DetectIntervals(silence)
	if err != nil {
		t.Fatalf("DetectIntervals на тишине не удался: %v", err)
	}
	for _, iv := range intervals {
		if !strings.HasPrefix(iv.RunTag, "run") {
			t.Errorf("Интервал без метки голоса: %+v", iv)
		}
		if iv.EndMs <= iv.StartMs {
			t.Errorf("Пустой интервал: %+v", iv)
		}
	}
	t.Logf("Silence: %d интервалов", len(intervals))

	// Пустой вход: без ошибки и без интервалов
	intervals, err = diarizer.DetectIntervals(nil)
	if err != nil {
		t.Fatalf("DetectIntervals на пустом входе не удался: %v", err)
	}
	if len(intervals) != 0 {
		t.Errorf("Пустой вход дал интервалы: %v", intervals)
	}
}

func TestSherpaDiarizerConfig_Defaults(t *testing.T) {
	config := DefaultSherpaDiarizerConfig("/path/to/seg.onnx", "/path/to/emb.onnx")

	if config.SegmentationModelPath != "/path/to/seg.onnx" {
		t.Errorf("Ожидался путь '/path/to/seg.onnx', получен %q", config.SegmentationModelPath)
	}
	if config.EmbeddingModelPath != "/path/to/emb.onnx" {
		t.Errorf("Ожидался путь '/path/to/emb.onnx', получен %q", config.EmbeddingModelPath)
	}
	if config.NumThreads != 4 {
		t.Errorf("Ожидалось 4 потока, получено %d", config.NumThreads)
	}
	if config.ClusteringThreshold != 0.5 {
		t.Errorf("Ожидался порог кластеризации 0.5, получен %f", config.ClusteringThreshold)
	}
	if config.MinDurationOn != 0.3 {
		t.Errorf("Ожидалась мин. речь 0.3, получена %f", config.MinDurationOn)
	}
	if config.MinDurationOff != 0.5 {
		t.Errorf("Ожидалась мин. пауза 0.5, получена %f", config.MinDurationOff)
	}
	if config.Provider != "auto" {
		t.Errorf("Ожидался provider 'auto', получен %q", config.Provider)
	}
}

func TestNewSherpaDiarizer_MissingModels(t *testing.T) {
	config := DefaultSherpaDiarizerConfig("/nonexistent/seg.onnx", "/nonexistent/emb.onnx")
	if _, err := NewSherpaDiarizer(config); err == nil {
		t.Fatal("Ожидалась ошибка при отсутствующих моделях")
	}
}
