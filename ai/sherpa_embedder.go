package ai

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SherpaEmbedderConfig конфигурация извлечения эмбеддингов через
// sherpa-onnx
type SherpaEmbedderConfig struct {
	ModelPath  string
	SampleRate int
	NumThreads int
	Provider   string
}

// DefaultSherpaEmbedderConfig возвращает конфигурацию по умолчанию
func DefaultSherpaEmbedderConfig(modelPath string) SherpaEmbedderConfig {
	return SherpaEmbedderConfig{
		ModelPath:  modelPath,
		SampleRate: 16000,
		NumThreads: 2,
		Provider:   "cpu",
	}
}

// SherpaEmbedder извлекает голосовые эмбеддинги моделью sherpa-onnx
// (wespeaker/3dspeaker). Вызовы сериализуются мьютексом — у экстрактора
// общее внутреннее состояние
type SherpaEmbedder struct {
	config      SherpaEmbedderConfig
	extractor   *sherpa.SpeakerEmbeddingExtractor
	mu          sync.Mutex
	initialized bool
}

// NewSherpaEmbedder загружает модель эмбеддингов
func NewSherpaEmbedder(config SherpaEmbedderConfig) (*SherpaEmbedder, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("embedding model not found: %s", config.ModelPath)
	}

	sherpaConfig := sherpa.SpeakerEmbeddingExtractorConfig{
		Model:      config.ModelPath,
		NumThreads: config.NumThreads,
		Debug:      0,
		Provider:   config.Provider,
	}
	extractor := sherpa.NewSpeakerEmbeddingExtractor(&sherpaConfig)
	if extractor == nil {
		return nil, fmt.Errorf("failed to create speaker embedding extractor")
	}

	e := &SherpaEmbedder{
		config:      config,
		extractor:   extractor,
		initialized: true,
	}
	log.Printf("[Embedder] sherpa-onnx загружен: %s (dim=%d)", config.ModelPath, e.Dim())
	return e, nil
}

// Dim размерность эмбеддинга
func (e *SherpaEmbedder) Dim() int {
	if e.extractor == nil {
		return 0
	}
	return e.extractor.Dim()
}

// Embed извлекает эмбеддинг из моно PCM с частотой SampleRate
func (e *SherpaEmbedder) Embed(ctx context.Context, samples []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil, fmt.Errorf("embedder not initialized")
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("empty audio")
	}

	stream := e.extractor.CreateStream()
	if stream == nil {
		return nil, fmt.Errorf("failed to create stream")
	}
	defer sherpa.DeleteOnlineStream(stream)

	stream.AcceptWaveform(e.config.SampleRate, samples)
	stream.InputFinished()

	if !e.extractor.IsReady(stream) {
		return nil, fmt.Errorf("audio too short for embedding (%d samples)", len(samples))
	}

	embedding := e.extractor.Compute(stream)
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty embedding")
	}
	return embedding, nil
}

// Close освобождает ресурсы модели
func (e *SherpaEmbedder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.extractor != nil {
		sherpa.DeleteSpeakerEmbeddingExtractor(e.extractor)
		e.extractor = nil
	}
	e.initialized = false
}
