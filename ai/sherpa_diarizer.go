package ai

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SherpaDiarizerConfig конфигурация диаризации через sherpa-onnx
type SherpaDiarizerConfig struct {
	SegmentationModelPath string  // Модель сегментации (pyannote)
	EmbeddingModelPath    string  // Модель эмбеддингов (wespeaker/3dspeaker)
	NumThreads            int
	ClusteringThreshold   float32 // Порог кластеризации внутри прогона
	MinDurationOn         float32 // Минимальная длительность речи (сек)
	MinDurationOff        float32 // Минимальная длительность паузы (сек)
	Provider              string  // cpu, cuda, coreml, auto
}

// detectBestProvider определяет provider для текущей платформы
func detectBestProvider() string {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return "coreml"
	}
	return "cpu"
}

// DefaultSherpaDiarizerConfig возвращает конфигурацию по умолчанию
func DefaultSherpaDiarizerConfig(segmentationPath, embeddingPath string) SherpaDiarizerConfig {
	return SherpaDiarizerConfig{
		SegmentationModelPath: segmentationPath,
		EmbeddingModelPath:    embeddingPath,
		NumThreads:            4,
		ClusteringThreshold:   0.5,
		MinDurationOn:         0.3,
		MinDurationOff:        0.5,
		Provider:              "auto",
	}
}

// SherpaDiarizer находит интервалы речи с анонимными метками голосов
// через оффлайн-диаризацию sherpa-onnx. Метки действительны только
// внутри одного прогона
type SherpaDiarizer struct {
	config      SherpaDiarizerConfig
	diarizer    *sherpa.OfflineSpeakerDiarization
	mu          sync.Mutex
	initialized bool
}

// NewSherpaDiarizer загружает модели диаризации
func NewSherpaDiarizer(config SherpaDiarizerConfig) (*SherpaDiarizer, error) {
	if _, err := os.Stat(config.SegmentationModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("segmentation model not found: %s", config.SegmentationModelPath)
	}
	if _, err := os.Stat(config.EmbeddingModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("embedding model not found: %s", config.EmbeddingModelPath)
	}

	provider := config.Provider
	if provider == "auto" || provider == "" {
		provider = detectBestProvider()
	}

	sherpaConfig := &sherpa.OfflineSpeakerDiarizationConfig{
		Segmentation: sherpa.OfflineSpeakerSegmentationModelConfig{
			Pyannote: sherpa.OfflineSpeakerSegmentationPyannoteModelConfig{
				Model: config.SegmentationModelPath,
			},
			NumThreads: config.NumThreads,
			Debug:      0,
			Provider:   provider,
		},
		Embedding: sherpa.SpeakerEmbeddingExtractorConfig{
			Model:      config.EmbeddingModelPath,
			NumThreads: config.NumThreads,
			Debug:      0,
			Provider:   provider,
		},
		Clustering: sherpa.FastClusteringConfig{
			NumClusters: -1, // число голосов определяется автоматически
			Threshold:   config.ClusteringThreshold,
		},
		MinDurationOn:  config.MinDurationOn,
		MinDurationOff: config.MinDurationOff,
	}

	diarizer := sherpa.NewOfflineSpeakerDiarization(sherpaConfig)
	if diarizer == nil {
		if provider != "cpu" {
			log.Printf("[Diarizer] Provider %s не поднялся, откат на cpu", provider)
			sherpaConfig.Segmentation.Provider = "cpu"
			sherpaConfig.Embedding.Provider = "cpu"
			diarizer = sherpa.NewOfflineSpeakerDiarization(sherpaConfig)
			provider = "cpu"
		}
		if diarizer == nil {
			return nil, fmt.Errorf("failed to create sherpa-onnx diarizer")
		}
	}
	config.Provider = provider

	log.Printf("[Diarizer] Инициализирован: provider=%s", provider)
	return &SherpaDiarizer{
		config:      config,
		diarizer:    diarizer,
		initialized: true,
	}, nil
}

// DetectIntervals прогоняет PCM через диаризацию; интервалы несут
// RunTag голоса вида "run0", "run1", ...
func (d *SherpaDiarizer) DetectIntervals(samples []float32) ([]SpeechInterval, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil, fmt.Errorf("diarizer not initialized")
	}
	if len(samples) == 0 {
		return nil, nil
	}

	segments := d.diarizer.Process(samples)
	intervals := make([]SpeechInterval, 0, len(segments))
	voices := make(map[int]struct{})
	for _, seg := range segments {
		start := uint64(seg.Start * 1000)
		end := uint64(seg.End * 1000)
		if end <= start {
			continue
		}
		voices[seg.Speaker] = struct{}{}
		intervals = append(intervals, SpeechInterval{
			StartMs: start,
			EndMs:   end,
			RunTag:  fmt.Sprintf("run%d", seg.Speaker),
		})
	}

	log.Printf("[Diarizer] %d интервалов, %d голосов", len(intervals), len(voices))
	return intervals, nil
}

// SampleRate ожидаемая частота дискретизации (обычно 16000)
func (d *SherpaDiarizer) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.diarizer != nil {
		return d.diarizer.SampleRate()
	}
	return 16000
}

// Close освобождает ресурсы моделей
func (d *SherpaDiarizer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.diarizer != nil {
		sherpa.DeleteOfflineSpeakerDiarization(d.diarizer)
		d.diarizer = nil
	}
	d.initialized = false
}
