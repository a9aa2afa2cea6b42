package ai

import (
	"fmt"
	"log"
	"os"
	"sync"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SileroVADConfig конфигурация Silero VAD через sherpa-onnx
type SileroVADConfig struct {
	ModelPath          string
	SampleRate         int
	Threshold          float32 // Порог вероятности речи (0.0-1.0)
	MinSilenceDuration float32 // Тишина короче не разрывает интервал (сек)
	MinSpeechDuration  float32 // Минимальная длительность речи (сек)
	MaxSpeechDuration  float32 // Принудительный разрыв длинной речи (сек)
	NumThreads         int
	Provider           string
}

// DefaultSileroVADConfig возвращает конфигурацию по умолчанию
func DefaultSileroVADConfig(modelPath string) SileroVADConfig {
	return SileroVADConfig{
		ModelPath:          modelPath,
		SampleRate:         16000,
		Threshold:          0.5,
		MinSilenceDuration: 0.25,
		MinSpeechDuration:  0.25,
		MaxSpeechDuration:  20,
		NumThreads:         1,
		Provider:           "cpu",
	}
}

// SileroVAD детектор речи Silero через sherpa-onnx. Голоса не
// различает — RunTag интервалов пустой
type SileroVAD struct {
	config      SileroVADConfig
	vad         *sherpa.VoiceActivityDetector
	mu          sync.Mutex
	initialized bool
}

// NewSileroVAD загружает модель Silero VAD
func NewSileroVAD(config SileroVADConfig) (*SileroVAD, error) {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", config.ModelPath)
	}
	if config.SampleRate != 8000 && config.SampleRate != 16000 {
		return nil, fmt.Errorf("sample rate must be 8000 or 16000, got %d", config.SampleRate)
	}

	windowSize := 512
	if config.SampleRate == 8000 {
		windowSize = 256
	}

	sherpaConfig := sherpa.VadModelConfig{
		SileroVad: sherpa.SileroVadModelConfig{
			Model:              config.ModelPath,
			Threshold:          config.Threshold,
			MinSilenceDuration: config.MinSilenceDuration,
			MinSpeechDuration:  config.MinSpeechDuration,
			MaxSpeechDuration:  config.MaxSpeechDuration,
			WindowSize:         windowSize,
		},
		SampleRate: config.SampleRate,
		NumThreads: config.NumThreads,
		Provider:   config.Provider,
		Debug:      0,
	}

	vad := sherpa.NewVoiceActivityDetector(&sherpaConfig, 60)
	if vad == nil {
		return nil, fmt.Errorf("failed to create silero vad")
	}

	log.Printf("[VAD] Silero VAD загружен: %s (порог %.2f)", config.ModelPath, config.Threshold)
	return &SileroVAD{
		config:      config,
		vad:         vad,
		initialized: true,
	}, nil
}

// DetectIntervals прогоняет PCM через VAD и возвращает интервалы речи
func (v *SileroVAD) DetectIntervals(samples []float32) ([]SpeechInterval, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.initialized {
		return nil, fmt.Errorf("silero vad not initialized")
	}
	if len(samples) == 0 {
		return nil, nil
	}

	windowSize := 512
	if v.config.SampleRate == 8000 {
		windowSize = 256
	}

	var intervals []SpeechInterval
	drain := func() {
		for !v.vad.IsEmpty() {
			seg := v.vad.Front()
			v.vad.Pop()
			start := uint64(seg.Start) * 1000 / uint64(v.config.SampleRate)
			end := uint64(seg.Start+len(seg.Samples)) * 1000 / uint64(v.config.SampleRate)
			if end > start {
				intervals = append(intervals, SpeechInterval{StartMs: start, EndMs: end})
			}
		}
	}

	for i := 0; i < len(samples); i += windowSize {
		end := i + windowSize
		if end > len(samples) {
			end = len(samples)
		}
		v.vad.AcceptWaveform(samples[i:end])
		drain()
	}
	v.vad.Flush()
	drain()

	log.Printf("[VAD] Silero VAD: %d интервалов речи", len(intervals))
	return intervals, nil
}

// Close освобождает ресурсы модели
func (v *SileroVAD) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.vad != nil {
		sherpa.DeleteVoiceActivityDetector(v.vad)
		v.vad = nil
	}
	v.initialized = false
}
