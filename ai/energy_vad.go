package ai

import (
	"log"
	"math"
)

// EnergyVADConfig параметры энергетического VAD
type EnergyVADConfig struct {
	SampleRate      int
	WindowMs        int     // Размер окна анализа
	EnergyThreshold float64 // Порог RMS энергии для речи
	MinSilenceMs    int     // Тишина короче не разрывает сегмент
	ConfirmWindows  int     // Сколько окон подряд подтверждают начало речи
}

// DefaultEnergyVADConfig возвращает конфигурацию по умолчанию
func DefaultEnergyVADConfig() EnergyVADConfig {
	return EnergyVADConfig{
		SampleRate:      16000,
		WindowMs:        50,
		EnergyThreshold: 0.01,
		MinSilenceMs:    300,
		ConfirmWindows:  2,
	}
}

// EnergyVAD простой детектор речи по RMS энергии окна. Не требует
// моделей; резервный вариант, когда Silero VAD недоступен. Голоса не
// различает, RunTag всегда пустой
type EnergyVAD struct {
	config EnergyVADConfig
}

// NewEnergyVAD создаёт энергетический VAD
func NewEnergyVAD(config EnergyVADConfig) *EnergyVAD {
	if config.SampleRate <= 0 || config.WindowMs <= 0 {
		config = DefaultEnergyVADConfig()
	}
	return &EnergyVAD{config: config}
}

// DetectIntervals находит интервалы речи по энергии окон
func (v *EnergyVAD) DetectIntervals(samples []float32) ([]SpeechInterval, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	windowSamples := v.config.SampleRate * v.config.WindowMs / 1000
	if windowSamples <= 0 {
		windowSamples = 1
	}
	minSilenceWindows := v.config.MinSilenceMs / v.config.WindowMs
	if minSilenceWindows < 1 {
		minSilenceWindows = 1
	}

	var (
		intervals    []SpeechInterval
		current      *SpeechInterval
		speechCount  int
		silenceCount int
		pendingStart uint64
	)

	for i := 0; i < len(samples); i += windowSamples {
		end := i + windowSamples
		if end > len(samples) {
			end = len(samples)
		}
		currentMs := uint64(i) * 1000 / uint64(v.config.SampleRate)
		isSpeech := windowRMS(samples[i:end]) >= v.config.EnergyThreshold

		if isSpeech {
			silenceCount = 0
			if speechCount == 0 {
				pendingStart = currentMs
			}
			speechCount++
			if current == nil && speechCount >= v.config.ConfirmWindows {
				current = &SpeechInterval{StartMs: pendingStart}
			}
			continue
		}

		speechCount = 0
		if current == nil {
			continue
		}
		silenceCount++
		if silenceCount >= minSilenceWindows {
			current.EndMs = currentMs - uint64(silenceCount-1)*uint64(v.config.WindowMs)
			if current.EndMs > current.StartMs {
				intervals = append(intervals, *current)
			}
			current = nil
			silenceCount = 0
		}
	}

	if current != nil {
		current.EndMs = uint64(len(samples)) * 1000 / uint64(v.config.SampleRate)
		if current.EndMs > current.StartMs {
			intervals = append(intervals, *current)
		}
	}

	log.Printf("[VAD] Энергетический VAD: %d интервалов речи", len(intervals))
	return intervals, nil
}

// Close для энергетического VAD освобождать нечего
func (v *EnergyVAD) Close() {}

// windowRMS RMS энергия окна
func windowRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
