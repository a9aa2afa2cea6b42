// Package audio декодирование WAV/MP3 в моно PCM float32, нарезка по
// миллисекундам, ресемплинг и запись клипов
package audio

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DecodeFileMono декодирует аудиофайл в моно float32 [-1, 1] с частотой
// targetRate. Формат определяется по расширению (.wav, .mp3). Стерео
// сводится в моно усреднением каналов
func DecodeFileMono(path string, targetRate int) ([]float32, error) {
	var (
		samples []float32
		srcRate int
		err     error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		samples, srcRate, err = ReadWAVMono(path)
	case ".mp3":
		samples, srcRate, err = ReadMP3Mono(path)
	default:
		return nil, fmt.Errorf("unsupported audio format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	if targetRate > 0 && srcRate != targetRate {
		samples = Resample(samples, srcRate, targetRate)
	}
	return samples, nil
}

// SliceMs вырезает [startMs, endMs) из PCM, подрезая границы по краям
// записи. Для пустого или вырожденного диапазона возвращает nil
func SliceMs(samples []float32, sampleRate int, startMs, endMs uint64) []float32 {
	if sampleRate <= 0 || endMs <= startMs {
		return nil
	}

	start := int(startMs * uint64(sampleRate) / 1000)
	end := int(endMs * uint64(sampleRate) / 1000)
	if start >= len(samples) {
		return nil
	}
	if end > len(samples) {
		end = len(samples)
	}
	if start >= end {
		return nil
	}

	out := make([]float32, end-start)
	copy(out, samples[start:end])
	return out
}

// DurationMs длительность PCM в миллисекундах
func DurationMs(samples []float32, sampleRate int) uint64 {
	if sampleRate <= 0 {
		return 0
	}
	return uint64(len(samples)) * 1000 / uint64(sampleRate)
}

// Resample линейная интерполяция к целевой частоте. Для речевых задач
// этого достаточно, полосовой фильтр не применяется
func Resample(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate == dstRate || srcRate <= 0 || dstRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(srcRate) / float64(dstRate)
	newLen := int(float64(len(samples)) / ratio)
	if newLen == 0 {
		newLen = 1
	}
	out := make([]float32, newLen)
	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx+1 < len(samples) {
			out[i] = samples[srcIdx]*(1-frac) + samples[srcIdx+1]*frac
		} else if srcIdx < len(samples) {
			out[i] = samples[srcIdx]
		}
	}
	return out
}
