package ai

import (
	"math"
	"testing"
)

// makeTestSignal строит сигнал: тишина / тон / тишина / тон
func makeTestSignal(sampleRate int) []float32 {
	segment := func(dst []float32, loud bool) {
		for i := range dst {
			if loud {
				dst[i] = float32(0.3 * math.Sin(2*math.Pi*220*float64(i)/float64(sampleRate)))
			} else {
				dst[i] = 0
			}
		}
	}

	sec := sampleRate
	signal := make([]float32, 4*sec)
	segment(signal[0:sec], false)
	segment(signal[sec:2*sec], true)
	segment(signal[2*sec:3*sec], false)
	segment(signal[3*sec:], true)
	return signal
}

func TestEnergyVADDetectsSpeechRegions(t *testing.T) {
	vad := NewEnergyVAD(DefaultEnergyVADConfig())
	signal := makeTestSignal(16000)

	intervals, err := vad.DetectIntervals(signal)
	if err != nil {
		t.Fatalf("DetectIntervals: %v", err)
	}
	if len(intervals) != 2 {
		t.Fatalf("ожидалось 2 интервала, получено %d: %+v", len(intervals), intervals)
	}

	// первый тон начинается на 1000 мс, второй на 3000 мс
	if d := absDiff(intervals[0].StartMs, 1000); d > 150 {
		t.Errorf("начало первого интервала %d мс, ожидалось около 1000", intervals[0].StartMs)
	}
	if d := absDiff(intervals[1].StartMs, 3000); d > 150 {
		t.Errorf("начало второго интервала %d мс, ожидалось около 3000", intervals[1].StartMs)
	}
	// хвост записи закрывает последний интервал
	if d := absDiff(intervals[1].EndMs, 4000); d > 150 {
		t.Errorf("конец второго интервала %d мс, ожидалось около 4000", intervals[1].EndMs)
	}
}

func TestEnergyVADSilenceOnly(t *testing.T) {
	vad := NewEnergyVAD(DefaultEnergyVADConfig())

	intervals, err := vad.DetectIntervals(make([]float32, 32000))
	if err != nil {
		t.Fatalf("DetectIntervals: %v", err)
	}
	if len(intervals) != 0 {
		t.Errorf("в тишине не должно быть интервалов, получено %+v", intervals)
	}
}

func TestEnergyVADEmptyInput(t *testing.T) {
	vad := NewEnergyVAD(DefaultEnergyVADConfig())

	intervals, err := vad.DetectIntervals(nil)
	if err != nil {
		t.Fatalf("DetectIntervals: %v", err)
	}
	if intervals != nil {
		t.Errorf("пустой вход должен давать nil, получено %+v", intervals)
	}
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
