// Package ai содержит аудио-бэкенды: детекторы речи (Silero VAD через
// ONNX, энергетический VAD), диаризацию sherpa-onnx и извлечение
// голосовых эмбеддингов (sherpa-onnx, WeSpeaker через onnxruntime)
package ai

// SpeechInterval сырой интервал речи от детектора. RunTag — анонимная
// метка голоса внутри прогона; детекторы без различения голосов
// оставляют её пустой
type SpeechInterval struct {
	StartMs uint64
	EndMs   uint64
	RunTag  string
}

// IntervalDetector находит интервалы речи в моно PCM 16 кГц
type IntervalDetector interface {
	DetectIntervals(samples []float32) ([]SpeechInterval, error)
	Close()
}
