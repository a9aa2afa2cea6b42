// Package service связывает аудио-бэкенды, сборку сегментов,
// кластеризацию и идентификацию в законченные сценарии анализа записи
package service

import (
	"context"
	"log"
	"sync"
	"time"

	"speakerkit/ai"
	"speakerkit/audio"
	"speakerkit/diar"
	"speakerkit/voiceprint"
)

// Report итог анализа записи
type Report struct {
	Segments []diar.Segment       `json:"segments"`
	Shares   []diar.SpeakingShare `json:"shares"`
	TotalMs  uint64               `json:"totalMs"`
}

// DiarizationConfig параметры анализа
type DiarizationConfig struct {
	SampleRate       int
	Builder          diar.BuilderConfig
	ClusterThreshold float64
	Identify         voiceprint.IdentifyParams
	SegmentTimeout   time.Duration // на эмбеддинг одного сегмента в режиме идентификации
	Parallelism      int           // параллельных сегментов в режиме идентификации
}

// DefaultDiarizationConfig возвращает параметры по умолчанию
func DefaultDiarizationConfig() DiarizationConfig {
	return DiarizationConfig{
		SampleRate:       16000,
		Builder:          diar.DefaultBuilderConfig(),
		ClusterThreshold: diar.DefaultNewClusterThreshold,
		Identify:         voiceprint.DefaultIdentifyParams(),
		SegmentTimeout:   10 * time.Second,
		Parallelism:      4,
	}
}

// DiarizationService анализ записи: кто когда говорил и сколько.
// Два режима: кластеризация без базы (метки spk1, spk2, ...) и
// идентификация по базе голосовых отпечатков
type DiarizationService struct {
	detector ai.IntervalDetector
	embedder voiceprint.Embedder
	matcher  *voiceprint.Matcher // nil — идентификация недоступна
	config   DiarizationConfig
}

// NewDiarizationService создаёт сервис. matcher может быть nil, тогда
// доступен только режим кластеризации
func NewDiarizationService(detector ai.IntervalDetector, embedder voiceprint.Embedder, matcher *voiceprint.Matcher, config DiarizationConfig) *DiarizationService {
	if config.SampleRate <= 0 {
		config = DefaultDiarizationConfig()
	}
	return &DiarizationService{
		detector: detector,
		embedder: embedder,
		matcher:  matcher,
		config:   config,
	}
}

// AnalyzeClustered размечает запись анонимными метками spk1, spk2, ...
// Эмбеддинги сегментов кластеризуются по бегущим центроидам строго в
// порядке времени, поэтому результат детерминирован. При отмене
// контекста возвращается частичный отчёт по уже обработанным сегментам
// вместе с ошибкой контекста
func (s *DiarizationService) AnalyzeClustered(ctx context.Context, samples []float32) (*Report, error) {
	segments, totalMs, err := s.buildSegments(samples)
	if err != nil {
		return nil, err
	}

	clusterer := diar.NewClusterer(s.config.ClusterThreshold)
	assignments := make([]int, 0, len(segments))
	labeled := make([]diar.Segment, 0, len(segments))

	for i, seg := range segments {
		if err := ctx.Err(); err != nil {
			log.Printf("[Diarization] Отмена после %d/%d сегментов", i, len(segments))
			return s.report(relabel(labeled, assignments), totalMs), err
		}

		emb, embErr := s.embedSegment(ctx, samples, seg)
		if embErr != nil {
			// сегмент без эмбеддинга остаётся неопознанным
			log.Printf("[Diarization] Сегмент %d без эмбеддинга: %v", i, embErr)
			labeled = append(labeled, seg)
			assignments = append(assignments, -1)
			continue
		}
		id := clusterer.Assign(emb)
		if id < 0 {
			// нулевой эмбеддинг: аудио непригодно, сегмент без метки
			log.Printf("[Diarization] Сегмент %d с нулевым эмбеддингом остаётся без метки", i)
		}
		assignments = append(assignments, id)
		labeled = append(labeled, seg)
	}

	return s.report(relabel(labeled, assignments), totalMs), nil
}

// AnalyzeIdentified размечает запись именами спикеров из базы.
// Эмбеддинги сегментов считаются параллельно; сегмент, не уложившийся
// в SegmentTimeout или не прошедший порог, остаётся неопознанным
func (s *DiarizationService) AnalyzeIdentified(ctx context.Context, samples []float32) (*Report, error) {
	segments, totalMs, err := s.buildSegments(samples)
	if err != nil {
		return nil, err
	}

	labeled := make([]diar.Segment, len(segments))
	copy(labeled, segments)

	parallelism := s.config.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup

	for i := range segments {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			if name := s.identifySegment(ctx, samples, segments[idx]); name != "" {
				labeled[idx].Label = name
			}
		}(i)
	}
	wg.Wait()

	report := s.report(labeled, totalMs)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// buildSegments VAD + сборка сегментов
func (s *DiarizationService) buildSegments(samples []float32) ([]diar.Segment, uint64, error) {
	totalMs := audio.DurationMs(samples, s.config.SampleRate)

	intervals, err := s.detector.DetectIntervals(samples)
	if err != nil {
		return nil, 0, err
	}

	raw := make([]diar.Interval, 0, len(intervals))
	for _, iv := range intervals {
		raw = append(raw, diar.Interval{StartMs: iv.StartMs, EndMs: iv.EndMs, RunTag: iv.RunTag})
	}

	segments, err := diar.BuildSegments(raw, s.config.Builder)
	if err != nil {
		return nil, 0, err
	}
	log.Printf("[Diarization] %d интервалов -> %d сегментов (%.1f сек записи)",
		len(intervals), len(segments), float64(totalMs)/1000)
	return segments, totalMs, nil
}

// embedSegment эмбеддинг PCM одного сегмента
func (s *DiarizationService) embedSegment(ctx context.Context, samples []float32, seg diar.Segment) ([]float32, error) {
	pcm := audio.SliceMs(samples, s.config.SampleRate, seg.StartMs, seg.EndMs)
	return s.embedder.Embed(ctx, pcm)
}

// identifySegment возвращает имя спикера или пустую строку
func (s *DiarizationService) identifySegment(ctx context.Context, samples []float32, seg diar.Segment) string {
	if s.matcher == nil {
		return ""
	}

	segCtx := ctx
	if s.config.SegmentTimeout > 0 {
		var cancel context.CancelFunc
		segCtx, cancel = context.WithTimeout(ctx, s.config.SegmentTimeout)
		defer cancel()
	}

	emb, err := s.embedSegment(segCtx, samples, seg)
	if err != nil {
		log.Printf("[Diarization] Сегмент [%d-%d] без эмбеддинга: %v", seg.StartMs, seg.EndMs, err)
		return ""
	}

	ident, err := s.matcher.Identify(segCtx, voiceprint.NewVoiceprint(emb), s.config.Identify)
	if err != nil {
		log.Printf("[Diarization] Идентификация [%d-%d] не удалась: %v", seg.StartMs, seg.EndMs, err)
		return ""
	}
	if ident.Best == nil {
		return ""
	}
	return ident.Best.Name
}

func (s *DiarizationService) report(segments []diar.Segment, totalMs uint64) *Report {
	return &Report{
		Segments: segments,
		Shares:   diar.Shares(segments, totalMs),
		TotalMs:  totalMs,
	}
}

// relabel переводит id кластеров в метки spk1, spk2, ... в порядке
// первого появления; -1 остаётся без метки
func relabel(segments []diar.Segment, assignments []int) []diar.Segment {
	ids := make([]int, 0, len(assignments))
	for _, id := range assignments {
		if id >= 0 {
			ids = append(ids, id)
		}
	}
	labels := diar.SpeakerLabels(ids)

	out := make([]diar.Segment, len(segments))
	copy(out, segments)
	for i, id := range assignments {
		if id >= 0 {
			out[i].Label = labels[id]
		}
	}
	return out
}
