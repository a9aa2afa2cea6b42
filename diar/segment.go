// Package diar содержит чистую логику диаризации: сборку сегментов речи
// из сырых интервалов VAD, онлайн-кластеризацию эмбеддингов и подсчёт
// долей речи по спикерам. Пакет не зависит от аудио-бэкендов и хранилищ.
package diar

import (
	"errors"
	"fmt"
)

// ErrInvalidInterval возвращается, когда входной интервал имеет
// нулевую или отрицательную длительность либо нарушен порядок по началу
var ErrInvalidInterval = errors.New("invalid speech interval")

// Interval сырой интервал речи от VAD или диаризационного бэкенда.
// RunTag — анонимная метка "тот же голос" внутри одного прогона бэкенда;
// может быть пустой, если бэкенд не различает голоса
type Interval struct {
	StartMs uint64
	EndMs   uint64
	RunTag  string
}

// Segment сегмент речи после сборки. Label — имя спикера или id кластера,
// пустая строка означает, что спикер не опознан
type Segment struct {
	StartMs uint64
	EndMs   uint64
	Label   string
}

// DurationMs длительность сегмента в миллисекундах
func (s Segment) DurationMs() uint64 {
	if s.EndMs <= s.StartMs {
		return 0
	}
	return s.EndMs - s.StartMs
}

// BuilderConfig параметры сборки сегментов
type BuilderConfig struct {
	CollarMs    uint64 // максимальная пауза между интервалами одного голоса для склейки
	MinSpeechMs uint64 // минимальная длительность сегмента после склейки
}

// DefaultBuilderConfig возвращает параметры сборки по умолчанию
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		CollarMs:    250,
		MinSpeechMs: 400,
	}
}

// BuildSegments превращает сырые интервалы в сегменты речи: сначала
// склеивает близкие интервалы одного голоса, затем отбрасывает слишком
// короткие. Порядок обязателен — склейка может "спасти" цепочку коротких
// интервалов, которые по отдельности ушли бы в отсев
func BuildSegments(intervals []Interval, cfg BuilderConfig) ([]Segment, error) {
	merged, err := MergeClose(intervals, cfg.CollarMs)
	if err != nil {
		return nil, err
	}
	merged = DropShort(merged, cfg.MinSpeechMs)

	segments := make([]Segment, 0, len(merged))
	for _, iv := range merged {
		segments = append(segments, Segment{StartMs: iv.StartMs, EndMs: iv.EndMs})
	}
	return segments, nil
}

// MergeClose склеивает соседние интервалы с одинаковым RunTag, если пауза
// между ними не превышает collarMs. Вход должен быть отсортирован по
// началу; выход никогда не содержит перекрытий — начало интервала с другой
// меткой при необходимости подрезается по концу предыдущего
func MergeClose(intervals []Interval, collarMs uint64) ([]Interval, error) {
	if len(intervals) == 0 {
		return nil, nil
	}

	out := make([]Interval, 0, len(intervals))
	for i, iv := range intervals {
		if iv.EndMs <= iv.StartMs {
			return nil, fmt.Errorf("%w: start=%d end=%d", ErrInvalidInterval, iv.StartMs, iv.EndMs)
		}
		if i > 0 && iv.StartMs < intervals[i-1].StartMs {
			return nil, fmt.Errorf("%w: интервал %d нарушает порядок по началу", ErrInvalidInterval, i)
		}

		if len(out) == 0 {
			out = append(out, iv)
			continue
		}

		last := &out[len(out)-1]
		if iv.RunTag == last.RunTag && iv.StartMs <= last.EndMs+collarMs {
			// тот же голос в пределах колларa — растягиваем хвост
			if iv.EndMs > last.EndMs {
				last.EndMs = iv.EndMs
			}
			continue
		}

		// другой голос: перекрытие недопустимо, подрезаем начало
		if iv.StartMs < last.EndMs {
			iv.StartMs = last.EndMs
			if iv.EndMs <= iv.StartMs {
				continue // интервал целиком поглощён предыдущим
			}
		}
		out = append(out, iv)
	}
	return out, nil
}

// DropShort отбрасывает интервалы короче minSpeechMs. Применяется строго
// после склейки. Входной слайс не изменяется
func DropShort(intervals []Interval, minSpeechMs uint64) []Interval {
	if minSpeechMs == 0 {
		return intervals
	}
	out := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.EndMs-iv.StartMs >= minSpeechMs {
			out = append(out, iv)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
