package diar

import (
	"math"
	"sort"
)

// UnknownSpeaker метка в итоговом отчёте для сегментов без опознанного
// спикера. Литерал фиксирован форматом отчёта
const UnknownSpeaker = "Unbekannt"

// reconcileTolerance допустимый дрейф суммы процентов после масштабирования
const reconcileTolerance = 1e-6

// SpeakingShare доля речи одного спикера в записи
type SpeakingShare struct {
	Name    string  `json:"name"`
	TotalMs uint64  `json:"totalMs"`
	Percent float64 `json:"percent"`
}

// Shares агрегирует время речи по меткам сегментов и возвращает доли,
// отсортированные по убыванию времени (при равенстве — по имени).
// Сегменты без метки попадают в корзину UnknownSpeaker. Проценты
// масштабируются так, чтобы сумма была ровно 100; остаточный дрейф
// сверх допуска прибавляется к самой большой корзине.
// fallbackTotalMs используется как знаменатель, когда суммарная
// длительность сегментов равна нулю
func Shares(segments []Segment, fallbackTotalMs uint64) []SpeakingShare {
	if len(segments) == 0 {
		return nil
	}

	totals := make(map[string]uint64)
	order := make([]string, 0, 4)
	for _, seg := range segments {
		name := seg.Label
		if name == "" {
			name = UnknownSpeaker
		}
		if _, ok := totals[name]; !ok {
			order = append(order, name)
		}
		totals[name] += seg.DurationMs()
	}

	var totalMs uint64
	for _, ms := range totals {
		totalMs += ms
	}
	if totalMs == 0 {
		totalMs = fallbackTotalMs
	}

	shares := make([]SpeakingShare, 0, len(order))
	for _, name := range order {
		share := SpeakingShare{Name: name, TotalMs: totals[name]}
		if totalMs > 0 {
			share.Percent = float64(totals[name]) / float64(totalMs) * 100
		}
		shares = append(shares, share)
	}

	reconcile(shares)

	sort.SliceStable(shares, func(i, j int) bool {
		if shares[i].TotalMs != shares[j].TotalMs {
			return shares[i].TotalMs > shares[j].TotalMs
		}
		return shares[i].Name < shares[j].Name
	})
	return shares
}

// reconcile приводит сумму процентов ровно к 100: сначала общим
// масштабированием, затем остаток уходит в самую большую корзину
func reconcile(shares []SpeakingShare) {
	var sum float64
	for _, s := range shares {
		sum += s.Percent
	}
	if sum == 0 {
		return
	}

	scale := 100 / sum
	sum = 0
	for i := range shares {
		shares[i].Percent *= scale
		sum += shares[i].Percent
	}

	if drift := 100 - sum; math.Abs(drift) > reconcileTolerance {
		largest := 0
		for i := 1; i < len(shares); i++ {
			if shares[i].Percent > shares[largest].Percent {
				largest = i
			}
		}
		shares[largest].Percent += drift
	}
}
