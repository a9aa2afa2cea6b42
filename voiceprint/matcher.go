package voiceprint

import (
	"context"
	"fmt"
	"sort"
)

// Параметры идентификации по умолчанию
const (
	DefaultIdentifyThreshold float32 = 0.60 // минимальное сходство для уверенного совпадения
	DefaultTopK                      = 3
	DefaultHintBonus         float32 = 0.01
)

// IdentifyParams параметры одного запроса идентификации
type IdentifyParams struct {
	TopK      int
	Threshold float32
	Hints     []string // имена ожидаемых спикеров (без учёта регистра)
	HintBonus float32  // прибавка к сходству кандидата из Hints
	HardHints bool     // true: хинты сужают пул кандидатов, а не только смещают ранжирование
}

// DefaultIdentifyParams возвращает параметры по умолчанию
func DefaultIdentifyParams() IdentifyParams {
	return IdentifyParams{
		TopK:      DefaultTopK,
		Threshold: DefaultIdentifyThreshold,
		HintBonus: DefaultHintBonus,
	}
}

// Identification результат идентификации одного отпечатка
type Identification struct {
	// Best лучший кандидат не ниже порога; nil — спикер не опознан
	Best *MatchCandidate
	// Candidates все кандидаты после бонусов, по убыванию сходства
	Candidates []MatchCandidate
}

// Matcher идентифицирует спикера по отпечатку через хранилище
type Matcher struct {
	store Store
}

// NewMatcher создаёт идентификатор поверх хранилища
func NewMatcher(store Store) *Matcher {
	return &Matcher{store: store}
}

// Identify ищет ближайшие профили и выбирает лучшего кандидата.
// Кандидаты с именем из Hints получают прибавку HintBonus к сходству —
// хинт сдвигает выбор только при почти равных кандидатах. Порог
// проверяется по сходству с бонусом. При HardHints пул кандидатов
// заранее ограничен именами из Hints
func (m *Matcher) Identify(ctx context.Context, query Voiceprint, params IdentifyParams) (*Identification, error) {
	if len(query.Values) == 0 {
		return nil, fmt.Errorf("empty voiceprint")
	}
	if params.TopK <= 0 {
		params.TopK = DefaultTopK
	}

	var (
		candidates []MatchCandidate
		err        error
	)
	if params.HardHints && len(params.Hints) > 0 {
		candidates, err = m.store.SearchFiltered(ctx, query, params.TopK, params.Hints)
	} else {
		candidates, err = m.store.Search(ctx, query, params.TopK)
	}
	if err != nil {
		return nil, fmt.Errorf("identify: %w", err)
	}

	if len(params.Hints) > 0 && params.HintBonus != 0 {
		for i := range candidates {
			if matchesAnyName(candidates[i].Name, params.Hints) {
				candidates[i].Similarity += params.HintBonus
			}
		}
		// после бонусов порядок мог поменяться; стабильная сортировка
		// сохраняет детерминизм хранилища при равных значениях
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Similarity > candidates[j].Similarity
		})
	}

	result := &Identification{Candidates: candidates}
	if len(candidates) > 0 && candidates[0].Similarity >= params.Threshold {
		best := candidates[0]
		result.Best = &best
	}
	return result, nil
}
