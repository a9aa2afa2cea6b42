package voiceprint

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ErrStoreUnavailable бэкенд хранилища недоступен (недоступный сервер,
// нечитаемый каталог). Обёртки проверяют её через errors.Is
var ErrStoreUnavailable = errors.New("voiceprint store unavailable")

// Store хранилище профилей спикеров. Реализации: FileStore (локальные
// JSON-файлы) и QdrantStore (удалённый векторный индекс). Бэкенд
// выбирается один раз при создании и не переключается на лету;
// деградация возможна только через явно сконфигурированный FallbackStore
type Store interface {
	// Upsert сохраняет профиль целиком, заменяя предыдущую версию по ID
	Upsert(ctx context.Context, profile SpeakerProfile) error

	// Get возвращает профиль по ID или nil, если его нет
	Get(ctx context.Context, id string) (*SpeakerProfile, error)

	// List возвращает все профили, отсортированные по времени создания
	// (при равенстве — по ID)
	List(ctx context.Context) ([]SpeakerProfile, error)

	// Search возвращает до topK кандидатов по убыванию косинусного
	// сходства с запросом. При равном сходстве раньше созданный профиль
	// идёт первым
	Search(ctx context.Context, query Voiceprint, topK int) ([]MatchCandidate, error)

	// SearchFiltered как Search, но пул кандидатов ограничен профилями,
	// чьё имя совпадает с одним из names (без учёта регистра)
	SearchFiltered(ctx context.Context, query Voiceprint, topK int, names []string) ([]MatchCandidate, error)

	// Delete удаляет профиль; возвращает false, если профиля не было
	Delete(ctx context.Context, id string) (bool, error)

	// Close освобождает ресурсы бэкенда
	Close() error
}

// rankCandidates сортирует профили по сходству с запросом и возвращает
// до topK кандидатов. profiles должны идти в порядке создания — при
// равном сходстве стабильная сортировка сохраняет этот порядок
func rankCandidates(profiles []SpeakerProfile, query Voiceprint, topK int) []MatchCandidate {
	if topK <= 0 || len(profiles) == 0 {
		return nil
	}

	candidates := make([]MatchCandidate, 0, len(profiles))
	for i := range profiles {
		p := &profiles[i]
		candidates = append(candidates, MatchCandidate{
			ProfileID:   p.ID,
			Name:        p.Name,
			Similarity:  CosineSimilarity(query.Values, p.Voiceprint.Values),
			Tags:        append([]string(nil), p.Tags...),
			SampleCount: p.SampleCount,
		})
	}

	sortCandidates(candidates)
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates
}

// sortCandidates сортирует по убыванию сходства, стабильно
func sortCandidates(candidates []MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
}

// matchesAnyName true, если имя совпадает с одним из names без учёта
// регистра
func matchesAnyName(name string, names []string) bool {
	for _, n := range names {
		if strings.EqualFold(name, n) {
			return true
		}
	}
	return false
}
