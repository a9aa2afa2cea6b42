// Package voiceprint предоставляет хранилище голосовых отпечатков,
// регистрацию спикеров и поиск совпадений по эмбеддингам
package voiceprint

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Voiceprint нормализованный голосовой отпечаток спикера
type Voiceprint struct {
	Dim    int       `json:"dim"`    // Размерность вектора (например, 256 для WeSpeaker ResNet34)
	Values []float32 `json:"values"` // L2-нормализованный вектор
}

// NewVoiceprint копирует и L2-нормализует вектор. Для вектора с нулевой
// нормой возвращает отпечаток с нулевыми значениями
func NewVoiceprint(values []float32) Voiceprint {
	return Voiceprint{
		Dim:    len(values),
		Values: NormalizeVector(values),
	}
}

// IsZero true, если отпечаток пуст или имеет нулевую норму
func (v Voiceprint) IsZero() bool {
	for _, x := range v.Values {
		if x != 0 {
			return false
		}
	}
	return true
}

// SourceRef ссылка на источник аудио, из которого сделан отпечаток
type SourceRef struct {
	Kind string `json:"kind"` // "file", "mic", "url"
	Ref  string `json:"ref"`  // путь, имя устройства или URL
}

// SpeakerProfile профиль спикера в хранилище
type SpeakerProfile struct {
	ID         string     `json:"id"`   // UUID или произвольный стабильный идентификатор
	Name       string     `json:"name"` // Имя спикера (например, "Иван")
	Voiceprint Voiceprint `json:"voiceprint"`

	Tags        []string    `json:"tags,omitempty"`    // Уникальные, отсортированы
	SampleCount int         `json:"sampleCount"`       // Сколько сэмплов усреднено в отпечатке
	Sources     []SourceRef `json:"sources,omitempty"` // История источников, в порядке добавления

	// Опционально: путь к аудио-клипу для прослушивания
	SamplePath string `json:"samplePath,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone глубокая копия профиля
func (p *SpeakerProfile) Clone() SpeakerProfile {
	out := *p
	out.Voiceprint.Values = append([]float32(nil), p.Voiceprint.Values...)
	out.Tags = append([]string(nil), p.Tags...)
	out.Sources = append([]SourceRef(nil), p.Sources...)
	return out
}

// MatchCandidate кандидат из поиска по хранилищу. Хранится только в
// памяти, в бэкенд не записывается
type MatchCandidate struct {
	ProfileID   string   `json:"profileId"`
	Name        string   `json:"name"`
	Similarity  float32  `json:"similarity"` // Косинусное сходство (-1..1)
	Tags        []string `json:"tags,omitempty"`
	SampleCount int      `json:"sampleCount"`
}

// NormalizeVector возвращает L2-нормализованную копию вектора. Вектор
// с нулевой нормой возвращается как есть (копией)
func NormalizeVector(values []float32) []float32 {
	out := make([]float32, len(values))
	norm := floats.Norm(toFloat64(values), 2)
	if norm == 0 {
		copy(out, values)
		return out
	}
	inv := float32(1 / norm)
	for i, x := range values {
		out[i] = x * inv
	}
	return out
}

// CosineSimilarity косинусное сходство двух векторов. Накопление идёт
// в float64, чтобы не терять точность на больших размерностях. Для
// векторов разной длины или нулевой нормы возвращает 0
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	a64 := toFloat64(a)
	b64 := toFloat64(b)
	na := floats.Norm(a64, 2)
	nb := floats.Norm(b64, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(floats.Dot(a64, b64) / (na * nb))
}

// MeanVector покомпонентное среднее векторов одной размерности.
// Вектора другой размерности пропускаются
func MeanVector(vectors [][]float32) []float32 {
	var sum []float64
	count := 0
	for _, v := range vectors {
		if len(v) == 0 {
			continue
		}
		if sum == nil {
			sum = make([]float64, len(v))
		}
		if len(v) != len(sum) {
			continue
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
		count++
	}
	if count == 0 {
		return nil
	}
	out := make([]float32, len(sum))
	for i, x := range sum {
		out[i] = float32(x / float64(count))
	}
	return out
}

// mergeTags объединяет списки тегов в отсортированное множество
func mergeTags(lists ...[]string) []string {
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, tag := range list {
			if tag == "" {
				continue
			}
			seen[tag] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// vectorNorm L2-норма вектора float32
func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
