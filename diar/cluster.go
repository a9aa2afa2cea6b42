package diar

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultNewClusterThreshold порог косинусной близости, ниже которого
// эмбеддинг открывает новый кластер
const DefaultNewClusterThreshold = 0.75

// Clusterer онлайн-кластеризация эмбеддингов по бегущим центроидам.
// Эмбеддинги подаются в порядке сегментов; результат детерминирован
// для одинаковой последовательности входов. Потокобезопасность не
// предусмотрена — кластеризация идёт в один проход
type Clusterer struct {
	threshold float64
	sums      [][]float64 // ненормализованные суммы эмбеддингов по кластерам
	counts    []int
}

// NewClusterer создаёт кластеризатор с порогом открытия нового кластера.
// Порог вне (0,1] заменяется на значение по умолчанию
func NewClusterer(threshold float64) *Clusterer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultNewClusterThreshold
	}
	return &Clusterer{threshold: threshold}
}

// Len текущее число кластеров
func (c *Clusterer) Len() int {
	return len(c.counts)
}

// Assign находит кластер для эмбеддинга и обновляет его центроид.
// Сравнение идёт по косинусной близости к нормализованному центроиду;
// при равной близости побеждает кластер с меньшим id. Если лучший
// кластер хуже порога, открывается новый. Возвращает id кластера.
//
// Эмбеддинг с нулевой нормой — сигнал непригодного аудио от бэкенда;
// он не кластеризуется, возвращается -1, состояние не меняется
func (c *Clusterer) Assign(embedding []float32) int {
	vec := toFloat64(embedding)
	if floats.Norm(vec, 2) == 0 {
		return -1
	}

	bestID := -1
	bestSim := math.Inf(-1)
	for id, sum := range c.sums {
		sim := cosineSimilarity64(meanOf(sum, c.counts[id]), vec)
		if sim > bestSim {
			bestSim = sim
			bestID = id
		}
	}

	if bestID >= 0 && bestSim >= c.threshold {
		addInPlace(c.sums[bestID], vec)
		c.counts[bestID]++
		return bestID
	}

	c.sums = append(c.sums, append([]float64(nil), vec...))
	c.counts = append(c.counts, 1)
	return len(c.counts) - 1
}

// SpeakerLabels переводит id кластеров в метки spk1, spk2, ... в порядке
// первого появления. Вызывается один раз в конце прогона
func SpeakerLabels(assignments []int) map[int]string {
	labels := make(map[int]string, len(assignments))
	next := 1
	for _, id := range assignments {
		if _, ok := labels[id]; ok {
			continue
		}
		labels[id] = fmt.Sprintf("spk%d", next)
		next++
	}
	return labels
}

func meanOf(sum []float64, count int) []float64 {
	if count <= 1 {
		return sum
	}
	mean := make([]float64, len(sum))
	inv := 1.0 / float64(count)
	for i, v := range sum {
		mean[i] = v * inv
	}
	return mean
}

func addInPlace(dst, src []float64) {
	n := len(dst)
	if len(src) < n {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		dst[i] += src[i]
	}
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// cosineSimilarity64 косинусная близость двух векторов. Для векторов
// разной размерности или с нулевой нормой возвращает 0
func cosineSimilarity64(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
