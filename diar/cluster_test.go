package diar

import "testing"

func TestClustererSameVoiceSameCluster(t *testing.T) {
	c := NewClusterer(0.75)
	emb := []float32{0.6, 0.8, 0}

	first := c.Assign(emb)
	for i := 0; i < 5; i++ {
		if id := c.Assign(emb); id != first {
			t.Fatalf("повтор эмбеддинга попал в кластер %d вместо %d", id, first)
		}
	}
	if c.Len() != 1 {
		t.Errorf("ожидался 1 кластер, получено %d", c.Len())
	}
}

func TestClustererDistinctVoicesOpenClusters(t *testing.T) {
	c := NewClusterer(0.75)

	a := c.Assign([]float32{1, 0, 0})
	b := c.Assign([]float32{0, 1, 0})
	if a == b {
		t.Fatalf("ортогональные эмбеддинги попали в один кластер %d", a)
	}
	if c.Len() != 2 {
		t.Errorf("ожидалось 2 кластера, получено %d", c.Len())
	}
}

func TestClustererCentroidIsRunningMean(t *testing.T) {
	c := NewClusterer(0.75)

	c.Assign([]float32{1, 0.1, 0})
	c.Assign([]float32{1, -0.1, 0})
	// центроид усреднился к (1, 0, 0); близкий к нему вектор должен
	// вернуться в тот же кластер
	if id := c.Assign([]float32{1, 0, 0}); id != 0 {
		t.Errorf("эмбеддинг у центроида попал в кластер %d", id)
	}
	if c.Len() != 1 {
		t.Errorf("ожидался 1 кластер, получено %d", c.Len())
	}
}

func TestClustererTieGoesToLowestID(t *testing.T) {
	c := NewClusterer(0.7)

	// два кластера, симметричных относительно запроса
	c.Assign([]float32{1, 0.5, 0})
	c.Assign([]float32{1, -0.5, 0})
	if id := c.Assign([]float32{1, 0, 0}); id != 0 {
		t.Errorf("при равной близости ожидался кластер 0, получен %d", id)
	}
}

func TestClustererZeroVectorUnassigned(t *testing.T) {
	c := NewClusterer(0.75)
	c.Assign([]float32{1, 0, 0})

	// нулевая норма — сигнал непригодного аудио: кластер не открывается,
	// и повтор того же входа не плодит новые кластеры
	if id := c.Assign([]float32{0, 0, 0}); id != -1 {
		t.Errorf("нулевой вектор должен вернуть -1, получен %d", id)
	}
	if id := c.Assign([]float32{0, 0, 0}); id != -1 {
		t.Errorf("повторный нулевой вектор должен вернуть -1, получен %d", id)
	}
	if c.Len() != 1 {
		t.Errorf("нулевые вектора не должны менять число кластеров: %d", c.Len())
	}

	// обычные эмбеддинги после этого кластеризуются как прежде
	if id := c.Assign([]float32{1, 0, 0}); id != 0 {
		t.Errorf("эмбеддинг у центроида попал в кластер %d", id)
	}
}

func TestSpeakerLabelsFirstSeenOrder(t *testing.T) {
	labels := SpeakerLabels([]int{2, 0, 2, 1, 0})

	want := map[int]string{2: "spk1", 0: "spk2", 1: "spk3"}
	for id, label := range want {
		if labels[id] != label {
			t.Errorf("кластер %d: ожидалась метка %q, получена %q", id, label, labels[id])
		}
	}
}
