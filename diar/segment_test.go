package diar

import (
	"errors"
	"testing"
)

func TestMergeCloseJoinsWithinCollar(t *testing.T) {
	intervals := []Interval{
		{StartMs: 0, EndMs: 2000, RunTag: "a"},
		{StartMs: 2100, EndMs: 4000, RunTag: "a"},
	}

	merged, err := MergeClose(intervals, 200)
	if err != nil {
		t.Fatalf("MergeClose вернул ошибку: %v", err)
	}
	if len(merged) != 1 {
		t.Fatalf("ожидался 1 интервал, получено %d", len(merged))
	}
	if merged[0].StartMs != 0 || merged[0].EndMs != 4000 {
		t.Errorf("неверные границы склейки: [%d, %d]", merged[0].StartMs, merged[0].EndMs)
	}
}

func TestMergeCloseKeepsSeparateBeyondCollar(t *testing.T) {
	intervals := []Interval{
		{StartMs: 0, EndMs: 2000, RunTag: "a"},
		{StartMs: 2100, EndMs: 4000, RunTag: "a"},
	}

	merged, err := MergeClose(intervals, 50)
	if err != nil {
		t.Fatalf("MergeClose вернул ошибку: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("ожидалось 2 интервала, получено %d", len(merged))
	}
}

func TestMergeCloseDifferentTagsNeverJoin(t *testing.T) {
	intervals := []Interval{
		{StartMs: 0, EndMs: 1000, RunTag: "a"},
		{StartMs: 1050, EndMs: 2000, RunTag: "b"},
	}

	merged, err := MergeClose(intervals, 500)
	if err != nil {
		t.Fatalf("MergeClose вернул ошибку: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("интервалы разных голосов склеились: %+v", merged)
	}
}

func TestMergeCloseOutputNeverOverlaps(t *testing.T) {
	// перекрытие между разными голосами должно подрезаться
	intervals := []Interval{
		{StartMs: 0, EndMs: 1500, RunTag: "a"},
		{StartMs: 1200, EndMs: 2500, RunTag: "b"},
		{StartMs: 2400, EndMs: 2450, RunTag: "a"},
	}

	merged, err := MergeClose(intervals, 100)
	if err != nil {
		t.Fatalf("MergeClose вернул ошибку: %v", err)
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].StartMs < merged[i-1].EndMs {
			t.Errorf("интервалы %d и %d перекрываются: %+v", i-1, i, merged)
		}
	}
}

func TestMergeCloseRejectsInvalidIntervals(t *testing.T) {
	cases := [][]Interval{
		{{StartMs: 100, EndMs: 100}},
		{{StartMs: 200, EndMs: 100}},
		{{StartMs: 500, EndMs: 600}, {StartMs: 100, EndMs: 200}},
	}
	for i, intervals := range cases {
		if _, err := MergeClose(intervals, 100); !errors.Is(err, ErrInvalidInterval) {
			t.Errorf("случай %d: ожидался ErrInvalidInterval, получено %v", i, err)
		}
	}
}

func TestDropShortAfterMergeSavesChain(t *testing.T) {
	// цепочка коротких интервалов одного голоса выживает благодаря
	// склейке до отсева
	intervals := []Interval{
		{StartMs: 0, EndMs: 150, RunTag: "a"},
		{StartMs: 200, EndMs: 350, RunTag: "a"},
		{StartMs: 400, EndMs: 550, RunTag: "a"},
		{StartMs: 5000, EndMs: 5100, RunTag: "b"},
	}

	segments, err := BuildSegments(intervals, BuilderConfig{CollarMs: 100, MinSpeechMs: 400})
	if err != nil {
		t.Fatalf("BuildSegments вернул ошибку: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("ожидался 1 сегмент, получено %d: %+v", len(segments), segments)
	}
	if segments[0].StartMs != 0 || segments[0].EndMs != 550 {
		t.Errorf("неверные границы сегмента: [%d, %d]", segments[0].StartMs, segments[0].EndMs)
	}
}

func TestBuildSegmentsEmptyInput(t *testing.T) {
	segments, err := BuildSegments(nil, DefaultBuilderConfig())
	if err != nil {
		t.Fatalf("пустой вход не должен давать ошибку: %v", err)
	}
	if len(segments) != 0 {
		t.Errorf("ожидался пустой результат, получено %+v", segments)
	}
}

func TestDropShortAllFiltered(t *testing.T) {
	intervals := []Interval{
		{StartMs: 0, EndMs: 100, RunTag: "a"},
		{StartMs: 1000, EndMs: 1200, RunTag: "b"},
	}
	if out := DropShort(intervals, 500); out != nil {
		t.Errorf("ожидался nil, получено %+v", out)
	}
}

func TestDropShortDoesNotMutateInput(t *testing.T) {
	intervals := []Interval{
		{StartMs: 0, EndMs: 100, RunTag: "a"},
		{StartMs: 1000, EndMs: 2000, RunTag: "b"},
		{StartMs: 3000, EndMs: 3100, RunTag: "a"},
	}
	original := append([]Interval(nil), intervals...)

	out := DropShort(intervals, 500)
	if len(out) != 1 || out[0].StartMs != 1000 {
		t.Fatalf("ожидался один интервал 1000-2000, получено %+v", out)
	}
	for i := range intervals {
		if intervals[i] != original[i] {
			t.Errorf("входной слайс изменился: %+v vs %+v", intervals[i], original[i])
		}
	}
}
