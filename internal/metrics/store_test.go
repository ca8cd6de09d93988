package metrics

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ag-botkit/ringstore"
	"github.com/ag-botkit/ringstore/internal/errors"
)

func TestStore_New(t *testing.T) {
	s, err := New(100)
	if err != nil {
		t.Fatalf("New(100): %v", err)
	}
	if s == nil {
		t.Fatal("expected store")
	}

	for _, capacity := range []int{0, -1} {
		_, err := New(capacity)
		if !errors.Is(err, ringstore.ErrInvalidCapacity) {
			t.Errorf("New(%d): expected ErrInvalidCapacity, got %v", capacity, err)
		}
	}
}

func TestStore_AppendAndLast(t *testing.T) {
	s, _ := New(100)

	p := Point{
		Timestamp: time.Now().UnixMilli(),
		Type:      TypeGauge,
		Name:      "test.metric",
		Value:     42.0,
		Labels:    map[string]string{"key": "value"},
	}

	if err := s.Append(p); err != nil {
		t.Fatalf("Append: %v", err)
	}

	points := s.Last("test.metric", 1)
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}

	got := points[0]
	if got.Value != 42.0 {
		t.Errorf("expected value 42.0, got %f", got.Value)
	}
	if got.Type != TypeGauge {
		t.Errorf("expected type gauge, got %q", got.Type)
	}
	if got.Name != "test.metric" {
		t.Errorf("expected name test.metric, got %q", got.Name)
	}
	if got.Labels["key"] != "value" {
		t.Errorf("expected labels to round-trip, got %v", got.Labels)
	}
}

func TestStore_AppendInvalidName(t *testing.T) {
	s, _ := New(100)

	for _, name := range []string{"", "bad/name", ".hidden", "a\x00b"} {
		err := s.Append(Point{Timestamp: 1000, Name: name, Value: 1})
		if !errors.Is(err, errors.ErrInvalidName) {
			t.Errorf("Append(name=%q): expected ErrInvalidName, got %v", name, err)
		}
	}

	if names := s.Names(); len(names) != 0 {
		t.Errorf("rejected appends must not create series, got %v", names)
	}
	if st := s.Stats(); st.Rejected != 4 {
		t.Errorf("expected rejected=4, got %d", st.Rejected)
	}
}

func TestStore_AppendInvalidType(t *testing.T) {
	s, _ := New(100)

	err := s.Append(Point{Timestamp: 1000, Name: "cpu", Type: "timer", Value: 1})
	if !errors.Is(err, errors.ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}

	// Empty type is accepted.
	if err := s.Append(Point{Timestamp: 1000, Name: "cpu", Value: 1}); err != nil {
		t.Errorf("empty type should be accepted: %v", err)
	}
}

func TestStore_TypePinning(t *testing.T) {
	s, _ := New(100)

	// Untyped first, then the first non-empty type pins the series.
	if err := s.Append(Point{Timestamp: 1000, Name: "cpu", Value: 1}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(Point{Timestamp: 2000, Name: "cpu", Type: TypeGauge, Value: 2}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	err := s.Append(Point{Timestamp: 3000, Name: "cpu", Type: TypeCounter, Value: 3})
	if !errors.Is(err, errors.ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}

	// Same type keeps working.
	if err := s.Append(Point{Timestamp: 4000, Name: "cpu", Type: TypeGauge, Value: 4}); err != nil {
		t.Errorf("same type should be accepted: %v", err)
	}

	info, ok := s.Info("cpu")
	if !ok || info.Type != TypeGauge {
		t.Errorf("expected pinned type gauge, got %+v ok=%v", info, ok)
	}
}

func TestStore_LabelsFollowLatest(t *testing.T) {
	s, _ := New(100)

	s.Append(Point{Timestamp: 1000, Name: "mem", Value: 1, Labels: map[string]string{"host": "a"}})
	s.Append(Point{Timestamp: 2000, Name: "mem", Value: 2, Labels: map[string]string{"host": "b"}})

	points := s.Last("mem", 2)
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	// Labels are series-level: the latest set applies to all returned points.
	for _, p := range points {
		if p.Labels["host"] != "b" {
			t.Errorf("expected latest labels on all points, got %v", p.Labels)
		}
	}
}

func TestStore_MultipleSeries(t *testing.T) {
	s, _ := New(100)

	s.Append(Point{Timestamp: 1000, Name: "metric.one", Value: 10.0})
	s.Append(Point{Timestamp: 2000, Name: "metric.two", Value: 20.0})

	names := s.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 series, got %d", len(names))
	}
	if names[0] != "metric.one" || names[1] != "metric.two" {
		t.Errorf("expected sorted names, got %v", names)
	}

	p1 := s.Last("metric.one", 10)
	p2 := s.Last("metric.two", 10)
	if len(p1) != 1 || len(p2) != 1 {
		t.Fatalf("expected 1 point for each series, got %d and %d", len(p1), len(p2))
	}
	if p1[0].Value != 10.0 || p2[0].Value != 20.0 {
		t.Errorf("series values mixed up: %f / %f", p1[0].Value, p2[0].Value)
	}
}

func TestStore_Eviction(t *testing.T) {
	s, _ := New(3)

	for i := 1; i <= 5; i++ {
		s.Append(Point{Timestamp: int64(i * 1000), Name: "evict", Value: float64(i)})
	}

	points := s.Last("evict", 10)
	if len(points) != 3 {
		t.Fatalf("expected 3 surviving points, got %d", len(points))
	}
	if points[0].Timestamp != 5000 || points[2].Timestamp != 3000 {
		t.Errorf("expected newest 5000 .. oldest 3000, got %d .. %d",
			points[0].Timestamp, points[2].Timestamp)
	}
}

func TestStore_Range(t *testing.T) {
	s, _ := New(10)

	for i := 1; i <= 5; i++ {
		s.Append(Point{Timestamp: int64(i * 1000), Name: "r", Value: float64(i * 10)})
	}

	points := s.Range("r", 2000, 4000, 0)
	if len(points) != 3 {
		t.Fatalf("expected 3 points in range, got %d", len(points))
	}
	for i, p := range points {
		want := int64((i + 2) * 1000)
		if p.Timestamp != want {
			t.Errorf("point %d: expected timestamp %d, got %d", i, want, p.Timestamp)
		}
	}

	// A positive limit truncates from the front (chronological).
	points = s.Range("r", 0, 10000, 2)
	if len(points) != 2 {
		t.Fatalf("expected 2 limited points, got %d", len(points))
	}
	if points[0].Timestamp != 1000 || points[1].Timestamp != 2000 {
		t.Errorf("expected 1000,2000, got %d,%d", points[0].Timestamp, points[1].Timestamp)
	}

	// limit <= 0 means no limit.
	if got := len(s.Range("r", 0, 10000, -1)); got != 5 {
		t.Errorf("expected 5 points with limit=-1, got %d", got)
	}
}

func TestStore_UnknownSeries(t *testing.T) {
	s, _ := New(100)

	if points := s.Last("nope", 10); len(points) != 0 {
		t.Errorf("expected no points for unknown series, got %d", len(points))
	}
	if points := s.Range("nope", 0, 10000, 0); len(points) != 0 {
		t.Errorf("expected no range points for unknown series, got %d", len(points))
	}
	if _, ok := s.Info("nope"); ok {
		t.Error("expected ok=false for unknown series")
	}
}

func TestStore_LastNonPositiveN(t *testing.T) {
	s, _ := New(100)
	s.Append(Point{Timestamp: 1000, Name: "x", Value: 1})

	if points := s.Last("x", 0); points != nil {
		t.Errorf("expected nil for n=0, got %v", points)
	}
	if points := s.Last("x", -5); points != nil {
		t.Errorf("expected nil for n=-5, got %v", points)
	}
}

func TestStore_Recent(t *testing.T) {
	s, _ := New(100)

	now := time.Now().UnixMilli()

	s.Append(Point{Timestamp: now - 120000, Name: "old.metric", Value: 100.0})
	s.Append(Point{Timestamp: now - 30000, Name: "recent.metric", Value: 200.0})

	recent := s.Recent(60 * time.Second)

	if _, ok := recent["recent.metric"]; !ok {
		t.Error("expected recent.metric in results")
	}
	if _, ok := recent["old.metric"]; ok {
		t.Error("expected old.metric to be omitted")
	}
}

func TestStore_InfoAndDescribe(t *testing.T) {
	s, _ := New(3)

	for i := 1; i <= 5; i++ {
		s.Append(Point{Timestamp: int64(i * 1000), Name: "b.series", Type: TypeCounter, Value: float64(i)})
	}
	s.Append(Point{Timestamp: 500, Name: "a.series", Value: 1})

	info, ok := s.Info("b.series")
	if !ok {
		t.Fatal("expected info for b.series")
	}
	if info.Count != 3 || info.Capacity != 3 {
		t.Errorf("expected count=3 capacity=3, got %d/%d", info.Count, info.Capacity)
	}
	if info.OldestMs != 3000 || info.NewestMs != 5000 {
		t.Errorf("expected oldest=3000 newest=5000, got %d/%d", info.OldestMs, info.NewestMs)
	}
	if info.Type != TypeCounter {
		t.Errorf("expected type counter, got %q", info.Type)
	}
	if info.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	infos := s.Describe()
	if len(infos) != 2 {
		t.Fatalf("expected 2 series, got %d", len(infos))
	}
	if infos[0].Name != "a.series" || infos[1].Name != "b.series" {
		t.Errorf("expected describe sorted by name, got %s, %s", infos[0].Name, infos[1].Name)
	}
}

func TestStore_Stats(t *testing.T) {
	s, _ := New(2)

	s.Append(Point{Timestamp: 1000, Name: "a", Value: 1})
	s.Append(Point{Timestamp: 2000, Name: "a", Value: 2})
	s.Append(Point{Timestamp: 3000, Name: "a", Value: 3}) // evicts, still an append
	s.Append(Point{Timestamp: 1000, Name: "b", Value: 1})
	s.Append(Point{Timestamp: 1000, Name: "bad/name", Value: 1}) // rejected

	st := s.Stats()
	if st.Series != 2 {
		t.Errorf("expected 2 series, got %d", st.Series)
	}
	if st.Points != 3 { // a holds 2 (capacity), b holds 1
		t.Errorf("expected 3 live points, got %d", st.Points)
	}
	if st.Appends != 4 {
		t.Errorf("expected 4 appends, got %d", st.Appends)
	}
	if st.Rejected != 1 {
		t.Errorf("expected 1 rejected, got %d", st.Rejected)
	}
	if st.SeriesCreated != 2 {
		t.Errorf("expected 2 series created, got %d", st.SeriesCreated)
	}
}

func TestStore_Close(t *testing.T) {
	s, _ := New(100)
	s.Append(Point{Timestamp: 1000, Name: "x", Value: 1})

	s.Close()

	if err := s.Append(Point{Timestamp: 2000, Name: "x", Value: 2}); !errors.Is(err, errors.ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
	if points := s.Last("x", 1); len(points) != 0 {
		t.Errorf("expected no points after close, got %d", len(points))
	}
	if names := s.Names(); len(names) != 0 {
		t.Errorf("expected no names after close, got %v", names)
	}
	if st := s.Stats(); st.Series != 0 || st.Points != 0 {
		t.Errorf("expected empty stats after close, got %+v", st)
	}

	// Idempotent.
	s.Close()
}

func TestStore_ConcurrentAppendQuery(t *testing.T) {
	const (
		writers   = 8
		perWriter = 200
		capacity  = 100
	)

	s, _ := New(capacity)

	var wg sync.WaitGroup
	start := time.Now().UnixMilli()

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			name := fmt.Sprintf("series-%d", w)
			for i := 0; i < perWriter; i++ {
				s.Append(Point{
					Timestamp: start + int64(i),
					Name:      name,
					Type:      TypeGauge,
					Value:     float64(i),
				})
			}
		}(w)
	}

	// Readers run against the writers.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Names()
				s.Last("series-0", 10)
				s.Range("series-1", start, start+int64(perWriter), 0)
				s.Recent(time.Minute)
				s.Stats()
			}
		}()
	}

	wg.Wait()

	st := s.Stats()
	if st.Series != writers {
		t.Errorf("expected %d series, got %d", writers, st.Series)
	}
	if st.Appends != writers*perWriter {
		t.Errorf("expected %d appends, got %d", writers*perWriter, st.Appends)
	}
	if st.Points != writers*capacity {
		t.Errorf("expected %d live points, got %d", writers*capacity, st.Points)
	}

	for w := 0; w < writers; w++ {
		points := s.Last(fmt.Sprintf("series-%d", w), capacity)
		if len(points) != capacity {
			t.Errorf("series-%d: expected %d points, got %d", w, capacity, len(points))
		}
	}
}

func BenchmarkStore_Append(b *testing.B) {
	s, _ := New(1000)
	p := Point{Timestamp: 1000, Name: "bench.metric", Type: TypeGauge, Value: 42.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Append(p)
	}
}

func BenchmarkStore_Last(b *testing.B) {
	s, _ := New(1000)
	for i := 0; i < 1000; i++ {
		s.Append(Point{Timestamp: int64(i), Name: "bench.metric", Value: float64(i)})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Last("bench.metric", 100)
	}
}
