package ringstore

import (
	"errors"
	"math"
	"testing"
)

func TestRing_New(t *testing.T) {
	r, err := New(100)
	if err != nil {
		t.Fatalf("New(100) failed: %v", err)
	}
	if r.Cap() != 100 {
		t.Errorf("expected cap=100, got %d", r.Cap())
	}
	if r.Len() != 0 {
		t.Errorf("expected len=0, got %d", r.Len())
	}
}

func TestRing_NewInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -1000} {
		r, err := New(capacity)
		if err == nil {
			t.Errorf("New(%d) should fail", capacity)
		}
		if !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("New(%d): expected ErrInvalidCapacity, got %v", capacity, err)
		}
		if r != nil {
			t.Errorf("New(%d) should not produce a ring", capacity)
		}
	}
}

func TestRing_NilSafety(t *testing.T) {
	var r *Ring

	if err := r.Append(1000, 42.5); !errors.Is(err, ErrNilRing) {
		t.Errorf("Append on nil ring: expected ErrNilRing, got %v", err)
	}

	dst := make([]Sample, 5)
	if n := r.Last(dst); n != 0 {
		t.Errorf("Last on nil ring: expected 0, got %d", n)
	}
	if n := r.Range(0, 1000, dst); n != 0 {
		t.Errorf("Range on nil ring: expected 0, got %d", n)
	}
	if r.Len() != 0 {
		t.Errorf("Len on nil ring: expected 0, got %d", r.Len())
	}
	if r.Cap() != 0 {
		t.Errorf("Cap on nil ring: expected 0, got %d", r.Cap())
	}

	// Must not panic.
	r.Clear()
	r.Close()
}

func TestRing_AppendSingle(t *testing.T) {
	r, _ := New(10)

	if err := r.Append(1000, 42.5); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("expected len=1, got %d", r.Len())
	}

	dst := make([]Sample, 1)
	if n := r.Last(dst); n != 1 {
		t.Fatalf("expected 1 sample, got %d", n)
	}
	if dst[0].TimestampMs != 1000 || dst[0].Value != 42.5 {
		t.Errorf("expected (1000, 42.5), got (%d, %v)", dst[0].TimestampMs, dst[0].Value)
	}
}

func TestRing_AppendBelowCapacity(t *testing.T) {
	r, _ := New(5)

	for i := 0; i < 3; i++ {
		if err := r.Append(int64(1000+i), 10.0+float64(i)); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}

	if r.Len() != 3 {
		t.Errorf("expected len=3, got %d", r.Len())
	}
	if r.Cap() != 5 {
		t.Errorf("expected cap=5, got %d", r.Cap())
	}
}

func TestRing_Wraparound(t *testing.T) {
	r, _ := New(3)

	// Fill, then overwrite the two oldest.
	r.Append(1000, 1.0)
	r.Append(2000, 2.0)
	r.Append(3000, 3.0)
	if r.Len() != 3 {
		t.Fatalf("expected len=3 after fill, got %d", r.Len())
	}

	r.Append(4000, 4.0)
	if r.Len() != 3 {
		t.Errorf("len should stay at capacity, got %d", r.Len())
	}
	r.Append(5000, 5.0)

	dst := make([]Sample, 3)
	n := r.Last(dst)
	if n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}

	want := []Sample{{5000, 5.0}, {4000, 4.0}, {3000, 3.0}}
	for i, w := range want {
		if dst[i] != w {
			t.Errorf("sample %d: expected (%d, %v), got (%d, %v)",
				i, w.TimestampMs, w.Value, dst[i].TimestampMs, dst[i].Value)
		}
	}
}

func TestRing_LastEmpty(t *testing.T) {
	r, _ := New(10)

	dst := make([]Sample, 5)
	if n := r.Last(dst); n != 0 {
		t.Errorf("Last on empty ring: expected 0, got %d", n)
	}
	if n := r.Range(0, 100, dst); n != 0 {
		t.Errorf("Range on empty ring: expected 0, got %d", n)
	}
}

func TestRing_LastFewerThanRequested(t *testing.T) {
	r, _ := New(10)

	r.Append(1000, 1.0)
	r.Append(2000, 2.0)

	dst := make([]Sample, 5)
	n := r.Last(dst)
	if n != 2 {
		t.Fatalf("expected 2 samples, got %d", n)
	}
	if dst[0].TimestampMs != 2000 || dst[1].TimestampMs != 1000 {
		t.Errorf("expected newest first [2000 1000], got [%d %d]",
			dst[0].TimestampMs, dst[1].TimestampMs)
	}
}

func TestRing_LastExactCapacity(t *testing.T) {
	r, _ := New(3)

	r.Append(1000, 1.0)
	r.Append(2000, 2.0)
	r.Append(3000, 3.0)

	dst := make([]Sample, 3)
	if n := r.Last(dst); n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}
	for i, want := range []int64{3000, 2000, 1000} {
		if dst[i].TimestampMs != want {
			t.Errorf("sample %d: expected ts=%d, got %d", i, want, dst[i].TimestampMs)
		}
	}
}

func TestRing_ZeroLengthDst(t *testing.T) {
	r, _ := New(10)
	r.Append(1000, 1.0)

	if n := r.Last(nil); n != 0 {
		t.Errorf("Last with nil dst: expected 0, got %d", n)
	}
	if n := r.Last([]Sample{}); n != 0 {
		t.Errorf("Last with empty dst: expected 0, got %d", n)
	}
	if n := r.Range(1000, 2000, nil); n != 0 {
		t.Errorf("Range with nil dst: expected 0, got %d", n)
	}
}

func TestRing_RangeBasic(t *testing.T) {
	r, _ := New(10)

	for i := 1; i <= 5; i++ {
		r.Append(int64(i*1000), float64(i))
	}

	dst := make([]Sample, 10)
	n := r.Range(2000, 4000, dst)
	if n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}

	want := []Sample{{2000, 2.0}, {3000, 3.0}, {4000, 4.0}}
	for i, w := range want {
		if dst[i] != w {
			t.Errorf("sample %d: expected (%d, %v), got (%d, %v)",
				i, w.TimestampMs, w.Value, dst[i].TimestampMs, dst[i].Value)
		}
	}
}

func TestRing_RangeInverted(t *testing.T) {
	r, _ := New(10)
	r.Append(1000, 1.0)

	dst := make([]Sample, 10)
	if n := r.Range(5000, 1000, dst); n != 0 {
		t.Errorf("inverted range: expected 0, got %d", n)
	}
}

func TestRing_RangeNoMatches(t *testing.T) {
	r, _ := New(10)
	r.Append(1000, 1.0)
	r.Append(2000, 2.0)

	dst := make([]Sample, 10)
	if n := r.Range(5000, 6000, dst); n != 0 {
		t.Errorf("expected 0 matches, got %d", n)
	}
}

func TestRing_RangeWraparound(t *testing.T) {
	r, _ := New(3)

	// 1000 and 2000 are overwritten; survivors are 3000, 4000, 5000.
	for i := 1; i <= 5; i++ {
		r.Append(int64(i*1000), float64(i))
	}

	dst := make([]Sample, 10)
	n := r.Range(3500, 5000, dst)
	if n != 2 {
		t.Fatalf("expected 2 samples, got %d", n)
	}
	if dst[0].TimestampMs != 4000 || dst[0].Value != 4.0 {
		t.Errorf("expected (4000, 4.0), got (%d, %v)", dst[0].TimestampMs, dst[0].Value)
	}
	if dst[1].TimestampMs != 5000 || dst[1].Value != 5.0 {
		t.Errorf("expected (5000, 5.0), got (%d, %v)", dst[1].TimestampMs, dst[1].Value)
	}
}

func TestRing_RangeTruncatesAtDst(t *testing.T) {
	r, _ := New(10)

	for i := 0; i < 10; i++ {
		r.Append(int64(1000+i*100), float64(i))
	}

	// All ten stored timestamps fall in [1000, 2000] but dst holds only
	// 3; the first three in chronological order win, the rest are dropped
	// silently.
	dst := make([]Sample, 3)
	n := r.Range(1000, 2000, dst)
	if n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}
	for i, want := range []int64{1000, 1100, 1200} {
		if dst[i].TimestampMs != want {
			t.Errorf("sample %d: expected ts=%d, got %d", i, want, dst[i].TimestampMs)
		}
	}
}

func TestRing_RangeInclusiveBounds(t *testing.T) {
	r, _ := New(5)
	r.Append(1000, 1.0)
	r.Append(2000, 2.0)
	r.Append(3000, 3.0)

	dst := make([]Sample, 5)
	if n := r.Range(1000, 3000, dst); n != 3 {
		t.Errorf("bounds are inclusive: expected 3, got %d", n)
	}
	if n := r.Range(1001, 2999, dst); n != 1 {
		t.Errorf("expected 1 sample strictly inside, got %d", n)
	}
	if n := r.Range(2000, 2000, dst); n != 1 {
		t.Errorf("single-point range: expected 1, got %d", n)
	}
}

func TestRing_CapacityOne(t *testing.T) {
	r, _ := New(1)

	r.Append(1000, 1.0)
	if r.Len() != 1 {
		t.Errorf("expected len=1, got %d", r.Len())
	}

	r.Append(2000, 2.0)
	if r.Len() != 1 {
		t.Errorf("expected len=1 after overwrite, got %d", r.Len())
	}

	dst := make([]Sample, 1)
	if n := r.Last(dst); n != 1 {
		t.Fatalf("expected 1 sample, got %d", n)
	}
	if dst[0].TimestampMs != 2000 || dst[0].Value != 2.0 {
		t.Errorf("expected (2000, 2.0), got (%d, %v)", dst[0].TimestampMs, dst[0].Value)
	}
}

func TestRing_NegativeTimestamps(t *testing.T) {
	r, _ := New(5)

	r.Append(-1000, 1.0)
	r.Append(0, 2.0)
	r.Append(1000, 3.0)

	dst := make([]Sample, 3)
	n := r.Range(-1000, 0, dst)
	if n != 2 {
		t.Fatalf("expected 2 samples, got %d", n)
	}
	if dst[0].TimestampMs != -1000 || dst[1].TimestampMs != 0 {
		t.Errorf("expected [-1000 0], got [%d %d]", dst[0].TimestampMs, dst[1].TimestampMs)
	}
}

func TestRing_OutOfOrderTimestamps(t *testing.T) {
	r, _ := New(5)

	// No ordering is enforced; Range walks storage order, not timestamp
	// order.
	r.Append(3000, 3.0)
	r.Append(1000, 1.0)
	r.Append(2000, 2.0)

	dst := make([]Sample, 5)
	n := r.Range(500, 5000, dst)
	if n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}
	for i, want := range []int64{3000, 1000, 2000} {
		if dst[i].TimestampMs != want {
			t.Errorf("sample %d: expected ts=%d (insertion order), got %d", i, want, dst[i].TimestampMs)
		}
	}
}

func TestRing_NonFiniteValues(t *testing.T) {
	r, _ := New(3)

	r.Append(1000, math.NaN())
	r.Append(2000, math.Inf(1))
	r.Append(3000, math.Inf(-1))

	dst := make([]Sample, 3)
	if n := r.Last(dst); n != 3 {
		t.Fatalf("expected 3 samples, got %d", n)
	}
	if !math.IsInf(dst[0].Value, -1) {
		t.Errorf("expected -Inf, got %v", dst[0].Value)
	}
	if !math.IsInf(dst[1].Value, 1) {
		t.Errorf("expected +Inf, got %v", dst[1].Value)
	}
	if !math.IsNaN(dst[2].Value) {
		t.Errorf("expected NaN, got %v", dst[2].Value)
	}
}

func TestRing_LargeCapacity(t *testing.T) {
	r, _ := New(10000)

	for i := 0; i < 5000; i++ {
		r.Append(int64(i), float64(i)*0.5)
	}
	if r.Len() != 5000 {
		t.Errorf("expected len=5000, got %d", r.Len())
	}
	if r.Cap() != 10000 {
		t.Errorf("expected cap=10000, got %d", r.Cap())
	}
}

func TestRing_StressMultipleWraps(t *testing.T) {
	r, _ := New(5)

	// 20 appends wrap the ring four times.
	for i := 0; i < 20; i++ {
		r.Append(int64(i*100), float64(i))
	}

	if r.Len() != 5 {
		t.Fatalf("expected len=5, got %d", r.Len())
	}

	// Survivors are exactly the last five, in insertion order.
	dst := make([]Sample, 5)
	n := r.Range(math.MinInt64, math.MaxInt64, dst)
	if n != 5 {
		t.Fatalf("expected 5 samples, got %d", n)
	}
	for i := 0; i < 5; i++ {
		wantTs := int64((15 + i) * 100)
		if dst[i].TimestampMs != wantTs {
			t.Errorf("sample %d: expected ts=%d, got %d", i, wantTs, dst[i].TimestampMs)
		}
	}

	// Newest first: 1900 down to 1500.
	n = r.Last(dst)
	if n != 5 {
		t.Fatalf("expected 5 samples, got %d", n)
	}
	if dst[0].TimestampMs != 1900 || dst[0].Value != 19.0 {
		t.Errorf("expected newest (1900, 19.0), got (%d, %v)", dst[0].TimestampMs, dst[0].Value)
	}
	if dst[4].TimestampMs != 1500 || dst[4].Value != 15.0 {
		t.Errorf("expected oldest (1500, 15.0), got (%d, %v)", dst[4].TimestampMs, dst[4].Value)
	}
}

func TestRing_ReadsAreIdempotent(t *testing.T) {
	r, _ := New(4)
	for i := 1; i <= 6; i++ {
		r.Append(int64(i*1000), float64(i))
	}

	a := make([]Sample, 4)
	b := make([]Sample, 4)

	na := r.Last(a)
	nb := r.Last(b)
	if na != nb {
		t.Fatalf("repeated Last disagree on count: %d vs %d", na, nb)
	}
	for i := 0; i < na; i++ {
		if a[i] != b[i] {
			t.Errorf("repeated Last disagree at %d: %+v vs %+v", i, a[i], b[i])
		}
	}

	na = r.Range(3000, 6000, a)
	nb = r.Range(3000, 6000, b)
	if na != nb {
		t.Fatalf("repeated Range disagree on count: %d vs %d", na, nb)
	}
	for i := 0; i < na; i++ {
		if a[i] != b[i] {
			t.Errorf("repeated Range disagree at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRing_Clear(t *testing.T) {
	r, _ := New(5)
	for i := 1; i <= 7; i++ {
		r.Append(int64(i*1000), float64(i))
	}

	r.Clear()

	if r.Len() != 0 {
		t.Errorf("expected len=0 after clear, got %d", r.Len())
	}
	if r.Cap() != 5 {
		t.Errorf("clear should keep capacity, got %d", r.Cap())
	}

	dst := make([]Sample, 5)
	if n := r.Last(dst); n != 0 {
		t.Errorf("expected 0 samples after clear, got %d", n)
	}

	// Ring is reusable after Clear.
	if err := r.Append(9000, 9.0); err != nil {
		t.Fatalf("append after clear failed: %v", err)
	}
	if n := r.Last(dst); n != 1 || dst[0].TimestampMs != 9000 {
		t.Errorf("expected single sample ts=9000 after clear+append, got n=%d", n)
	}
}

func TestRing_Close(t *testing.T) {
	r, _ := New(5)
	r.Append(1000, 1.0)

	r.Close()

	if r.Len() != 0 {
		t.Errorf("expected len=0 after close, got %d", r.Len())
	}
	if r.Cap() != 0 {
		t.Errorf("expected cap=0 after close, got %d", r.Cap())
	}

	dst := make([]Sample, 5)
	if n := r.Last(dst); n != 0 {
		t.Errorf("expected 0 samples after close, got %d", n)
	}
	if err := r.Append(2000, 2.0); !errors.Is(err, ErrNilRing) {
		t.Errorf("append after close: expected ErrNilRing, got %v", err)
	}

	// Idempotent.
	r.Close()
}

func TestRing_QueriesDoNotAllocate(t *testing.T) {
	r, _ := New(1000)
	for i := 0; i < 1500; i++ {
		r.Append(int64(i), float64(i))
	}
	dst := make([]Sample, 100)

	allocs := testing.AllocsPerRun(100, func() {
		r.Last(dst)
	})
	if allocs != 0 {
		t.Errorf("Last allocated %v times per run", allocs)
	}

	allocs = testing.AllocsPerRun(100, func() {
		r.Range(200, 900, dst)
	})
	if allocs != 0 {
		t.Errorf("Range allocated %v times per run", allocs)
	}

	allocs = testing.AllocsPerRun(100, func() {
		r.Append(42, 42.0)
	})
	if allocs != 0 {
		t.Errorf("Append allocated %v times per run", allocs)
	}
}

func BenchmarkRing_Append(b *testing.B) {
	r, _ := New(100000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Append(int64(i), float64(i))
	}
}

func BenchmarkRing_Last(b *testing.B) {
	r, _ := New(10000)
	for i := 0; i < 10000; i++ {
		r.Append(int64(i), float64(i))
	}
	dst := make([]Sample, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Last(dst)
	}
}

func BenchmarkRing_Range(b *testing.B) {
	r, _ := New(10000)
	for i := 0; i < 10000; i++ {
		r.Append(int64(i), float64(i))
	}
	dst := make([]Sample, 100)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.Range(2000, 8000, dst)
	}
}
