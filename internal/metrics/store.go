package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ag-botkit/ringstore"
	"github.com/ag-botkit/ringstore/internal/errors"
	"github.com/ag-botkit/ringstore/internal/logging"
	"github.com/ag-botkit/ringstore/internal/validation"
)

var log = logging.Component("metrics")

// Store holds one ring per series name behind an RWMutex.
type Store struct {
	mu       sync.RWMutex
	series   map[string]*series
	capacity int
	closed   bool

	stats storeStats
}

// storeStats holds the store's internal counters.
type storeStats struct {
	appends       atomic.Int64
	rejected      atomic.Int64
	seriesCreated atomic.Int64
}

// series bundles a ring with series-level metadata. Per-point labels
// collapse to the most recently seen label set.
type series struct {
	ring      *ringstore.Ring
	typ       string
	labels    map[string]string
	createdAt time.Time
}

// New creates a store whose series each hold up to capacity points.
// Capacity is validated here once so lazy ring creation cannot fail.
func New(capacity int) (*Store, error) {
	if capacity <= 0 {
		return nil, errors.Wrapf(ringstore.ErrInvalidCapacity, "store capacity %d", capacity)
	}
	return &Store{
		series:   make(map[string]*series),
		capacity: capacity,
	}, nil
}

// Append validates and stores one point, creating the series on first
// sight. The first non-empty metric type pins the series type; later
// appends with a different type are rejected.
func (s *Store) Append(p Point) error {
	if err := validation.ValidateSeriesName(p.Name); err != nil {
		s.stats.rejected.Add(1)
		return errors.Wrapf(errors.ErrInvalidName, "series %q: %v", p.Name, err)
	}
	if p.Type != "" && !ValidType(p.Type) {
		s.stats.rejected.Add(1)
		return errors.Wrapf(errors.ErrInvalidType, "%q", p.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.stats.rejected.Add(1)
		return errors.ErrStoreClosed
	}

	sr, ok := s.series[p.Name]
	if !ok {
		ring, err := ringstore.New(s.capacity)
		if err != nil {
			// Capacity was validated in New; this cannot happen.
			return err
		}
		sr = &series{ring: ring, createdAt: time.Now()}
		s.series[p.Name] = sr
		s.stats.seriesCreated.Add(1)
		log.Debug("series created", "name", p.Name, "capacity", s.capacity)
	}

	if p.Type != "" {
		if sr.typ == "" {
			sr.typ = p.Type
		} else if sr.typ != p.Type {
			s.stats.rejected.Add(1)
			return errors.Wrapf(errors.ErrTypeMismatch, "series %q is %s, got %s", p.Name, sr.typ, p.Type)
		}
	}
	if p.Labels != nil {
		sr.labels = p.Labels
	}

	if err := sr.ring.Append(p.Timestamp, p.Value); err != nil {
		return err
	}
	s.stats.appends.Add(1)
	return nil
}

// Last returns the newest n points of a series, newest first.
// Unknown series or n <= 0 yields nil.
func (s *Store) Last(name string, n int) []Point {
	if n <= 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[name]
	if !ok {
		return nil
	}

	if l := sr.ring.Len(); n > l {
		n = l
	}
	if n == 0 {
		return nil
	}

	dst := make([]ringstore.Sample, n)
	n = sr.ring.Last(dst)

	points := make([]Point, n)
	for i, smp := range dst[:n] {
		points[i] = sr.point(name, smp)
	}
	return points
}

// Range returns the points of a series with startMs <= timestamp <= endMs
// in chronological order. A limit <= 0 means no limit. Unknown series
// yields nil.
func (s *Store) Range(name string, startMs, endMs int64, limit int) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[name]
	if !ok {
		return nil
	}
	return rangeLocked(sr, name, startMs, endMs, limit)
}

// rangeLocked is the shared scan for Range and Recent. Callers hold at
// least a read lock.
func rangeLocked(sr *series, name string, startMs, endMs int64, limit int) []Point {
	max := sr.ring.Len()
	if limit > 0 && limit < max {
		max = limit
	}
	if max == 0 {
		return nil
	}

	dst := make([]ringstore.Sample, max)
	n := sr.ring.Range(startMs, endMs, dst)
	if n == 0 {
		return nil
	}

	points := make([]Point, n)
	for i, smp := range dst[:n] {
		points[i] = sr.point(name, smp)
	}
	return points
}

// Names returns all series names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info returns the description of one series.
func (s *Store) Info(name string) (SeriesInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.series[name]
	if !ok {
		return SeriesInfo{}, false
	}
	return sr.info(name), true
}

// Describe returns the description of every series, sorted by name.
func (s *Store) Describe() []SeriesInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]SeriesInfo, 0, len(s.series))
	for name, sr := range s.series {
		infos = append(infos, sr.info(name))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Recent returns, per series, the points from the trailing window.
// Series with no points in the window are omitted. This backs the
// dashboard backfill.
func (s *Store) Recent(window time.Duration) map[string][]Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	endMs := time.Now().UnixMilli()
	startMs := endMs - window.Milliseconds()

	result := make(map[string][]Point)
	for name, sr := range s.series {
		if points := rangeLocked(sr, name, startMs, endMs, 0); len(points) > 0 {
			result[name] = points
		}
	}
	return result
}

// Stats returns a snapshot of the store counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Series:        len(s.series),
		Appends:       s.stats.appends.Load(),
		Rejected:      s.stats.rejected.Load(),
		SeriesCreated: s.stats.seriesCreated.Load(),
	}
	for _, sr := range s.series {
		st.Points += sr.ring.Len()
	}
	return st
}

// Close releases every ring and empties the store. Further appends
// return ErrStoreClosed; queries return empty results. Idempotent.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for _, sr := range s.series {
		sr.ring.Close()
	}
	s.series = make(map[string]*series)
}

// point materializes a wire Point from a stored sample plus the series
// metadata.
func (sr *series) point(name string, smp ringstore.Sample) Point {
	return Point{
		Timestamp: smp.TimestampMs,
		Type:      sr.typ,
		Name:      name,
		Value:     smp.Value,
		Labels:    sr.labels,
	}
}

// info derives the series description. Oldest and newest come from
// 1-slot ring queries.
func (sr *series) info(name string) SeriesInfo {
	inf := SeriesInfo{
		Name:      name,
		Type:      sr.typ,
		Labels:    sr.labels,
		Count:     sr.ring.Len(),
		Capacity:  sr.ring.Cap(),
		CreatedAt: sr.createdAt,
	}

	var one [1]ringstore.Sample
	if sr.ring.Last(one[:]) == 1 {
		inf.NewestMs = one[0].TimestampMs
	}
	if sr.ring.Range(math.MinInt64, math.MaxInt64, one[:]) == 1 {
		inf.OldestMs = one[0].TimestampMs
	}
	return inf
}
