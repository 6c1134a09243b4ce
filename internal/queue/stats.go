package queue

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/pebble"
)

// Histogram layout: second resolution for the most recent minute, minute
// resolution for the most recent hour, 15-minute resolution for the most
// recent day, hourly for the most recent 3 days, daily beyond that (capped
// at one year).
const (
	histSeconds  = 60  // [0s, 1m) at 1s
	histMinutes  = 59  // [1m, 1h) at 1m
	histQuarters = 92  // [1h, 1d) at 15m
	histHours    = 48  // [1d, 3d) at 1h
	histDays     = 363 // [3d, 1y) at 1d
	histBuckets  = histSeconds + histMinutes + histQuarters + histHours + histDays
)

const daySeconds = 86_400

// histIndex maps a duration in whole seconds to its histogram bucket.
func histIndex(sec int64) int {
	switch {
	case sec < 0:
		return 0
	case sec < 60:
		return int(sec)
	case sec < 3_600:
		return histSeconds + int(sec/60) - 1
	case sec < daySeconds:
		return histSeconds + histMinutes + int((sec-3_600)/900)
	case sec < 3*daySeconds:
		return histSeconds + histMinutes + histQuarters + int((sec-daySeconds)/3_600)
	default:
		d := int((sec - 3*daySeconds) / daySeconds)
		if d >= histDays {
			d = histDays - 1
		}
		return histSeconds + histMinutes + histQuarters + histHours + d
	}
}

// statsSeries is a streaming moment estimator (Welford) plus the histogram.
// Never recomputed from stored samples.
type statsSeries struct {
	Count     uint64   `json:"count"`
	Mean      float64  `json:"mean"`
	M2        float64  `json:"m2"`
	Histogram []uint64 `json:"histogram,omitempty"`
}

// observe folds one sample (in seconds) into the series.
func (s *statsSeries) observe(sec float64) {
	s.Count++
	delta := sec - s.Mean
	s.Mean += delta / float64(s.Count)
	s.M2 += delta * (sec - s.Mean)

	if s.Histogram == nil {
		s.Histogram = make([]uint64, histBuckets)
	}
	s.Histogram[histIndex(int64(sec))]++
}

// variance returns the population variance.
func (s *statsSeries) variance() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.M2 / float64(s.Count)
}

// statsBucket holds one (queue, UTC day) of aggregates: the wait series
// (enqueue to pop), the run series (pop to completion), and event counters.
type statsBucket struct {
	Wait    statsSeries `json:"wait"`
	Run     statsSeries `json:"run"`
	Failed  uint64      `json:"failed,omitempty"`
	Retries uint64      `json:"retries,omitempty"`
}

// dayStartSec returns the UTC midnight (in seconds) containing the given
// millisecond timestamp.
func dayStartSec(ms int64) int64 {
	sec := ms / 1000
	return sec - sec%daySeconds
}

func (e *Engine) loadStatsBucket(b *pebble.Batch, queue string, day int64) (*statsBucket, error) {
	v, ok, err := batchGet(b, statsKey(queue, day))
	if err != nil {
		return nil, err
	}
	bucket := &statsBucket{}
	if ok {
		if err := json.Unmarshal(v, bucket); err != nil {
			return nil, err
		}
	}
	return bucket, nil
}

func (e *Engine) storeStatsBucket(b *pebble.Batch, queue string, day int64, bucket *statsBucket) error {
	v, err := json.Marshal(bucket)
	if err != nil {
		return err
	}
	return b.Set(statsKey(queue, day), v, nil)
}

// recordStats folds a completion or failure event into the day bucket of
// nowMs. waitSec/runSec < 0 skip that series; failed/retried bump the day
// counters.
func (e *Engine) recordStats(b *pebble.Batch, queue string, nowMs int64, waitSec, runSec float64, failed, retried bool) error {
	day := dayStartSec(nowMs)
	bucket, err := e.loadStatsBucket(b, queue, day)
	if err != nil {
		return err
	}
	if waitSec >= 0 {
		bucket.Wait.observe(waitSec)
	}
	if runSec >= 0 {
		bucket.Run.observe(runSec)
	}
	if failed {
		bucket.Failed++
	}
	if retried {
		bucket.Retries++
	}
	return e.storeStatsBucket(b, queue, day, bucket)
}

// SeriesStats is an immutable aggregate snapshot for one duration series.
type SeriesStats struct {
	Count     uint64   `json:"total"`
	Mean      float64  `json:"mean"`
	Variance  float64  `json:"variance"`
	Histogram []uint64 `json:"histogram"`
}

// QueueStats is the per-day statistics snapshot for a queue.
type QueueStats struct {
	Queue      string      `json:"queue"`
	DayStartMs int64       `json:"day_start_ms"`
	Wait       SeriesStats `json:"wait"`
	Run        SeriesStats `json:"run"`
	Failed     uint64      `json:"failed"`
	Retries    uint64      `json:"retries"`
}

func snapshotSeries(s *statsSeries) SeriesStats {
	hist := s.Histogram
	if hist == nil {
		hist = make([]uint64, histBuckets)
	} else {
		hist = append([]uint64(nil), hist...)
	}
	return SeriesStats{
		Count:     s.Count,
		Mean:      s.Mean,
		Variance:  s.variance(),
		Histogram: hist,
	}
}

// Stats returns the statistics bucket for the UTC day containing dayMs. A
// day with no recorded events returns a zeroed structure, never an error.
func (e *Engine) Stats(ctx context.Context, queue string, dayMs int64) (*QueueStats, error) {
	if err := validateName("queue", queue); err != nil {
		return nil, err
	}
	day := dayStartSec(nowOr(dayMs))

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	bucket, err := e.loadStatsBucket(b, queue, day)
	if err != nil {
		return nil, err
	}
	return &QueueStats{
		Queue:      queue,
		DayStartMs: day * 1000,
		Wait:       snapshotSeries(&bucket.Wait),
		Run:        snapshotSeries(&bucket.Run),
		Failed:     bucket.Failed,
		Retries:    bucket.Retries,
	}, nil
}
