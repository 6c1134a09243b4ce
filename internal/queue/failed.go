package queue

import (
	"context"
	"strings"

	"github.com/cockroachdb/pebble"
)

// FailedGroups returns the failure categories with the number of jobs
// retained in each.
func (e *Engine) FailedGroups(ctx context.Context) (map[string]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lo, hi := keyRange(prefixFailed)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	groups := make(map[string]int64)
	for ok := iter.First(); ok; ok = iter.Next() {
		rest := string(iter.Key()[len(prefixFailed):])
		if i := strings.IndexByte(rest, '/'); i > 0 {
			groups[rest[:i]]++
		}
	}
	return groups, nil
}

// Failed returns one page of failed jobs in a category plus the category
// total. Each job carries the payload snapshot taken at failure time.
func (e *Engine) Failed(ctx context.Context, category string, start, limit int) ([]*Job, int64, error) {
	if err := validateName("category", category); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 25
	}
	if start < 0 {
		start = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prefix := failedCatPrefix(category)
	lo, hi := keyRange(prefix)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, 0, err
	}
	defer iter.Close()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	var total int64
	jobs := make([]*Job, 0, limit)
	for ok := iter.First(); ok; ok = iter.Next() {
		idx := total
		total++
		if idx < int64(start) || len(jobs) >= limit {
			continue
		}
		jobID := nameFromMarkerKey(iter.Key(), len(prefix))
		j, found, err := e.loadJob(b, jobID)
		if err != nil {
			return nil, 0, err
		}
		if !found {
			continue
		}
		jobs = append(jobs, j.Clone())
	}
	return jobs, total, nil
}
