// Package testutil holds helpers shared by store and service tests.
package testutil

import (
	"errors"
	"sync"

	"zkcred/internal/sentinel"
)

// ConcurrentResult tallies the outcomes of one RunConcurrent call. Errors
// that are neither conflicts nor not-found are kept in Others for inspection.
type ConcurrentResult struct {
	Successes int32
	Conflicts int32
	NotFounds int32
	Others    []error
}

// Failed counts every non-nil outcome, sentinel or not.
func (r *ConcurrentResult) Failed() int32 {
	return r.Conflicts + r.NotFounds + int32(len(r.Others))
}

// RunConcurrent runs fn on n goroutines at once and classifies the results by
// store sentinel.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var result ConcurrentResult
	overlap(n, fn, func(err error) {
		switch {
		case err == nil:
			result.Successes++
		case errors.Is(err, sentinel.ErrConflict):
			result.Conflicts++
		case errors.Is(err, sentinel.ErrNotFound):
			result.NotFounds++
		default:
			result.Others = append(result.Others, err)
		}
	})
	return &result
}

// RunConcurrentCollect runs fn on n goroutines at once and returns the number
// of successes plus every error, for callers that classify domain errors
// themselves.
func RunConcurrentCollect(n int, fn func(idx int) error) (int32, []error) {
	var (
		successes int32
		errs      []error
	)
	overlap(n, fn, func(err error) {
		if err == nil {
			successes++
			return
		}
		errs = append(errs, err)
	})
	return successes, errs
}

// overlap releases all goroutines from a shared barrier so the calls contend,
// and reports each outcome to record under a lock.
func overlap(n int, fn func(idx int) error, record func(error)) {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		start = make(chan struct{})
	)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := fn(i)
			mu.Lock()
			record(err)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()
}
