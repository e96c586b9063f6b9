package engine

import (
	"context"
	"sync/atomic"

	"github.com/roach88/corpusql/internal/matchid"
	"github.com/roach88/corpusql/internal/store"
)

// Results is a lazy sequence over the durable rows of a finished search,
// in rank order. Rows are read a page at a time.
//
//	for res.Next(ctx) {
//	    r := res.Result()
//	}
//	if err := res.Err(); err != nil { ... }
//
// Results is not safe for concurrent iteration; Cancel may be called from
// any goroutine.
type Results struct {
	st       *store.Store
	searchID string
	pageSize int

	page   []store.Result
	idx    int   // index of the next row in page
	last   int64 // rank of the current row
	seek   int   // pending Seek position, or -1
	cur    store.Result
	err    error
	done   bool
	cancel atomic.Bool
}

// NewResults creates a sequence over the rows of searchID. A pageSize of
// zero or less means DefaultPageSize.
func NewResults(st *store.Store, searchID string, pageSize int) *Results {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Results{st: st, searchID: searchID, pageSize: pageSize, seek: -1}
}

// Next advances to the next row. It returns false when the rows are
// exhausted, the sequence was cancelled, or reading failed.
func (r *Results) Next(ctx context.Context) bool {
	if r.done || r.err != nil {
		return false
	}
	if r.cancel.Load() {
		r.done = true
		return false
	}
	if err := ctx.Err(); err != nil {
		r.err = err
		return false
	}
	if r.idx >= len(r.page) {
		if !r.fetch(ctx) {
			return false
		}
	}
	r.cur = r.page[r.idx]
	r.idx++
	r.last = r.cur.Rank
	return true
}

// fetch reads the page after the current row, or the page at a pending
// Seek position. Pages after the first are keyed by rank so rows removed
// during iteration do not shift them.
func (r *Results) fetch(ctx context.Context) bool {
	var page []store.Result
	var err error
	if r.seek >= 0 {
		page, err = r.st.Results(ctx, r.searchID, r.seek, r.pageSize)
	} else {
		page, err = r.st.ResultsAfter(ctx, r.searchID, r.last, r.pageSize)
	}
	if err != nil {
		r.err = err
		return false
	}
	r.seek = -1
	r.page, r.idx = page, 0
	if len(page) == 0 {
		r.done = true
		return false
	}
	return true
}

// Result returns the current row.
func (r *Results) Result() store.Result {
	return r.cur
}

// MatchID returns the identifier of the current row.
func (r *Results) MatchID() matchid.MatchID {
	return r.cur.MatchID()
}

// Err returns the error that stopped iteration, if any.
func (r *Results) Err() error {
	return r.err
}

// Seek positions the sequence so the next call to Next returns the row at
// rank position i (zero based). Seeking clears a previous end of
// sequence but not an error or a cancel.
func (r *Results) Seek(i int) {
	if i < 0 {
		i = 0
	}
	r.seek = i
	r.page, r.idx = nil, 0
	r.done = false
}

// Len returns the number of rows in the search.
func (r *Results) Len(ctx context.Context) (int, error) {
	return r.st.CountResults(ctx, r.searchID)
}

// Cancel stops iteration. Next returns false from then on.
func (r *Results) Cancel() {
	r.cancel.Store(true)
}
