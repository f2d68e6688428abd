package escrow

import (
	"context"
	"sync"
)

// jobLocks serializes the check, settle and commit steps of operations on the
// same job inside one process. Waiting honours ctx.
type jobLocks struct {
	mu    sync.Mutex
	slots map[int64]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newJobLocks() *jobLocks {
	return &jobLocks{slots: make(map[int64]*lockSlot)}
}

func (l *jobLocks) lock(ctx context.Context, jobID int64) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[jobID]
	if !ok {
		s = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[jobID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.release(jobID, s)
			})
		}, nil
	case <-ctx.Done():
		l.release(jobID, s)
		return nil, ctx.Err()
	}
}

func (l *jobLocks) release(jobID int64, s *lockSlot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, jobID)
	}
	l.mu.Unlock()
}

func (l *jobLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
