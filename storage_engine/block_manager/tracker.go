package blockmanager

import (
	"io"
	"sync"

	"QuadDB/storage_engine/dberrors"
	"QuadDB/types"

	"go.uber.org/zap"
)

// Tracker does the checkout and iterator bookkeeping for one manager. Layers
// that hand out their own blocks, like the buffer pool, embed one too.
type Tracker struct {
	mu        sync.Mutex
	name      string
	iterators map[io.Closer]struct{}
	checkouts int
	log       *zap.Logger
}

func (t *Tracker) Init(name string, log *zap.Logger) {
	t.name = name
	t.iterators = make(map[io.Closer]struct{})
	t.log = log
}

func (t *Tracker) BeginIterator(it io.Closer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.iterators[it] = struct{}{}
}

func (t *Tracker) EndIterator(it io.Closer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.iterators, it)
}

func (t *Tracker) OpenIterators() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.iterators)
}

func (t *Tracker) Checkouts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.checkouts
}

func (t *Tracker) CheckQuiescent(op string) {
	n := t.OpenIterators()
	if n == 0 {
		return
	}
	t.log.Error("destructive operation with open iterators",
		zap.String("op", op), zap.Int("iterators", n))
	dberrors.Fatalf(types.NoBlock, nil, "%s: %s refused, %d iterator(s) still open", t.name, op, n)
}

// CheckedOut counts one more block handed out.
func (t *Tracker) CheckedOut() {
	t.mu.Lock()
	t.checkouts++
	t.mu.Unlock()
}

// Returned counts one block handed back.
func (t *Tracker) Returned() {
	t.mu.Lock()
	if t.checkouts > 0 {
		t.checkouts--
	}
	t.mu.Unlock()
}

// ReportLeaks logs checkouts never released; called on close.
func (t *Tracker) ReportLeaks() {
	if n := t.Checkouts(); n > 0 {
		t.log.Warn("closing with blocks still checked out", zap.Int("checkouts", n))
	}
}
