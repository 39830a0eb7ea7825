package blockmanager

import (
	"sync"

	"QuadDB/storage_engine/block"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/types"
)

// Mem keeps blocks in a map. Every Get hands out a private copy so the caller
// cannot modify stored state without going through Write.
type Mem struct {
	base
	mu     sync.RWMutex
	blocks map[types.BlockID][]byte
	next   types.BlockID
}

func NewMem(label string, blockSize int, opts ...Option) (*Mem, error) {
	if err := checkBlockSize(label, blockSize); err != nil {
		return nil, err
	}
	m := &Mem{blocks: make(map[types.BlockID][]byte)}
	m.base.init(label, blockSize, opts)
	return m, nil
}

func (m *Mem) Allocate(t types.BlockType) (*block.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, dberrors.ErrClosed
	}
	id, reused, err := m.nextIDLocked(m.next)
	if err != nil {
		return nil, err
	}
	if !reused {
		m.next++
	}
	m.blocks[id] = make([]byte, m.blockSize)
	m.CheckedOut()
	return block.New(id, t, make([]byte, m.blockSize)), nil
}

func (m *Mem) get(id types.BlockID, readOnly bool) (*block.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, dberrors.ErrClosed
	}
	data, ok := m.blocks[id]
	if !ok || !m.validLocked(id, m.next) {
		return nil, dberrors.NotFound(m.label, id)
	}
	out := make([]byte, m.blockSize)
	copy(out, data)
	m.CheckedOut()
	if readOnly {
		return block.NewReadOnly(id, types.BlockTypeUnknown, out), nil
	}
	return block.New(id, types.BlockTypeUnknown, out), nil
}

func (m *Mem) GetRead(id types.BlockID) (*block.Block, error) {
	return m.get(id, true)
}

func (m *Mem) GetWrite(id types.BlockID) (*block.Block, error) {
	return m.get(id, false)
}

func (m *Mem) Write(b *block.Block) error {
	if err := m.checkWrite(b); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return dberrors.ErrClosed
	}
	if !m.validLocked(b.ID, m.next) {
		return dberrors.NotFound(m.label, b.ID)
	}
	dest := make([]byte, m.blockSize)
	copy(dest, b.Data)
	m.blocks[b.ID] = dest
	return nil
}

func (m *Mem) Release(b *block.Block) {
	if b != nil {
		m.Returned()
	}
}

func (m *Mem) Free(id types.BlockID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return dberrors.ErrClosed
	}
	if !m.validLocked(id, m.next) {
		return dberrors.NotFound(m.label, id)
	}
	delete(m.blocks, id)
	m.free.Add(id)
	return nil
}

func (m *Mem) Valid(id types.BlockID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed && m.validLocked(id, m.next)
}

// Sync is a no-op for memory, but still reports use after close.
func (m *Mem) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return dberrors.ErrClosed
	}
	return nil
}

func (m *Mem) Close() error {
	m.CheckQuiescent("close")

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.ReportLeaks()
	// dropping the map surfaces use-after-close bugs
	m.blocks = nil
	m.closed = true
	return nil
}

// TotalBlocks is the high-water mark of allocated ids.
func (m *Mem) TotalBlocks() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(m.next)
}
