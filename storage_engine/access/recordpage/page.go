package recordpage

import (
	"encoding/binary"

	"QuadDB/storage_engine/block"
	blockmanager "QuadDB/storage_engine/block_manager"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"
	"QuadDB/types"
)

/*
RecordBufferPage layout (big-endian):

	offset 0  int32 count   records in use
	offset 4  int32 link    id of the next page in the chain, -1 for none
	offset 8  count * recordLength bytes, densely packed, strictly increasing by key

Capacity is fixed by the block size: (blockSize - HeaderLength) / recordLength.
*/

const (
	CountOffset  = 0
	LinkOffset   = 4
	HeaderLength = 8
)

type RecordBufferPage struct {
	blk     *block.Block
	factory record.Factory
	buf     *RecordBuffer
}

// MaxRecords is the number of records a page of blockSize bytes can hold.
func MaxRecords(blockSize int, f record.Factory) int {
	if blockSize <= HeaderLength {
		return 0
	}
	return (blockSize - HeaderLength) / f.RecordLength()
}

func capacity(blk *block.Block, f record.Factory) (int, error) {
	n := MaxRecords(blk.Size(), f)
	if n < 1 {
		return 0, dberrors.Capacity("block of %d bytes cannot hold one record of %d bytes", blk.Size(), f.RecordLength())
	}
	return n, nil
}

// Create formats blk as an empty page with no link.
func Create(blk *block.Block, f record.Factory) (*RecordBufferPage, error) {
	maxRecs, err := capacity(blk, f)
	if err != nil {
		return nil, err
	}
	if blk.ReadOnly() {
		dberrors.Fatalf(blk.Ref(), nil, "format of read-only block")
	}
	clear(blk.Data)
	binary.BigEndian.PutUint32(blk.Data[LinkOffset:], uint32(types.NoBlock.Encode()))
	blk.Type = types.BlockTypeRecordPage
	return wrap(blk, f, maxRecs), nil
}

// Load parses an existing page. The stored count is trusted as long as it fits.
func Load(blk *block.Block, f record.Factory) (*RecordBufferPage, error) {
	maxRecs, err := capacity(blk, f)
	if err != nil {
		return nil, err
	}
	count := int32(binary.BigEndian.Uint32(blk.Data[CountOffset:]))
	if count < 0 || int(count) > maxRecs {
		return nil, dberrors.Inconsistent(blk.Ref(), nil, "record page count %d outside 0..%d", count, maxRecs)
	}
	if blk.Type == types.BlockTypeUnknown {
		blk.Type = types.BlockTypeRecordPage
	}
	return wrap(blk, f, maxRecs), nil
}

func wrap(blk *block.Block, f record.Factory, maxRecs int) *RecordBufferPage {
	rl := f.RecordLength()
	return &RecordBufferPage{
		blk:     blk,
		factory: f,
		buf: &RecordBuffer{
			factory:  f,
			header:   blk.Data[CountOffset : CountOffset+4],
			body:     blk.Data[HeaderLength : HeaderLength+maxRecs*rl],
			recLen:   rl,
			max:      maxRecs,
			readOnly: blk.ReadOnly(),
			ref:      blk.Ref(),
		},
	}
}

func (p *RecordBufferPage) RecordBuffer() *RecordBuffer {
	return p.buf
}

func (p *RecordBufferPage) Link() types.BlockRef {
	return types.DecodeRef(int32(binary.BigEndian.Uint32(p.blk.Data[LinkOffset:])))
}

func (p *RecordBufferPage) SetLink(ref types.BlockRef) {
	if p.blk.ReadOnly() {
		dberrors.Fatalf(p.blk.Ref(), nil, "link change on read-only page")
	}
	binary.BigEndian.PutUint32(p.blk.Data[LinkOffset:], uint32(ref.Encode()))
}

func (p *RecordBufferPage) Count() int {
	return p.buf.Size()
}

func (p *RecordBufferPage) MaxRecords() int {
	return p.buf.max
}

func (p *RecordBufferPage) ID() types.BlockID {
	return p.blk.ID
}

func (p *RecordBufferPage) Block() *block.Block {
	return p.blk
}

func (p *RecordBufferPage) Factory() record.Factory {
	return p.factory
}

// Write persists the page through mgr.
func (p *RecordBufferPage) Write(mgr blockmanager.BlockManager) error {
	return mgr.Write(p.blk)
}

// Release ends the checkout of the page's block. The page must not be used after.
func (p *RecordBufferPage) Release(mgr blockmanager.BlockManager) {
	mgr.Release(p.blk)
}

func (p *RecordBufferPage) String() string {
	return "RecordBufferPage[" + p.blk.Ref().String() + " n=" + itoa(p.Count()) + " link=" + p.Link().String() + "]"
}
