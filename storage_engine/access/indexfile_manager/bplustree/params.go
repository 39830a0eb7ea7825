package bplus

import (
	"QuadDB/storage_engine/access/recordpage"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/storage_engine/record"
)

// NewParams checks that order fits blocks of blockSize for records of f.
// Order 0 picks the largest order that fits.
func NewParams(order int, f record.Factory, blockSize int) (Params, error) {
	p := Params{Order: order, KeyLength: f.KeyLength(), ValueLength: f.ValueLength()}
	maxOrder := MaxOrder(f, blockSize)
	if order == 0 {
		p.Order = maxOrder
	}
	if err := p.validate(); err != nil {
		return Params{}, err
	}
	if p.Order > maxOrder {
		return Params{}, dberrors.Capacity("order %d does not fit %d byte blocks (max %d)", p.Order, blockSize, maxOrder)
	}
	if blockSize < metaLength {
		return Params{}, dberrors.Capacity("block size %d cannot hold tree meta", blockSize)
	}
	return p, nil
}

// MaxOrder is the largest order whose record pages and branch pages both fit
// blocks of blockSize.
func MaxOrder(f record.Factory, blockSize int) int {
	leafMax := recordpage.MaxRecords(blockSize, f)
	// header + (order-1) keys + order child ids <= blockSize
	branchMax := (blockSize - branchHeaderLength + f.KeyLength()) / (f.KeyLength() + childIDSize)
	return min(leafMax, branchMax)
}

// checkFits reports whether managers with these block sizes can carry p.
func (p Params) checkFits(nodeBlockSize, recordBlockSize int) error {
	if err := p.validate(); err != nil {
		return err
	}
	if n := recordpage.MaxRecords(recordBlockSize, p.Factory()); n < p.Order {
		return dberrors.Capacity("record blocks of %d bytes hold %d records, order is %d", recordBlockSize, n, p.Order)
	}
	if need := branchLength(p); nodeBlockSize < need {
		return dberrors.Capacity("branch of order %d needs %d bytes, node blocks are %d", p.Order, need, nodeBlockSize)
	}
	if nodeBlockSize < metaLength {
		return dberrors.Capacity("node blocks of %d bytes cannot hold tree meta", nodeBlockSize)
	}
	return nil
}
