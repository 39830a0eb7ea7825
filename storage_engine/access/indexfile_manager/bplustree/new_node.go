package bplus

import (
	"QuadDB/storage_engine/access/recordpage"
	"QuadDB/storage_engine/dberrors"
	"QuadDB/types"

	"github.com/pkg/errors"
)

/*
Page I/O for the tree. Pages are decoded into Node / leaf values and their
blocks released before the helper returns, so no operation keeps a checkout
across calls. A decode failure is corruption and aborts the operation.
*/

func fatalIfCorrupt(err error) error {
	if ce, ok := err.(*dberrors.StorageConsistencyError); ok {
		dberrors.Fatal(ce)
	}
	return err
}

func (t *BPlusTree) readMeta() (meta, error) {
	blk, err := t.nodes.GetRead(metaBlock)
	if err != nil {
		return meta{}, errors.Wrap(err, "read tree meta")
	}
	defer t.nodes.Release(blk)
	m, err := decodeMeta(blk.Data)
	if err != nil {
		return meta{}, fatalIfCorrupt(err)
	}
	return m, nil
}

func (t *BPlusTree) writeMeta(m meta) error {
	blk, err := t.nodes.GetWrite(metaBlock)
	if err != nil {
		return errors.Wrap(err, "write tree meta")
	}
	defer t.nodes.Release(blk)
	blk.Type = types.BlockTypeMeta
	encodeMeta(m, blk.Data)
	return t.nodes.Write(blk)
}

// fetchNode reads and decodes branch page id.
func (t *BPlusTree) fetchNode(id types.BlockID) (*Node, error) {
	blk, err := t.nodes.GetRead(id)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch branch %d", id)
	}
	defer t.nodes.Release(blk)
	n, err := DeserializeNode(id, t.params, t.keys, blk.Data)
	if err != nil {
		return nil, fatalIfCorrupt(err)
	}
	return n, nil
}

func (t *BPlusTree) writeNode(n *Node) error {
	blk, err := t.nodes.GetWrite(n.id)
	if err != nil {
		return errors.Wrapf(err, "write branch %d", n.id)
	}
	defer t.nodes.Release(blk)
	blk.Type = types.BlockTypeBranch
	SerializeNode(n, t.params, blk.Data)
	return t.nodes.Write(blk)
}

// newNode allocates an empty branch page; the caller fills and writes it.
func (t *BPlusTree) newNode(leafChildren bool) (*Node, error) {
	blk, err := t.nodes.Allocate(types.BlockTypeBranch)
	if err != nil {
		return nil, errors.Wrap(err, "allocate branch")
	}
	t.nodes.Release(blk)
	return &Node{id: blk.ID, leafChildren: leafChildren}, nil
}

func (t *BPlusTree) fetchLeaf(id types.BlockID) (*leaf, error) {
	blk, err := t.records.GetRead(id)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch record page %d", id)
	}
	defer t.records.Release(blk)
	page, err := recordpage.Load(blk, t.factory)
	if err != nil {
		return nil, fatalIfCorrupt(err)
	}
	return &leaf{id: id, recs: page.RecordBuffer().Slice(), link: page.Link()}, nil
}

func (t *BPlusTree) writeLeaf(l *leaf) error {
	if len(l.recs) > t.params.Order {
		dberrors.Fatalf(types.Ref(l.id), nil, "record page with %d records at order %d", len(l.recs), t.params.Order)
	}
	blk, err := t.records.GetWrite(l.id)
	if err != nil {
		return errors.Wrapf(err, "write record page %d", l.id)
	}
	defer t.records.Release(blk)
	page, err := recordpage.Create(blk, t.factory)
	if err != nil {
		return err
	}
	if err := page.RecordBuffer().Reset(l.recs); err != nil {
		return err
	}
	page.SetLink(l.link)
	return page.Write(t.records)
}

func (t *BPlusTree) newLeaf() (*leaf, error) {
	blk, err := t.records.Allocate(types.BlockTypeRecordPage)
	if err != nil {
		return nil, errors.Wrap(err, "allocate record page")
	}
	t.records.Release(blk)
	return &leaf{id: blk.ID, link: types.NoBlock}, nil
}

func (t *BPlusTree) freeNode(id types.BlockID) error {
	return errors.Wrapf(t.nodes.Free(id), "free branch %d", id)
}

func (t *BPlusTree) freeLeaf(id types.BlockID) error {
	return errors.Wrapf(t.records.Free(id), "free record page %d", id)
}
