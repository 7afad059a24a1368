package doctree

import (
	"time"

	"bitbucket.org/avalia/dashboard_backend/docstore"
)

// Op is one queued write.
type Op struct {
	Path   string
	Data   docstore.Data
	Merge  bool
	Delete bool
}

// Apply runs ops in order against the tree.
func (t *Tree) Apply(ops []Op, now time.Time) {
	for _, op := range ops {
		if op.Delete {
			t.Delete(op.Path)
			continue
		}
		t.Set(op.Path, op.Data, op.Merge, now)
	}
}

// NewSetOp validates and normalizes a set.
func NewSetOp(docPath string, data docstore.Data, opts []docstore.SetOption) (Op, error) {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return Op{}, err
	}
	norm, err := docstore.Normalize(data)
	if err != nil {
		return Op{}, err
	}
	return Op{Path: docPath, Data: norm, Merge: docstore.IsMerge(opts)}, nil
}

func NewDeleteOp(docPath string) (Op, error) {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return Op{}, err
	}
	return Op{Path: docPath, Delete: true}, nil
}

// Tx buffers transactional writes against a tree. Reads see the committed tree.
type Tx struct {
	tree  *Tree
	ops   []Op
	wrote bool
}

func NewTx(tree *Tree) *Tx {
	return &Tx{tree: tree}
}

func (tx *Tx) Get(docPath string) (*docstore.Snapshot, error) {
	if err := docstore.ValidateDocPath(docPath); err != nil {
		return nil, err
	}
	if tx.wrote {
		return nil, docstore.ErrReadAfterWrite
	}
	return tx.tree.Get(docPath), nil
}

func (tx *Tx) Set(docPath string, data docstore.Data, opts ...docstore.SetOption) error {
	op, err := NewSetOp(docPath, data, opts)
	if err != nil {
		return err
	}
	tx.wrote = true
	tx.ops = append(tx.ops, op)
	return nil
}

func (tx *Tx) Delete(docPath string) error {
	op, err := NewDeleteOp(docPath)
	if err != nil {
		return err
	}
	tx.wrote = true
	tx.ops = append(tx.ops, op)
	return nil
}

// Ops returns the buffered writes.
func (tx *Tx) Ops() []Op {
	return tx.ops
}

// Batch collects ops for a WriteBatch implementation. The first validation error is
// kept and reported on commit.
type Batch struct {
	Ops []Op
	Err error
}

func (b *Batch) Set(docPath string, data docstore.Data, opts ...docstore.SetOption) {
	op, err := NewSetOp(docPath, data, opts)
	if err != nil {
		if b.Err == nil {
			b.Err = err
		}
		return
	}
	b.Ops = append(b.Ops, op)
}

func (b *Batch) Delete(docPath string) {
	op, err := NewDeleteOp(docPath)
	if err != nil {
		if b.Err == nil {
			b.Err = err
		}
		return
	}
	b.Ops = append(b.Ops, op)
}

func (b *Batch) Len() int {
	return len(b.Ops)
}
