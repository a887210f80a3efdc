package op

import (
	"time"

	"github.com/systemshift/weft/internal/dag"
)

// Operation types recorded in Metadata.Type.
const (
	TypeInit    = "init"
	TypeEdit    = "edit"
	TypeMerge   = "merge"
	TypeUndo    = "undo"
	TypeRestore = "restore"
)

// Metadata describes who performed an operation and why.
type Metadata struct {
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	Description string            `json:"description"`
	Hostname    string            `json:"hostname"`
	Username    string            `json:"username"`
	Type        string            `json:"type"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Operation is one immutable entry of the operation log. Height is one more
// than the greatest parent height; the first operation has height 0.
type Operation struct {
	ID       dag.ID   `json:"-"`
	Parents  []dag.ID `json:"parents"`
	Height   int      `json:"height"`
	ViewID   dag.ID   `json:"view"`
	Metadata Metadata `json:"metadata"`
}

// IsMerge reports whether the operation joined two concurrent operations.
func (o *Operation) IsMerge() bool { return len(o.Parents) > 1 }

// viewRecord is the persisted form of a View.
type viewRecord struct {
	Heads      []dag.ID            `json:"heads"`
	Hidden     []dag.ID            `json:"hidden"`
	Branches   map[string][]dag.ID `json:"branches"`
	Workspaces map[string]Checkout `json:"workspaces"`
}

func encodeView(v *View) ([]byte, error) {
	rec := viewRecord{
		Heads:      v.heads,
		Hidden:     v.HiddenIDs(),
		Branches:   v.branches,
		Workspaces: v.workspaces,
	}
	if rec.Heads == nil {
		rec.Heads = []dag.ID{}
	}
	if rec.Branches == nil {
		rec.Branches = map[string][]dag.ID{}
	}
	if rec.Workspaces == nil {
		rec.Workspaces = map[string]Checkout{}
	}
	return dag.EncodeRecord(dag.KindView, &rec)
}

func decodeView(data []byte) (*View, error) {
	var rec viewRecord
	if err := dag.DecodeRecord(data, dag.KindView, &rec); err != nil {
		return nil, err
	}
	m := &MutableView{
		heads:      idSet(rec.Heads),
		hidden:     idSet(rec.Hidden),
		branches:   map[string][]dag.ID{},
		workspaces: map[string]Checkout{},
	}
	for name, targets := range rec.Branches {
		m.SetBranch(name, targets...)
	}
	for name, co := range rec.Workspaces {
		m.workspaces[name] = co
	}
	return m.Freeze(), nil
}
