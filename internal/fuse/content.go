package fuse

import (
	"encoding/json"
	"strings"

	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/op"
)

type operationDoc struct {
	ID       string      `json:"id"`
	Parents  []string    `json:"parents"`
	Height   int         `json:"height"`
	View     string      `json:"view"`
	Metadata op.Metadata `json:"metadata"`
}

func operationJSON(o *op.Operation) ([]byte, error) {
	doc := operationDoc{
		ID:       o.ID.Hex(),
		Parents:  hexes(o.Parents),
		Height:   o.Height,
		View:     o.ViewID.Hex(),
		Metadata: o.Metadata,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

type commitDoc struct {
	ID           string        `json:"id"`
	ChangeID     string        `json:"change_id"`
	Parents      []string      `json:"parents"`
	Predecessors []string      `json:"predecessors,omitempty"`
	Tree         string        `json:"tree"`
	Description  string        `json:"description"`
	Author       dag.Signature `json:"author"`
	Committer    dag.Signature `json:"committer"`
}

func commitJSON(c *dag.Commit) ([]byte, error) {
	doc := commitDoc{
		ID:           c.ID.Hex(),
		ChangeID:     c.ChangeID,
		Parents:      hexes(c.Parents),
		Predecessors: hexes(c.Predecessors),
		Tree:         c.Tree.Hex(),
		Description:  c.Description,
		Author:       c.Author,
		Committer:    c.Committer,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// targetLines lists ids one hex per line.
func targetLines(ids []dag.ID) []byte {
	var b strings.Builder
	for _, id := range ids {
		b.WriteString(id.Hex())
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func hexes(ids []dag.ID) []string {
	if len(ids) == 0 {
		return nil
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Hex()
	}
	return out
}

// File names cannot hold '/', which branch names and revsets may contain.
var nameEscaper = strings.NewReplacer("%", "%25", "/", "%2F")

func escapeName(s string) string { return nameEscaper.Replace(s) }

func unescapeName(s string) string {
	return strings.NewReplacer("%2F", "/", "%2f", "/", "%25", "%").Replace(s)
}
