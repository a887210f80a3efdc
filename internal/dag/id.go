package dag

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
)

// ShortLen is the number of hex digits printed for abbreviated ids.
const ShortLen = 12

// ID is the content digest of a stored object: a CIDv1 with the raw codec
// and a SHA2-256 multihash. The zero value is the undefined id.
type ID struct {
	c gocid.Cid
}

// ComputeID computes the ID for the given bytes without storing them.
func ComputeID(data []byte) (ID, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return ID{}, fmt.Errorf("multihash: %w", err)
	}
	return ID{c: gocid.NewCidV1(gocid.Raw, mh)}, nil
}

// FromCid wraps an existing CID.
func FromCid(c gocid.Cid) ID { return ID{c: c} }

// ParseHex parses the hex form of a SHA2-256 digest as returned by Hex.
func ParseHex(s string) (ID, error) {
	digest, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, fmt.Errorf("parse id %q: %w", s, err)
	}
	if len(digest) != 32 {
		return ID{}, fmt.Errorf("parse id %q: want 32 bytes, got %d", s, len(digest))
	}
	mh, err := multihash.Encode(digest, multihash.SHA2_256)
	if err != nil {
		return ID{}, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ID{c: gocid.NewCidV1(gocid.Raw, mh)}, nil
}

// ParseString parses either the base32 multibase form written to disk or
// the hex digest form.
func ParseString(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if len(s) == 64 {
		if id, err := ParseHex(s); err == nil {
			return id, nil
		}
	}
	_, raw, err := multibase.Decode(s)
	if err != nil {
		return ID{}, fmt.Errorf("decode id %q: %w", s, err)
	}
	c, err := gocid.Cast(raw)
	if err != nil {
		return ID{}, fmt.Errorf("cast id %q: %w", s, err)
	}
	return ID{c: c}, nil
}

// IsZero reports whether id is the undefined id.
func (id ID) IsZero() bool { return !id.c.Defined() }

// Cid returns the underlying CID.
func (id ID) Cid() gocid.Cid { return id.c }

// Digest returns the raw SHA2-256 digest.
func (id ID) Digest() []byte {
	if id.IsZero() {
		return nil
	}
	dec, err := multihash.Decode(id.c.Hash())
	if err != nil {
		return nil
	}
	return dec.Digest
}

// Hex returns the lowercase hex digest. This is the form users type.
func (id ID) Hex() string { return hex.EncodeToString(id.Digest()) }

// Short returns the first ShortLen hex digits.
func (id ID) Short() string {
	h := id.Hex()
	if len(h) > ShortLen {
		return h[:ShortLen]
	}
	return h
}

func (id ID) String() string {
	if id.IsZero() {
		return "<undef>"
	}
	return id.Hex()
}

// Filename returns the base32lower multibase encoding used for object file
// names and persisted references.
func (id ID) Filename() string {
	encoded, _ := multibase.Encode(multibase.Base32, id.c.Bytes())
	return encoded
}

// Compare orders ids by digest bytes, which is the same order as their hex
// forms.
func (id ID) Compare(other ID) int {
	return strings.Compare(id.c.KeyString(), other.c.KeyString())
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return []byte{}, nil
	}
	return []byte(id.Filename()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = ID{}
		return nil
	}
	parsed, err := ParseString(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// SortIDs sorts ids ascending in place.
func SortIDs(ids []ID) {
	slices.SortFunc(ids, ID.Compare)
}

// UniqueIDs returns ids sorted ascending with duplicates and zero ids removed.
func UniqueIDs(ids []ID) []ID {
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if !id.IsZero() {
			out = append(out, id)
		}
	}
	SortIDs(out)
	return slices.Compact(out)
}
