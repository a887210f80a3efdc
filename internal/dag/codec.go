package dag

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// FormatVersion is the version stamped on every persisted record.
const FormatVersion = 1

// Record kinds.
const (
	KindCommit    = "commit"
	KindTree      = "tree"
	KindConflict  = "conflict"
	KindView      = "view"
	KindOperation = "operation"
)

type recordHeader struct {
	V    int    `json:"v"`
	Kind string `json:"kind"`
}

// EncodeRecord serializes v as canonical JSON with the "v" and "kind" header
// fields added at the top level.
func EncodeRecord(kind string, v interface{}) ([]byte, error) {
	raw, err := toGeneric(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("encode %s: record must be an object", kind)
	}
	m["v"] = FormatVersion
	m["kind"] = kind
	return canonicalEncode(m)
}

// DecodeRecord checks the header of data and unmarshals it into out.
// Unknown versions fail with *UnsupportedFormatVersionError.
func DecodeRecord(data []byte, kind string, out interface{}) error {
	var h recordHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return fmt.Errorf("decode %s header: %w", kind, err)
	}
	if h.V != FormatVersion {
		return &UnsupportedFormatVersionError{Kind: kind, Version: h.V}
	}
	if h.Kind != kind {
		return fmt.Errorf("decode %s: record has kind %q: %w", kind, h.Kind, ErrCorruptObject)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

func toGeneric(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func canonicalEncode(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			keyBytes, _ := json.Marshal(k)
			buf = append(buf, keyBytes...)
			buf = append(buf, ':')
			valBytes, err := canonicalEncode(val[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, valBytes...)
		}
		return append(buf, '}'), nil

	case []interface{}:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			itemBytes, err := canonicalEncode(item)
			if err != nil {
				return nil, err
			}
			buf = append(buf, itemBytes...)
		}
		return append(buf, ']'), nil

	default:
		return json.Marshal(v)
	}
}
