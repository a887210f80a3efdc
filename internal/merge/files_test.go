package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func bs(ss ...string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func strs(parts [][]byte) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}

func TestFiles_Resolved(t *testing.T) {
	tests := []struct {
		name    string
		removes []string
		adds    []string
		want    string
	}{
		{"unchanged and empty on all sides", []string{""}, []string{"", ""}, ""},
		{"unchanged on all sides", []string{"a"}, []string{"a", "a"}, "a"},
		{"one side removed, one side unchanged", []string{"a\n"}, []string{"", "a\n"}, ""},
		{"one side unchanged, one side removed", []string{"a\n"}, []string{"a\n", ""}, ""},
		{"both sides removed same line", []string{"a\n"}, []string{"", ""}, ""},
		{"one side modified, one side unchanged", []string{"a"}, []string{"a b", "a"}, "a b"},
		{"one side unchanged, one side modified", []string{"a"}, []string{"a", "a b"}, "a b"},
		{"all sides added same content", nil, []string{"a\n", "a\n", "a\n"}, "a\n"},
		{"all sides removed same content", []string{"a\n", "a\n", "a\n"}, nil, ""},
		{"three sides made the same change", []string{"a", "a"}, []string{"b", "b", "b"}, "b"},
		{"two of three sides unchanged", []string{"a", "a"}, []string{"a", "", "a"}, ""},
		{"two sides made the same change", []string{"a", "a"}, []string{"", "a", ""}, ""},
		{"other branch undid one input of a conflict", []string{"a", "b"}, []string{"b", "a", "c"}, "c"},
		{"changes in separate regions", []string{"1\n2\n3\n"}, []string{"one\n2\n3\n", "1\n2\nthree\n"}, "one\n2\nthree\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Files(bs(tt.removes...), bs(tt.adds...))
			assert.True(t, res.Resolved, "hunks: %+v", res.Hunks)
			assert.Equal(t, tt.want, string(res.Content))
		})
	}
}

func TestFiles_Conflicts(t *testing.T) {
	tests := []struct {
		name        string
		removes     []string
		adds        []string
		wantRemoves []string
		wantAdds    []string
	}{
		{"one side modified, two sides added", []string{"a"}, []string{"b", "b", "b"}, []string{"a"}, []string{"b", "b", "b"}},
		{"one side modified, two sides removed", []string{"a\n", "a\n", "a\n"}, []string{""}, []string{"a\n", "a\n", "a\n"}, []string{""}},
		{"one side unchanged, one side added", []string{"a\n"}, []string{"a\nb\n"}, []string{""}, []string{"b\n"}},
		{"one side removed, one side modified", []string{"a\n"}, []string{"", "b\n"}, []string{"a\n"}, []string{"", "b\n"}},
		{"one side modified, one side removed", []string{"a\n"}, []string{"b\n", ""}, []string{"a\n"}, []string{"b\n", ""}},
		{"two sides modified in different ways", []string{"a"}, []string{"b", "c"}, []string{"a"}, []string{"b", "c"}},
		{"two sides make different changes", []string{"a", "a"}, []string{"b", "a", "c"}, []string{"a", "a"}, []string{"b", "a", "c"}},
		{"conflict merged with another branch", []string{"a", "b"}, []string{"c", "d", "e"}, []string{"a", "b"}, []string{"c", "d", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Files(bs(tt.removes...), bs(tt.adds...))
			assert.False(t, res.Resolved)
			if assert.Len(t, res.Hunks, 1) {
				h := res.Hunks[0]
				assert.True(t, h.Conflict)
				assert.Equal(t, tt.wantRemoves, strs(h.Removes))
				assert.Equal(t, tt.wantAdds, strs(h.Adds))
			}
		})
	}
}

func TestFiles_ResolvedPrefixBeforeConflict(t *testing.T) {
	res := Files(bs("a\n"), bs("a\nb\n", "a\nc\n"))
	assert.False(t, res.Resolved)
	if assert.Len(t, res.Hunks, 2) {
		assert.False(t, res.Hunks[0].Conflict)
		assert.Equal(t, "a\n", string(res.Hunks[0].Content))
		assert.True(t, res.Hunks[1].Conflict)
		assert.Equal(t, []string{""}, strs(res.Hunks[1].Removes))
		assert.Equal(t, []string{"b\n", "c\n"}, strs(res.Hunks[1].Adds))
	}
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines("a\nb\n"))
	assert.Equal(t, []string{"a\n", "b"}, splitLines("a\nb"))
}
