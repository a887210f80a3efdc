package merge

import (
	"bytes"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// FileHunk is one region of a line merge: either resolved content or a
// conflict carrying the original part of every input.
type FileHunk struct {
	Conflict bool
	Content  []byte
	Removes  [][]byte
	Adds     [][]byte
}

// FileResult is the outcome of Files. When Resolved is true Content holds
// the merged file; otherwise Hunks describes it region by region.
type FileResult struct {
	Resolved bool
	Content  []byte
	Hunks    []FileHunk
}

// Files merges file contents line by line. The inputs are split into hunks
// at lines shared by every input. Within a differing hunk, parts that are
// both removed and added cancel; the hunk resolves if what is left is a
// single distinct addition, a single distinct removal, or one change made
// identically by every side.
func Files(removes, adds [][]byte) FileResult {
	numRemoves := len(removes)
	inputs := make([][]byte, 0, len(removes)+len(adds))
	inputs = append(inputs, removes...)
	inputs = append(inputs, adds...)

	var resolved []byte
	var hunks []FileHunk
	flush := func() {
		if len(resolved) > 0 {
			hunks = append(hunks, FileHunk{Content: resolved})
			resolved = nil
		}
	}

	for _, h := range diffLines(inputs) {
		if h.matching {
			if len(adds) > len(removes) {
				resolved = append(resolved, h.content...)
			}
			continue
		}
		removed := cloneParts(h.parts[:numRemoves])
		added := cloneParts(h.parts[numRemoves:])
		removed, added = cancelParts(removed, added)

		distinctRemoves, distinctAdds := countDistinct(removed), countDistinct(added)
		switch {
		case len(removed) == 0 && len(added) == 0:
		case distinctRemoves == 0 && distinctAdds == 1:
			resolved = append(resolved, added[0]...)
		case distinctRemoves == 1 && distinctAdds == 0:
		case distinctRemoves == 1 && distinctAdds == 1 && len(added) == len(removed)+1:
			resolved = append(resolved, added[0]...)
		default:
			flush()
			hunks = append(hunks, FileHunk{
				Conflict: true,
				Removes:  cloneParts(h.parts[:numRemoves]),
				Adds:     cloneParts(h.parts[numRemoves:]),
			})
		}
	}

	if len(hunks) == 0 {
		if resolved == nil {
			resolved = []byte{}
		}
		return FileResult{Resolved: true, Content: resolved}
	}
	flush()
	return FileResult{Hunks: hunks}
}

// cancelParts drops every added part that equals some removed part, along
// with that removed part.
func cancelParts(removed, added [][]byte) ([][]byte, [][]byte) {
	for i := 0; i < len(added); {
		found := false
		for j, r := range removed {
			if bytes.Equal(r, added[i]) {
				added = append(added[:i], added[i+1:]...)
				removed = append(removed[:j], removed[j+1:]...)
				found = true
				break
			}
		}
		if !found {
			i++
		}
	}
	return removed, added
}

func countDistinct(parts [][]byte) int {
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		seen[string(p)] = struct{}{}
	}
	return len(seen)
}

func cloneParts(parts [][]byte) [][]byte {
	out := make([][]byte, len(parts))
	copy(out, parts)
	return out
}

type diffHunk struct {
	matching bool
	content  []byte
	parts    [][]byte
}

// diffLines aligns every input against the first one and splits them into
// alternating matching and differing hunks. A line of the first input is a
// sync point when every other input contains it at an aligned position.
func diffLines(inputs [][]byte) []diffHunk {
	if len(inputs) == 0 {
		return nil
	}
	lines := make([][]string, len(inputs))
	for i, in := range inputs {
		lines[i] = splitLines(string(in))
	}
	base := lines[0]

	// matches[k][i] is the line of input k aligned with base line i, or -1.
	matches := make([][]int, len(inputs))
	dmp := diffmatchpatch.New()
	for k := 1; k < len(inputs); k++ {
		matches[k] = alignLines(dmp, string(inputs[0]), string(inputs[k]), len(base))
	}

	var hunks []diffHunk
	pos := make([]int, len(inputs))
	emit := func(end []int) {
		parts := make([][]byte, len(inputs))
		empty, same := true, true
		for k := range inputs {
			parts[k] = []byte(strings.Join(lines[k][pos[k]:end[k]], ""))
			if len(parts[k]) > 0 {
				empty = false
			}
			if k > 0 && !bytes.Equal(parts[k], parts[0]) {
				same = false
			}
		}
		switch {
		case empty:
		case same:
			appendMatching(&hunks, parts[0])
		default:
			hunks = append(hunks, diffHunk{parts: parts})
		}
	}

	end := make([]int, len(inputs))
	for i := range base {
		sync := true
		for k := 1; k < len(inputs); k++ {
			if matches[k][i] < 0 {
				sync = false
				break
			}
		}
		if !sync {
			continue
		}
		end[0] = i
		for k := 1; k < len(inputs); k++ {
			end[k] = matches[k][i]
		}
		emit(end)
		appendMatching(&hunks, []byte(base[i]))
		for k := range inputs {
			pos[k] = end[k] + 1
		}
	}
	for k := range inputs {
		end[k] = len(lines[k])
	}
	emit(end)
	return hunks
}

func appendMatching(hunks *[]diffHunk, content []byte) {
	if n := len(*hunks); n > 0 && (*hunks)[n-1].matching {
		(*hunks)[n-1].content = append((*hunks)[n-1].content, content...)
		return
	}
	*hunks = append(*hunks, diffHunk{matching: true, content: bytes.Clone(content)})
}

// alignLines returns, for each line of a, the index of the equal line of b
// on a longest-common-subsequence alignment, or -1.
func alignLines(dmp *diffmatchpatch.DiffMatchPatch, a, b string, numA int) []int {
	out := make([]int, numA)
	for i := range out {
		out[i] = -1
	}
	ca, cb, lineArray := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lineArray)
	ai, bi := 0, 0
	for _, d := range diffs {
		n := len(splitLines(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			for j := 0; j < n && ai < numA; j++ {
				out[ai] = bi
				ai++
				bi++
			}
		case diffmatchpatch.DiffDelete:
			ai += n
		case diffmatchpatch.DiffInsert:
			bi += n
		}
	}
	return out
}

// splitLines splits s after every newline. A final line without a newline
// is kept.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	out := strings.SplitAfter(s, "\n")
	if out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}
