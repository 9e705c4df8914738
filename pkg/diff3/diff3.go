// Package diff3 provides line-level diffing and three-way merging.
//
// Merge aligns the edits each side made against a common base and weaves
// them into one output: regions touched by a single side take that side's
// lines, identical edits collapse to one copy, and disagreements become
// conflict blocks delimited by <<<<<<< / ======= / >>>>>>> markers.
package diff3

import (
	"bytes"
	"fmt"
	"strings"
)

// HunkType classifies a hunk in a three-way merge result.
type HunkType int

const (
	HunkClean    HunkType = iota // Hunk was merged cleanly.
	HunkConflict                 // Hunk has a conflict that requires manual resolution.
)

// Hunk represents a contiguous section of the merge output.
type Hunk struct {
	Type                       HunkType
	Base, Ours, Theirs, Merged []byte
}

// Labels names the two sides inside conflict markers. Empty fields fall
// back to "ours" and "theirs".
type Labels struct {
	Ours, Theirs string
}

func (l Labels) withDefaults() Labels {
	if l.Ours == "" {
		l.Ours = "ours"
	}
	if l.Theirs == "" {
		l.Theirs = "theirs"
	}
	return l
}

// Result holds the outcome of a three-way merge.
type Result struct {
	Merged        []byte // Full merged content (with conflict markers if conflicts exist).
	HasConflicts  bool   // True if any hunk is a conflict.
	ConflictCount int    // Number of conflict hunks.
	Hunks         []Hunk // Individual hunks in document order.
}

// Merge performs a three-way merge of base, ours, and theirs.
//
// Algorithm:
//  1. Split base, ours, theirs into lines.
//  2. Compute diff(base, ours) and diff(base, theirs).
//  3. Convert each diff into a sequence of "chunks" — contiguous runs of
//     unchanged or changed regions relative to the base.
//  4. Walk both chunk sequences in parallel, aligned by base positions,
//     resolving each base region from whichever sides changed it.
//  5. When both sides change the same base region differently, emit a conflict.
func Merge(base, ours, theirs []byte, labels Labels) Result {
	baseLines := splitLines(string(base))
	oursLines := splitLines(string(ours))
	theirsLines := splitLines(string(theirs))

	oursChunks := buildChunks(baseLines, oursLines)
	theirsChunks := buildChunks(baseLines, theirsLines)

	w := weaver{labels: labels.withDefaults()}
	w.run(baseLines, oursChunks, theirsChunks)

	return Result{
		Merged:        w.buf.Bytes(),
		HasConflicts:  w.conflicts > 0,
		ConflictCount: w.conflicts,
		Hunks:         w.hunks,
	}
}

// splitLines splits s into lines. A trailing newline does not produce
// an extra empty element (matching standard text file conventions).
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	// Remove trailing empty string caused by a final newline.
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// chunk represents a contiguous region relative to the base.
type chunk struct {
	baseStart, baseEnd int      // range [baseStart, baseEnd) in base
	lines              []string // replacement lines for this region
	changed            bool     // true if this region differs from base
}

// buildChunks converts a two-way diff (base → side) into a list of chunks.
// Each chunk covers a contiguous range of base lines and carries the
// corresponding replacement lines from the side. Equal lines become
// single-line unchanged chunks; runs of inserts and deletes fuse into one
// changed chunk (zero-width for pure insertions).
func buildChunks(base, side []string) []chunk {
	ops := MyersDiff(base, side)

	var chunks []chunk
	baseIdx := 0

	i := 0
	for i < len(ops) {
		op := ops[i]

		if op.Type == Equal {
			chunks = append(chunks, chunk{
				baseStart: baseIdx,
				baseEnd:   baseIdx + 1,
				lines:     []string{op.Line},
			})
			baseIdx++
			i++
			continue
		}

		c := chunk{baseStart: baseIdx, changed: true}
		for i < len(ops) && ops[i].Type != Equal {
			if ops[i].Type == Delete {
				baseIdx++
			} else {
				c.lines = append(c.lines, ops[i].Line)
			}
			i++
		}
		c.baseEnd = baseIdx
		chunks = append(chunks, c)
	}

	return chunks
}

// weaver accumulates the merge output while walking the chunk sequences.
type weaver struct {
	labels    Labels
	buf       bytes.Buffer
	hunks     []Hunk
	conflicts int
}

func (w *weaver) run(baseLines []string, oursChunks, theirsChunks []chunk) {
	oi := 0
	ti := 0

	for oi < len(oursChunks) || ti < len(theirsChunks) {
		// One side exhausted: the other carries trailing insertions (a
		// contiguous cover of the base never leaves real spans behind).
		if oi >= len(oursChunks) {
			tc := theirsChunks[ti]
			w.resolve(baseSpan(baseLines, tc.baseStart, tc.baseEnd), nil, tc.lines, false, tc.changed)
			ti++
			continue
		}
		if ti >= len(theirsChunks) {
			oc := oursChunks[oi]
			w.resolve(baseSpan(baseLines, oc.baseStart, oc.baseEnd), oc.lines, nil, oc.changed, false)
			oi++
			continue
		}

		oc := oursChunks[oi]
		tc := theirsChunks[ti]

		// Chunks cover the same base span: resolve them directly.
		if oc.baseStart == tc.baseStart && oc.baseEnd == tc.baseEnd {
			w.resolve(baseSpan(baseLines, oc.baseStart, oc.baseEnd), oc.lines, tc.lines, oc.changed, tc.changed)
			oi++
			ti++
			continue
		}

		// Misaligned spans: one side's change straddles several chunks on
		// the other side. Grow a region covering both until neither side
		// has another chunk starting inside it. The growth must alternate
		// sides to a fixed point: consuming theirs can extend the region
		// past chunks ours has not contributed yet.
		regionStart := min(oc.baseStart, tc.baseStart)
		regionEnd := max(oc.baseEnd, tc.baseEnd)

		var oursRegion, theirsRegion []chunk
		for {
			grew := false
			for oi < len(oursChunks) && oursChunks[oi].baseStart < regionEnd {
				if oursChunks[oi].baseEnd > regionEnd {
					regionEnd = oursChunks[oi].baseEnd
				}
				oursRegion = append(oursRegion, oursChunks[oi])
				oi++
				grew = true
			}
			for ti < len(theirsChunks) && theirsChunks[ti].baseStart < regionEnd {
				if theirsChunks[ti].baseEnd > regionEnd {
					regionEnd = theirsChunks[ti].baseEnd
				}
				theirsRegion = append(theirsRegion, theirsChunks[ti])
				ti++
				grew = true
			}
			if !grew {
				break
			}
		}

		w.resolve(
			baseSpan(baseLines, regionStart, regionEnd),
			assembleRegion(oursRegion),
			assembleRegion(theirsRegion),
			anyChanged(oursRegion),
			anyChanged(theirsRegion),
		)
	}
}

// resolve emits one merged hunk for a base region given each side's view
// of it and whether that side changed it.
func (w *weaver) resolve(base, ours, theirs []string, oursChanged, theirsChanged bool) {
	switch {
	case !oursChanged && !theirsChanged:
		w.clean(base, nil, nil, base)
	case oursChanged && !theirsChanged:
		w.clean(base, ours, nil, ours)
	case !oursChanged && theirsChanged:
		w.clean(base, nil, theirs, theirs)
	case linesEqual(ours, theirs):
		// Both sides made the identical change: take it once.
		w.clean(base, ours, theirs, ours)
	default:
		w.conflict(base, ours, theirs)
	}
}

func (w *weaver) clean(base, ours, theirs, take []string) {
	for _, l := range take {
		w.buf.WriteString(l)
		w.buf.WriteByte('\n')
	}
	w.hunks = append(w.hunks, Hunk{
		Type:   HunkClean,
		Base:   joinLines(base),
		Ours:   joinLines(ours),
		Theirs: joinLines(theirs),
		Merged: joinLines(take),
	})
}

func (w *weaver) conflict(base, ours, theirs []string) {
	w.conflicts++

	var block bytes.Buffer
	fmt.Fprintf(&block, "<<<<<<< %s\n", w.labels.Ours)
	for _, l := range ours {
		block.WriteString(l)
		block.WriteByte('\n')
	}
	block.WriteString("=======\n")
	for _, l := range theirs {
		block.WriteString(l)
		block.WriteByte('\n')
	}
	fmt.Fprintf(&block, ">>>>>>> %s\n", w.labels.Theirs)

	w.buf.Write(block.Bytes())
	w.hunks = append(w.hunks, Hunk{
		Type:   HunkConflict,
		Base:   joinLines(base),
		Ours:   joinLines(ours),
		Theirs: joinLines(theirs),
		Merged: block.Bytes(),
	})
}

// RenderConflict produces a whole-file conflict block for cases that
// cannot be merged line by line, such as a file deleted on one side and
// modified on the other.
func RenderConflict(ours, theirs []byte, labels Labels) []byte {
	labels = labels.withDefaults()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<<<<<<< %s\n", labels.Ours)
	buf.Write(ours)
	if len(ours) > 0 && ours[len(ours)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString("=======\n")
	buf.Write(theirs)
	if len(theirs) > 0 && theirs[len(theirs)-1] != '\n' {
		buf.WriteByte('\n')
	}
	fmt.Fprintf(&buf, ">>>>>>> %s\n", labels.Theirs)
	return buf.Bytes()
}

func baseSpan(baseLines []string, start, end int) []string {
	if start >= end {
		return nil
	}
	return baseLines[start:end]
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func assembleRegion(chunks []chunk) []string {
	var lines []string
	for _, c := range chunks {
		lines = append(lines, c.lines...)
	}
	return lines
}

func anyChanged(chunks []chunk) bool {
	for _, c := range chunks {
		if c.changed {
			return true
		}
	}
	return false
}
