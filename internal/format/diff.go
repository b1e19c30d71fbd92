package format

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// DiffResult holds a file before and after formatting
type DiffResult struct {
	Original  string
	Formatted string
	Changed   bool
}

// Diff compares the original and formatted text
func Diff(original, formatted string) *DiffResult {
	return &DiffResult{
		Original:  original,
		Formatted: formatted,
		Changed:   original != formatted,
	}
}

type lineOp struct {
	kind byte // ' ', '-' or '+'
	text string
	old  int  // 1-based line in the original
	new  int  // 1-based line in the formatted text
}

// ops aligns both texts on their longest common subsequence of lines
func (d *DiffResult) ops() []lineOp {
	a := strings.Split(d.Original, "\n")
	b := strings.Split(d.Formatted, "\n")

	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	out := make([]lineOp, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i < len(a) && j < len(b) && a[i] == b[j]:
			out = append(out, lineOp{' ', a[i], i + 1, j + 1})
			i++
			j++
		case j < len(b) && (i == len(a) || lcs[i][j+1] > lcs[i+1][j]):
			out = append(out, lineOp{'+', b[j], i + 1, j + 1})
			j++
		default:
			out = append(out, lineOp{'-', a[i], i + 1, j + 1})
			i++
		}
	}
	return out
}

// String renders the changed lines in color
func (d *DiffResult) String() string {
	if !d.Changed {
		return color.GreenString("No changes needed")
	}

	var buf bytes.Buffer
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	inHunk := false
	for _, op := range d.ops() {
		switch op.kind {
		case ' ':
			inHunk = false
		case '-':
			if !inHunk {
				cyan.Fprintf(&buf, "@@ Line %d @@\n", op.old)
				inHunk = true
			}
			red.Fprintf(&buf, "- %s\n", op.text)
		case '+':
			if !inHunk {
				cyan.Fprintf(&buf, "@@ Line %d @@\n", op.new)
				inHunk = true
			}
			green.Fprintf(&buf, "+ %s\n", op.text)
		}
	}
	return buf.String()
}

// UnifiedDiff renders an uncolored diff with a/ and b/ headers
func (d *DiffResult) UnifiedDiff(filename string) string {
	if !d.Changed {
		return ""
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--- a/%s\n", filename)
	fmt.Fprintf(&buf, "+++ b/%s\n", filename)

	inHunk := false
	for _, op := range d.ops() {
		if op.kind == ' ' {
			inHunk = false
			continue
		}
		if !inHunk {
			fmt.Fprintf(&buf, "@@ -%d +%d @@\n", op.old, op.new)
			inHunk = true
		}
		fmt.Fprintf(&buf, "%c%s\n", op.kind, op.text)
	}
	return buf.String()
}

// Stats summarizes added and removed lines
func (d *DiffResult) Stats() string {
	if !d.Changed {
		return "No changes"
	}
	added, removed := 0, 0
	for _, op := range d.ops() {
		switch op.kind {
		case '+':
			added++
		case '-':
			removed++
		}
	}
	return fmt.Sprintf("%d lines added, %d removed", added, removed)
}
