package tracer

import (
	"fmt"
	"os"
	"strings"
)

// sourceWindow renders radius lines of source around line in file, with
// the failing line marked. Unreadable files yield an empty window; error
// recording proceeds without context.
func sourceWindow(file string, line, radius int) string {
	if file == "" || line <= 0 {
		return ""
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	if line > len(lines) {
		return ""
	}

	start := line - radius
	if start < 1 {
		start = 1
	}
	end := line + radius
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	for i := start; i <= end; i++ {
		mark := "  "
		if i == line {
			mark = "->"
		}
		fmt.Fprintf(&b, "%s %4d | %s\n", mark, i, lines[i-1])
	}
	return b.String()
}
