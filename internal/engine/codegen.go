package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// indexPlaceholder is the token in loop code that stands for the current
// iteration index.
const indexPlaceholder = "{i}"

// materializeBatch renders the executable code for the range [start, end).
// Setup code is prepended only on the first batch; later batches rely on the
// backend session retaining state from prior batches. The loop template is
// instantiated once per index with the placeholder replaced by the literal
// index, so the remote side executes the range sequentially without any
// indentation contract between caller and engine.
func materializeBatch(spec ChunkSpec, start, end int) string {
	var b strings.Builder

	if start == 0 {
		b.WriteString(spec.SetupCode)
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "# Chunked execution: iterations %d to %d\n", start, end-1)
	} else {
		fmt.Fprintf(&b, "# Resuming chunked execution: iterations %d to %d\n", start, end-1)
	}

	for i := start; i < end; i++ {
		b.WriteString(instantiate(spec.LoopCode, i))
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nprint(\"Completed iterations %d to %d\")\n", start, end-1)
	return b.String()
}

func instantiate(template string, index int) string {
	return strings.ReplaceAll(template, indexPlaceholder, strconv.Itoa(index))
}
