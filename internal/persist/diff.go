package persist

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Chunk is one inserted or removed span between two documents.
type Chunk struct {
	Type    string `json:"type"` // "added" | "removed"
	Content string `json:"content"`
}

// DiffJSON compares two JSON documents after re-indenting both, so that
// formatting differences do not show up as changes. Equal spans are dropped.
func DiffJSON(base, head []byte) []Chunk {
	dmp := diffmatchpatch.New()

	baseStr, headStr := canonicalJSON(base), canonicalJSON(head)
	// Line mode keeps chunks aligned with JSON members.
	a, b, lines := dmp.DiffLinesToChars(baseStr, headStr)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)
	diffs = dmp.DiffCleanupSemantic(diffs)

	chunks := make([]Chunk, 0)
	for _, d := range diffs {
		var chunkType string
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			chunkType = "added"
		case diffmatchpatch.DiffDelete:
			chunkType = "removed"
		default:
			continue
		}
		if strings.TrimSpace(d.Text) != "" {
			chunks = append(chunks, Chunk{Type: chunkType, Content: d.Text})
		}
	}
	return chunks
}

func canonicalJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return string(data)
	}
	return buf.String()
}
