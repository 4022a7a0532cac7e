package loader

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// DefaultMaxTokens is the default chunk budget in approximate tokens.
const DefaultMaxTokens = 300

// charsPerToken approximates the tokenizer of the embedding models.
const charsPerToken = 4

var blankLines = regexp.MustCompile(`\n{2,}`)

// Chunk is a contiguous span of cleaned text. Chunks are created once per
// input and never modified.
type Chunk struct {
	ID     string
	Index  int
	Text   string
	Start  int // byte offset into the cleaned text
	End    int // exclusive
	Source string
}

// Clean collapses runs of blank lines to a single newline and trims
// surrounding whitespace. CRLF line endings are normalized first.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// ChunkText packs newline-separated paragraphs of already cleaned text into
// chunks of roughly maxTokens tokens. A paragraph is appended to the running
// chunk while the chunk stays under maxTokens*4 bytes; otherwise the chunk is
// closed and the paragraph starts the next one. Paragraphs are never split,
// so a single oversized paragraph becomes its own chunk. Empty text yields no
// chunks.
func ChunkText(text, source string, maxTokens int) []Chunk {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	limit := maxTokens * charsPerToken
	stem := SourceStem(source)

	var (
		chunks   []Chunk
		size     int // length of the running chunk including separators
		segStart = -1
		segEnd   int
		offset   int
	)

	emit := func() {
		if segStart < 0 {
			return
		}
		raw := text[segStart:segEnd]
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return
		}
		lead := len(raw) - len(strings.TrimLeftFunc(raw, unicode.IsSpace))
		start := segStart + lead
		chunks = append(chunks, Chunk{
			ID:     stem + "-" + strconv.Itoa(len(chunks)),
			Index:  len(chunks),
			Text:   trimmed,
			Start:  start,
			End:    start + len(trimmed),
			Source: source,
		})
	}

	for _, para := range strings.Split(text, "\n") {
		paraStart := offset
		offset += len(para) + 1

		if size+len(para) < limit {
			if segStart < 0 {
				segStart = paraStart
			}
			size += len(para) + 1
			segEnd = paraStart + len(para)
			continue
		}

		emit()
		segStart = paraStart
		segEnd = paraStart + len(para)
		size = len(para) + 1
	}
	emit()

	return chunks
}

// SourceStem returns the file name of source without directories or
// extension, used as the chunk ID prefix.
func SourceStem(source string) string {
	if i := strings.LastIndex(source, "/"); i >= 0 {
		source = source[i+1:]
	}
	source = strings.TrimSuffix(source, filepath.Ext(source))
	if source == "" {
		return "chunk"
	}
	return source
}
