package chunk

import (
	"regexp"
	"strings"
	"time"
)

// paragraphSplitPattern splits markdown on blank lines.
var paragraphSplitPattern = regexp.MustCompile(`\n\s*\n`)

// ParagraphChunkerOptions configures the paragraph chunker.
type ParagraphChunkerOptions struct {
	MaxChars int // Cap per chunk in runes (default: DefaultParagraphChars)
}

// ParagraphChunker splits markdown into paragraph groups, greedily
// packing whole paragraphs until the cap would be exceeded. Used for
// short-form markdown where sentence-stride chunking is too fine.
type ParagraphChunker struct {
	options ParagraphChunkerOptions
}

// NewParagraphChunker creates a paragraph chunker with default options.
func NewParagraphChunker() *ParagraphChunker {
	return NewParagraphChunkerWithOptions(ParagraphChunkerOptions{})
}

// NewParagraphChunkerWithOptions creates a paragraph chunker with custom options.
func NewParagraphChunkerWithOptions(opts ParagraphChunkerOptions) *ParagraphChunker {
	if opts.MaxChars <= 0 {
		opts.MaxChars = DefaultParagraphChars
	}
	return &ParagraphChunker{options: opts}
}

// Chunk splits markdown into ordered paragraph-group chunks.
// A single oversized paragraph still becomes its own chunk; an input
// with no usable paragraphs yields one truncated chunk.
func (c *ParagraphChunker) Chunk(bookID, text string) []*Chunk {
	now := time.Now()

	var paras []string
	for _, p := range paragraphSplitPattern.Split(text, -1) {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			paras = append(paras, trimmed)
		}
	}

	if len(paras) == 0 {
		runes := []rune(text)
		if len(runes) > c.options.MaxChars {
			runes = runes[:c.options.MaxChars]
		}
		content := string(runes)
		if content == "" {
			return nil
		}
		return []*Chunk{{
			ID:        generateChunkID(bookID, content),
			BookID:    bookID,
			Index:     0,
			Content:   content,
			End:       len(runes),
			CreatedAt: now,
		}}
	}

	var chunks []*Chunk
	var buf []string
	total := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		content := strings.Join(buf, "\n")
		chunks = append(chunks, &Chunk{
			ID:        generateChunkID(bookID, content),
			BookID:    bookID,
			Index:     len(chunks),
			Content:   content,
			CreatedAt: now,
		})
		buf = nil
		total = 0
	}

	for _, para := range paras {
		if total+len([]rune(para)) > c.options.MaxChars && len(buf) > 0 {
			flush()
		}
		buf = append(buf, para)
		total += len([]rune(para)) + 1
	}
	flush()

	return chunks
}
