// Package chunker splits the newsletter corpus into titled, dated excerpts
// ready for embedding.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/huzzy12/Andrew-Wilkinson-AI/models"
)

// datePattern matches long-form newsletter dates such as "March 3, 2021".
var datePattern = regexp.MustCompile(`(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}`)

var blankLine = regexp.MustCompile(`\n[ \t\r]*\n`)

// Config holds the chunking thresholds. All lengths are in characters.
// Cached embeddings depend on the exact chunk boundaries, so changing any
// of these invalidates an existing cache in practice.
type Config struct {
	MinSegmentChars   int // segments shorter than this are noise
	MinParagraphChars int // non-heading paragraphs shorter than this are dropped
	MaxHeadingChars   int // headings are shorter than this
	MinHeadingChars   int // and longer than this
	HeadingFlushChars int // buffer size above which a heading closes the current chunk
	MaxChunkChars     int // buffer size above which a chunk is emitted
	MinFinalChars     int // trailing buffer is kept only above this size
}

// DefaultConfig returns the thresholds the cache format was built with.
func DefaultConfig() Config {
	return Config{
		MinSegmentChars:   200,
		MinParagraphChars: 50,
		MaxHeadingChars:   80,
		MinHeadingChars:   5,
		HeadingFlushChars: 200,
		MaxChunkChars:     800,
		MinFinalChars:     100,
	}
}

// Chunker is stateless and safe for concurrent use.
type Chunker struct {
	cfg Config
}

// New constructs a Chunker.
func New(cfg Config) *Chunker {
	return &Chunker{cfg: cfg}
}

type segment struct {
	date string
	text string
}

// Split turns the corpus into chunks without embeddings. The output is a
// pure function of the input text.
func (c *Chunker) Split(corpus string) []models.Chunk {
	var chunks []models.Chunk
	for _, seg := range splitSegments(corpus) {
		if runeLen(strings.TrimSpace(seg.text)) < c.cfg.MinSegmentChars {
			continue
		}
		chunks = append(chunks, c.splitSegment(seg)...)
	}
	return chunks
}

// splitSegments cuts the corpus at every date match. Text before the first
// match becomes a segment with an unknown date.
func splitSegments(corpus string) []segment {
	matches := datePattern.FindAllStringIndex(corpus, -1)
	if len(matches) == 0 {
		return []segment{{date: models.UnknownDate, text: corpus}}
	}

	segments := make([]segment, 0, len(matches)+1)
	if matches[0][0] > 0 {
		segments = append(segments, segment{date: models.UnknownDate, text: corpus[:matches[0][0]]})
	}
	for i, m := range matches {
		end := len(corpus)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		segments = append(segments, segment{
			date: normalizeSpace(corpus[m[0]:m[1]]),
			text: corpus[m[0]:end],
		})
	}
	return segments
}

func (c *Chunker) splitSegment(seg segment) []models.Chunk {
	var (
		chunks []models.Chunk
		buf    strings.Builder
		title  = seg.date
	)

	flush := func() {
		if text := strings.TrimSpace(buf.String()); text != "" {
			chunks = append(chunks, models.Chunk{Text: text, Title: title, Date: seg.date})
		}
		buf.Reset()
	}

	for _, para := range blankLine.Split(seg.text, -1) {
		para = strings.TrimSpace(para)
		n := runeLen(para)

		if c.isHeading(para, n) {
			if runeLen(buf.String()) > c.cfg.HeadingFlushChars {
				flush()
			}
			title = para
			continue
		}
		if n < c.cfg.MinParagraphChars {
			continue
		}

		buf.WriteString(para)
		buf.WriteString("\n\n")
		if runeLen(buf.String()) > c.cfg.MaxChunkChars {
			flush()
		}
	}

	if runeLen(strings.TrimSpace(buf.String())) > c.cfg.MinFinalChars {
		flush()
	}
	return chunks
}

// isHeading applies the length and punctuation heuristic. A heading may be
// shorter than the paragraph minimum, so it is checked first.
func (c *Chunker) isHeading(para string, n int) bool {
	if n <= c.cfg.MinHeadingChars || n >= c.cfg.MaxHeadingChars {
		return false
	}
	return !strings.HasSuffix(para, ".") &&
		!strings.HasSuffix(para, "!") &&
		!strings.HasSuffix(para, "?")
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
