// Package chunker splits ingested text into bounded, overlapping segments
// suitable for embedding and retrieval.
package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxChunkSize is the default upper bound on chunk length, in characters.
	DefaultMaxChunkSize = 1000
	// DefaultOverlap is the default size of the overlap window, in characters.
	DefaultOverlap = 200
)

const paragraphBreak = "\n\n"

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00A0}]+`)
	blankLines      = regexp.MustCompile(`\n{2,}`)
	sentenceEnd     = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// Normalize collapses runs of horizontal whitespace to a single space, trims
// every line and collapses runs of blank lines to one paragraph break.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = blankLines.ReplaceAllString(text, paragraphBreak)

	return strings.TrimSpace(text)
}

// Chunk splits text into ordered chunks of at most maxChunkSize characters.
// Paragraphs are packed greedily; a paragraph that is too long on its own is
// packed sentence by sentence. Every chunk after the first starts with whole
// words taken from the tail of the previous chunk, about overlap characters
// long. A single sentence longer than maxChunkSize becomes its own chunk.
//
// A non-positive maxChunkSize selects DefaultMaxChunkSize and a negative
// overlap selects DefaultOverlap. Empty input yields no chunks.
func Chunk(text string, maxChunkSize, overlap int) []string {
	segments := split(text, maxChunkSize, overlap)
	if len(segments) == 0 {
		return nil
	}

	chunks := make([]string, len(segments))
	for i, s := range segments {
		chunks[i] = s.String()
	}
	return chunks
}

// segment is a chunk before rendering: the overlap carried over from the
// previous chunk and the new content.
type segment struct {
	seed string
	body string
}

func (s segment) String() string {
	if s.seed == "" {
		return s.body
	}
	return s.seed + " " + s.body
}

func split(text string, maxChunkSize, overlap int) []segment {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}

	cleaned := Normalize(text)
	if cleaned == "" {
		return nil
	}
	if runeLen(cleaned) <= maxChunkSize {
		return []segment{{body: cleaned}}
	}

	p := &packer{max: maxChunkSize, overlap: overlap}
	for _, paragraph := range strings.Split(cleaned, paragraphBreak) {
		if runeLen(paragraph) <= maxChunkSize {
			p.add(paragraph, paragraphBreak)
			continue
		}
		for i, sentence := range sentences(paragraph) {
			sep := " "
			if i == 0 {
				sep = paragraphBreak
			}
			p.add(sentence, sep)
		}
	}
	p.flush()

	return p.segments
}

type packer struct {
	max      int
	overlap  int
	seed     string
	body     string
	segments []segment
}

func (p *packer) current() segment {
	return segment{seed: p.seed, body: p.body}
}

func (p *packer) add(piece, sep string) {
	if p.body == "" {
		p.body = piece
		return
	}

	if runeLen(p.current().String())+len(sep)+runeLen(piece) <= p.max {
		p.body += sep + piece
		return
	}

	flushed := p.current().String()
	p.flush()

	seed := tailWords(flushed, p.overlap)
	for seed != "" && runeLen(seed)+1+runeLen(piece) > p.max {
		seed = dropFirstWord(seed)
	}
	p.seed = seed
	p.body = piece
}

func (p *packer) flush() {
	if p.body == "" {
		return
	}
	p.segments = append(p.segments, p.current())
	p.seed = ""
	p.body = ""
}

// sentences splits a paragraph on '.', '!' and '?' boundaries. Text between
// or after terminators is kept so no content is lost.
func sentences(paragraph string) []string {
	var out []string
	prev := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(paragraph, -1) {
		if s := strings.TrimSpace(paragraph[prev:loc[1]]); s != "" {
			out = append(out, s)
		}
		prev = loc[1]
	}
	if s := strings.TrimSpace(paragraph[prev:]); s != "" {
		out = append(out, s)
	}
	return out
}

// tailWords returns the longest run of whole trailing words of s whose
// length does not exceed n.
func tailWords(s string, n int) string {
	if n <= 0 {
		return ""
	}

	words := strings.Fields(s)
	start := len(words)
	total := 0
	for i := len(words) - 1; i >= 0; i-- {
		l := runeLen(words[i])
		if total > 0 {
			l++
		}
		if total+l > n {
			break
		}
		total += l
		start = i
	}
	return strings.Join(words[start:], " ")
}

func dropFirstWord(s string) string {
	i := strings.IndexByte(s, ' ')
	if i < 0 {
		return ""
	}
	return s[i+1:]
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
