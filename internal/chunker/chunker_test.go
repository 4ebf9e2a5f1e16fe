package chunker

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"collapses spaces", "a   b\t\tc", "a b c"},
		{"trims lines", "  first  \n  second  ", "first\nsecond"},
		{"collapses blank lines", "one\n\n\n\n two", "one\n\ntwo"},
		{"windows line endings", "one\r\n\r\ntwo", "one\n\ntwo"},
		{"whitespace only", " \n\t \n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestChunk_Empty(t *testing.T) {
	assert.Empty(t, Chunk("", DefaultMaxChunkSize, DefaultOverlap))
	assert.Empty(t, Chunk("   \n\n\t ", DefaultMaxChunkSize, DefaultOverlap))
}

func TestChunk_ShortTextIsSingleChunk(t *testing.T) {
	chunks := Chunk("Returns are accepted   within 30 days.\n\n\nRefunds take 5 days.", DefaultMaxChunkSize, DefaultOverlap)

	require.Len(t, chunks, 1)
	assert.Equal(t, "Returns are accepted within 30 days.\n\nRefunds take 5 days.", chunks[0])
}

func TestChunk_Defaults(t *testing.T) {
	text := strings.Repeat("word ", 500)
	assert.Equal(t, Chunk(text, DefaultMaxChunkSize, DefaultOverlap), Chunk(text, 0, -1))
}

func TestChunk_ShippingPolicy(t *testing.T) {
	var sentences []string
	for i := 0; i < 50; i++ {
		sentences = append(sentences, fmt.Sprintf("This is sentence %02d of the shipping policy text.", i))
	}
	sentences = append(sentences, "Contact the support team for any further question.")
	text := strings.Join(sentences, " ")
	require.Equal(t, 2500, len(text))

	chunks := Chunk(text, 1000, 200)

	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 1000)
	}
	assert.True(t, strings.HasPrefix(chunks[0], "This is sentence 00"))
	assert.True(t, strings.HasSuffix(chunks[2], "any further question."))

	for i := 1; i < len(chunks); i++ {
		shared := sharedWords(chunks[i-1], chunks[i])
		assert.GreaterOrEqual(t, len(shared), 150, "overlap between chunk %d and %d", i-1, i)
		assert.LessOrEqual(t, len(shared), 200, "overlap between chunk %d and %d", i-1, i)
	}
}

// A single paragraph of about 2,500 characters split at 1000/200 gives three
// chunks only when its sentences pack tightly. Uneven sentence lengths can
// leave more room unused and push the count to four or five; the size bound
// and the whole-word overlap hold either way.
func TestSplit_VariedSentenceLengths(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vocab := []string{"order", "refund", "shipping", "account", "password", "invoice", "delivery", "the", "a", "is"}

	for doc := 0; doc < 200; doc++ {
		var sb strings.Builder
		for sb.Len() < 2500 {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			for w := 0; w < 3+rng.Intn(18); w++ {
				if w > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(vocab[rng.Intn(len(vocab))])
			}
			sb.WriteByte('.')
		}
		text := sb.String()

		segments := split(text, 1000, 200)
		require.GreaterOrEqual(t, len(segments), 3, "doc %d", doc)
		require.LessOrEqual(t, len(segments), 5, "doc %d", doc)

		var bodies []string
		for i, seg := range segments {
			assert.LessOrEqual(t, utf8.RuneCountInString(seg.String()), 1000, "doc %d chunk %d", doc, i)
			bodies = append(bodies, strings.Fields(seg.body)...)
			if i == 0 {
				assert.Empty(t, seg.seed)
				continue
			}
			assert.Equal(t, tailWords(segments[i-1].String(), 200), seg.seed, "doc %d chunk %d", doc, i)
			assert.GreaterOrEqual(t, utf8.RuneCountInString(seg.seed), 180, "doc %d chunk %d", doc, i)
		}
		assert.Equal(t, strings.Fields(text), bodies, "doc %d", doc)
	}
}

func TestChunk_ParagraphsArePacked(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("alpha beta gamma delta ", 10))
	text := strings.Join([]string{para, para, para, para, para}, "\n\n")

	chunks := Chunk(text, 500, 50)

	require.Greater(t, len(chunks), 1)
	assert.Contains(t, chunks[0], "\n\n")
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 500)
	}
}

func TestChunk_OversizeSentenceStandsAlone(t *testing.T) {
	long := strings.Repeat("x", 150) + "."
	text := "Short one. " + long + " Another short one."

	chunks := Chunk(text, 100, 20)

	assert.Contains(t, chunks, long)
	for _, c := range chunks {
		if c == long {
			continue
		}
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 100)
	}
}

func TestChunk_NoOverlap(t *testing.T) {
	var parts []string
	for i := 0; i < 40; i++ {
		parts = append(parts, fmt.Sprintf("Item %02d ships in two days.", i))
	}

	chunks := Chunk(strings.Join(parts, " "), 200, 0)

	require.Greater(t, len(chunks), 1)
	var words []string
	for _, c := range chunks {
		words = append(words, strings.Fields(c)...)
	}
	assert.Equal(t, strings.Fields(strings.Join(parts, " ")), words)
}

func TestChunk_SizeBound(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	vocab := []string{"order", "refund", "shipping", "account", "password", "invoice", "delivery", "the", "a", "is"}

	for round := 0; round < 25; round++ {
		var paragraphs []string
		for p := 0; p < 1+rng.Intn(8); p++ {
			var sb strings.Builder
			for s := 0; s < 1+rng.Intn(12); s++ {
				for w := 0; w < 3+rng.Intn(8); w++ {
					if w > 0 {
						sb.WriteByte(' ')
					}
					sb.WriteString(vocab[rng.Intn(len(vocab))])
				}
				sb.WriteString(". ")
			}
			paragraphs = append(paragraphs, sb.String())
		}
		text := strings.Join(paragraphs, "\n\n\n")
		max := 150 + rng.Intn(400)
		overlap := rng.Intn(max / 2)

		for _, c := range Chunk(text, max, overlap) {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), max, "round %d", round)
			assert.NotEmpty(t, strings.TrimSpace(c))
		}
	}
}

func TestSplit_Coverage(t *testing.T) {
	text := strings.Repeat("Our store opens at nine. Closing time is six! Need help? ", 40) +
		"\n\n" + strings.Repeat("Warranty covers parts and labour. ", 30)

	segments := split(text, 300, 60)
	require.Greater(t, len(segments), 1)

	var bodies []string
	for _, s := range segments {
		bodies = append(bodies, strings.Fields(s.body)...)
		assert.Equal(t, s.String(), strings.TrimSpace(s.String()))
	}
	assert.Equal(t, strings.Fields(Normalize(text)), bodies)

	for i := 1; i < len(segments); i++ {
		prev := strings.Join(strings.Fields(segments[i-1].String()), " ")
		assert.True(t, strings.HasSuffix(prev, segments[i].seed), "seed %d is not a tail of the previous chunk", i)
	}
}

func TestSentences(t *testing.T) {
	got := sentences("...wait. Is it open? Yes! trailing words")
	assert.Equal(t, []string{"...wait.", "Is it open?", "Yes!", "trailing words"}, got)
}

func TestTailWords(t *testing.T) {
	assert.Equal(t, "three four", tailWords("one two three four", 10))
	assert.Equal(t, "", tailWords("one two", 0))
	assert.Equal(t, "", tailWords("abcdefghijk", 5))
}

// sharedWords returns the longest word-aligned suffix of a that is also a
// prefix of b.
func sharedWords(a, b string) string {
	words := strings.Fields(a)
	for i := range words {
		candidate := strings.Join(words[i:], " ")
		if strings.HasPrefix(b, candidate+" ") {
			return candidate
		}
	}
	return ""
}
