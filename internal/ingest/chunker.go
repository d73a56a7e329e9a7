package ingest

import "strings"

// Chunker splits extracted text into embeddable fragments. The default
// policy splits on sentence-terminating periods, trims each fragment and
// drops empty ones. When MaxRunes is set, fragments are packed into
// bounded chunks with optional rune overlap between neighbours; callers
// must not depend on exact chunk boundaries either way.
type Chunker struct {
	MaxRunes     int
	OverlapRunes int
}

// Chunk returns the non-empty fragments of text, in order. Empty input
// yields nil; input without periods yields a single whole-trimmed chunk.
func (c Chunker) Chunk(text string) []string {
	parts := strings.Split(text, ".")
	var sentences []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		sentences = append(sentences, p)
	}
	if len(sentences) == 0 {
		// only period-free input falls back to a single whole chunk;
		// punctuation-only input yields nothing
		if strings.Contains(text, ".") {
			return nil
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}
	if c.MaxRunes <= 0 {
		return sentences
	}
	return c.pack(sentences)
}

// pack greedily joins sentences into chunks of at most MaxRunes runes,
// carrying the tail of each chunk into the next when overlap is set.
func (c Chunker) pack(sentences []string) []string {
	overlap := c.OverlapRunes
	if overlap >= c.MaxRunes {
		overlap = c.MaxRunes / 2
	}
	var (
		chunks  []string
		current strings.Builder
		count   int
	)
	flush := func() string {
		if count == 0 {
			return ""
		}
		s := current.String()
		chunks = append(chunks, s)
		current.Reset()
		count = 0
		return s
	}
	for _, sentence := range sentences {
		runes := []rune(sentence)
		// A single oversized sentence becomes windows of its own.
		if len(runes) > c.MaxRunes {
			flush()
			step := c.MaxRunes - overlap
			if step <= 0 {
				step = c.MaxRunes
			}
			for start := 0; start < len(runes); start += step {
				end := start + c.MaxRunes
				if end > len(runes) {
					end = len(runes)
				}
				chunks = append(chunks, string(runes[start:end]))
				if end == len(runes) {
					break
				}
			}
			continue
		}
		if count > 0 && count+2+len(runes) > c.MaxRunes {
			prev := flush()
			if overlap > 0 {
				tail := []rune(prev)
				if len(tail) > overlap {
					tail = tail[len(tail)-overlap:]
				}
				current.WriteString(string(tail))
				count = len(tail)
			}
		}
		if count > 0 {
			current.WriteString(". ")
			count += 2
		}
		current.WriteString(sentence)
		count += len(runes)
	}
	flush()
	return chunks
}
