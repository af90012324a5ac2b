package parser

import "strings"

// chunkContent splits content into chunks of at most maxChars characters.
// Adjacent chunks share the last overlapChars characters of the previous
// chunk as a prefix, so no semantic unit is lost across a boundary. Break
// points prefer a paragraph break, then a line break, then a word boundary
// inside the lookback window before falling back to a hard character cut.
func chunkContent(content string, maxChars, overlapChars int) []string {
	if maxChars <= 0 || len(content) == 0 {
		return nil
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	// soft breaks may shorten a chunk to four fifths of maxChars; keep the
	// overlap strictly below that so every chunk outgrows its overlap prefix
	if overlapChars*5 >= maxChars*4 {
		overlapChars = maxChars / 2
	}

	contentLen := len(content)
	if contentLen <= maxChars {
		return []string{content}
	}

	var chunks []string
	start := 0
	for start < contentLen {
		end := start + maxChars
		if end >= contentLen {
			end = contentLen
		} else {
			end = softBreak(content, start, end)
		}

		chunks = append(chunks, content[start:end])
		if end == contentLen {
			break
		}

		next := end - overlapChars
		if next <= start {
			// chunk was shorter than the overlap, continue without one
			next = end
		}
		start = next
	}
	return chunks
}

// softBreak moves end back to a natural boundary within the last fifth of
// the chunk. It never moves end at or before start.
func softBreak(content string, start, end int) int {
	lookBack := (end - start) / 5
	if lookBack < 1 {
		return end
	}
	window := content[end-lookBack : end]

	if cut := strings.LastIndex(window, "\n\n"); cut >= 0 {
		if b := end - lookBack + cut + 2; b > start {
			return b
		}
	}
	if cut := strings.LastIndexByte(window, '\n'); cut >= 0 {
		if b := end - lookBack + cut + 1; b > start {
			return b
		}
	}
	for i := end - 1; i >= end-lookBack && i > start; i-- {
		if content[i] == ' ' || content[i] == '.' {
			return i + 1
		}
	}
	return end
}

// joinChunks reassembles the original content from chunks produced with the
// given overlap, dropping each chunk's repeated prefix.
func joinChunks(chunks []string, overlapChars int) string {
	var b strings.Builder
	for i, chunk := range chunks {
		if i == 0 {
			b.WriteString(chunk)
			continue
		}
		if len(chunk) > overlapChars {
			b.WriteString(chunk[overlapChars:])
		}
	}
	return b.String()
}
