package rag

import (
	"fmt"
	"strings"

	"docuchat/internal/models"
)

// Assemble packs results in descending rank order into a bounded context
// block, each prefixed with its ordinal marker. Adding stops at the first
// result that would push the block past maxChars, so lower-ranked results
// are always the ones dropped. Ordinals are contiguous from 1 and every
// ordinal present in the text has exactly one citation.
func Assemble(results []models.RetrievalResult, maxChars int) (string, []models.Citation) {
	var b strings.Builder
	var citations []models.Citation

	for _, res := range results {
		ordinal := len(citations) + 1
		block := fmt.Sprintf("[%d] (%s):\n%s", ordinal, res.Chunk.FileName, res.Chunk.Content)
		sep := ""
		if b.Len() > 0 {
			sep = "\n\n"
		}
		if b.Len()+len(sep)+len(block) > maxChars {
			break
		}
		b.WriteString(sep)
		b.WriteString(block)
		citations = append(citations, models.Citation{
			Ordinal:   ordinal,
			FileName:  res.Chunk.FileName,
			SourceURL: res.Chunk.SourceURL,
		})
	}
	return b.String(), citations
}
