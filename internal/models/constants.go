package models

// Well-known metadata keys on a Chunk. The keys that apply depend on the
// file type; column values of tabular files are stored under their own
// column names.
const (
	MetaRowNumber  = "row_number"
	MetaPageNumber = "page_number"
	MetaSheetName  = "sheet_name"
)

// NoContextAnswer is returned when retrieval finds nothing relevant, so the
// assistant never fabricates an answer from an empty context.
const NoContextAnswer = "I could not find any relevant information in the indexed documents to answer that question."

var SystemPromptTemplate = `You are a document assistant that helps users query and understand their indexed business documents.

When answering questions:
1. Base your answers only on the provided context from the search results
2. Cite sources with their bracketed ordinal, e.g. [1], whenever you use them
3. If the information is not available in the context, say so clearly
4. Provide actionable insights when appropriate

Context from search results:
%s
`
