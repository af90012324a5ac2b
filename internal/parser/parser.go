package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	gmtext "github.com/yuin/goldmark/text"

	"docuchat/internal/models"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// Options controls chunking of flowing-text documents. Tabular documents
// always produce one chunk per row.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.ChunkOverlap <= 0 {
		o.ChunkOverlap = defaultChunkOverlap
	}
	return o
}

// Parse reads a document and splits it into retrievable chunks with stable,
// position-derived IDs. A malformed or unsupported file yields zero chunks
// and a *models.ParseError so an ingestion run can continue; an empty file
// yields zero chunks and no error.
func Parse(filePath string, opts Options) ([]models.Chunk, error) {
	opts = opts.withDefaults()
	fileName := filepath.Base(filePath)
	ext := strings.ToLower(filepath.Ext(filePath))

	var chunks []models.Chunk
	var err error
	switch ext {
	case ".csv":
		chunks, err = parseCSV(filePath, opts)
	case ".xlsx":
		chunks, err = parseXLSX(filePath, opts)
	case ".ods":
		chunks, err = parseODS(filePath, opts)
	case ".pdf":
		chunks, err = parsePDF(filePath, opts)
	case ".docx":
		chunks, err = parseDOCX(filePath, opts)
	case ".txt":
		chunks, err = parseText(filePath, opts)
	case ".md":
		chunks, err = parseMarkdown(filePath, opts)
	default:
		err = fmt.Errorf("unsupported file format: %s", ext)
	}
	if err != nil {
		return nil, &models.ParseError{FileName: fileName, Err: err}
	}
	if len(chunks) == 0 {
		log.Warn().Str("file", fileName).Msg("Document produced no chunks")
	}
	return chunks, nil
}

func parseCSV(filePath string, opts Options) ([]models.Chunk, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	headers, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	rowNum := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, rowChunks(filePath, "csv", headers, record, rowNum, "", opts)...)
		rowNum++
	}
	return chunks, nil
}

func parseXLSX(filePath string, opts Options) ([]models.Chunk, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	rowNum := 0
	for _, sheet := range f.Sheets {
		if len(sheet.Rows) < 2 {
			continue
		}
		headers := make([]string, len(sheet.Rows[0].Cells))
		for i, cell := range sheet.Rows[0].Cells {
			headers[i] = cell.String()
		}
		for _, row := range sheet.Rows[1:] {
			values := make([]string, len(row.Cells))
			for i, cell := range row.Cells {
				values[i] = cell.String()
			}
			chunks = append(chunks, rowChunks(filePath, "xlsx", headers, values, rowNum, sheet.Name, opts)...)
			rowNum++
		}
	}
	return chunks, nil
}

func parseODS(filePath string, opts Options) ([]models.Chunk, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	rowNum := 0
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		if len(rows) < 2 {
			continue
		}
		headers := rows[0]
		for _, values := range rows[1:] {
			chunks = append(chunks, rowChunks(filePath, "ods", headers, values, rowNum, sheetName, opts)...)
			rowNum++
		}
	}
	return chunks, nil
}

func parsePDF(filePath string, opts Options) ([]models.Chunk, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	counter := 0
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, err
		}
		pageChunks := flowingChunks(filePath, "pdf", pageText, &counter, opts)
		for j := range pageChunks {
			pageChunks[j].Metadata[models.MetaPageNumber] = fmt.Sprintf("%d", i)
		}
		chunks = append(chunks, pageChunks...)
	}
	return chunks, nil
}

func parseDOCX(filePath string, opts Options) ([]models.Chunk, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var paragraphs []string
	for _, p := range strings.Split(r.Editable().GetContent(), "\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	counter := 0
	return flowingChunks(filePath, "docx", strings.Join(paragraphs, "\n\n"), &counter, opts), nil
}

func parseText(filePath string, opts Options) ([]models.Chunk, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	counter := 0
	return flowingChunks(filePath, "txt", string(data), &counter, opts), nil
}

func parseMarkdown(filePath string, opts Options) ([]models.Chunk, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	counter := 0
	return flowingChunks(filePath, "md", extractMarkdownText(data), &counter, opts), nil
}

// extractMarkdownText walks the goldmark AST and recovers the plain text,
// with block elements separated by paragraph breaks.
func extractMarkdownText(src []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(gmtext.NewReader(src))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
		case *ast.Paragraph, *ast.Heading:
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// rowChunks turns one tabular row into chunks. A row normally yields a
// single chunk; a row longer than the chunk size is hard-split and the
// extra parts get a stable part suffix on their ID.
func rowChunks(filePath, fileType string, headers, values []string, rowNum int, sheetName string, opts Options) []models.Chunk {
	var fields []string
	metadata := map[string]string{
		models.MetaRowNumber: fmt.Sprintf("%d", rowNum),
	}
	if sheetName != "" {
		metadata[models.MetaSheetName] = sheetName
	}
	for i, value := range values {
		if value == "" {
			continue
		}
		header := fmt.Sprintf("column_%d", i)
		if i < len(headers) && headers[i] != "" {
			header = headers[i]
		}
		fields = append(fields, fmt.Sprintf("%s: %s", header, value))
		metadata[header] = value
	}
	if len(fields) == 0 {
		return nil
	}

	fileName := filepath.Base(filePath)
	stem := fileStem(fileName)
	var chunks []models.Chunk
	// row parts never overlap
	for k, part := range chunkContent(strings.Join(fields, " | "), opts.ChunkSize, 0) {
		id := fmt.Sprintf("%s_row_%d", stem, rowNum)
		if k > 0 {
			id = fmt.Sprintf("%s_row_%d_%d", stem, rowNum, k)
		}
		chunks = append(chunks, models.Chunk{
			ID:       id,
			FileName: fileName,
			FileType: fileType,
			Title:    docTitle(fileName),
			Content:  part,
			Metadata: metadata,
		})
	}
	return chunks
}

// flowingChunks splits flowing text into overlapping chunks. The counter
// keeps IDs unique and ordered across multiple calls for the same file
// (one call per PDF page).
func flowingChunks(filePath, fileType, content string, counter *int, opts Options) []models.Chunk {
	fileName := filepath.Base(filePath)
	stem := fileStem(fileName)

	var chunks []models.Chunk
	for _, part := range chunkContent(content, opts.ChunkSize, opts.ChunkOverlap) {
		if strings.TrimSpace(part) == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{
			ID:       fmt.Sprintf("%s_chunk_%d", stem, *counter),
			FileName: fileName,
			FileType: fileType,
			Title:    docTitle(fileName),
			Content:  part,
			Metadata: map[string]string{},
		})
		*counter++
	}
	return chunks
}

// fileStem derives the index-key-safe ID prefix from a file name.
func fileStem(fileName string) string {
	stem := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "document"
	}
	return b.String()
}

func docTitle(fileName string) string {
	title := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return strings.ReplaceAll(title, "_", " ")
}
