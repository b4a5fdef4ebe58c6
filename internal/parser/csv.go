package parser

import (
	"encoding/csv"
	"fmt"
	"io"
)

// csvBatchSize is the number of data rows per section.
const csvBatchSize = 20

// CSVParser renders a CSV file as one section per batch of rows, each
// holding a quoted csv block that repeats the header row.
type CSVParser struct{}

func (p *CSVParser) Convert(r io.Reader, filename string) (string, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}

	blocks := []string{heading(1, Stem(filename))}
	if len(records) == 0 {
		return joinBlocks(blocks), nil
	}

	header := records[0]
	dataRows := records[1:]
	if len(dataRows) == 0 {
		blocks = append(blocks, "```csv\n"+csvBlock([][]string{header})+"\n```")
		return joinBlocks(blocks), nil
	}

	for i := 0; i < len(dataRows); i += csvBatchSize {
		end := min(i+csvBatchSize, len(dataRows))
		rows := append([][]string{header}, dataRows[i:end]...)
		blocks = append(blocks,
			heading(2, fmt.Sprintf("Rows %d-%d", i+2, end+1)), // 1-indexed, skip header
			"```csv\n"+csvBlock(rows)+"\n```",
		)
	}
	return joinBlocks(blocks), nil
}
