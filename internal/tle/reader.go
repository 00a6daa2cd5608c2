package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ReadBlocks splits TLE text into element-set blocks. Both the 2-line form
// and the 3-line form with a title line are accepted, mixed freely. Blank
// lines are skipped and CRLF endings tolerated. Lines that do not pair up are
// still returned as incomplete blocks so the parser reports them.
func ReadBlocks(r io.Reader) ([]Block, error) {
	type numbered struct {
		text string
		num  int
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []numbered
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimRight(scanner.Text(), "\r\n \t")
		if n == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) != "" {
			lines = append(lines, numbered{text: line, num: n})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading TLE data: %w", err)
	}

	var blocks []Block
	for i := 0; i < len(lines); {
		b := Block{LineNumber: lines[i].num}
		if !isElementLine(lines[i].text, '1') && !isElementLine(lines[i].text, '2') {
			b.Name = cleanName(lines[i].text)
			i++
		}
		if i < len(lines) && isElementLine(lines[i].text, '1') {
			b.Line1 = lines[i].text
			i++
		}
		if i < len(lines) && isElementLine(lines[i].text, '2') {
			b.Line2 = lines[i].text
			i++
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func isElementLine(s string, marker byte) bool {
	return len(s) >= 2 && s[0] == marker && s[1] == ' '
}

// ParseBlocks parses every block. It never stops at a bad block: records
// holds the successes in block order and errs one error per failed block.
func (o ParseOptions) ParseBlocks(blocks []Block) (records []Record, errs []error) {
	records = make([]Record, 0, len(blocks))
	for _, b := range blocks {
		rec, err := o.ParseBlock(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

// ParseAll reads and parses every block in r. Malformed element sets are
// skipped with a warning log; only read errors are returned.
func (o ParseOptions) ParseAll(r io.Reader, logger *slog.Logger) ([]Record, error) {
	blocks, err := ReadBlocks(r)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(blocks))
	for _, b := range blocks {
		rec, err := o.ParseBlock(b)
		if err != nil {
			logger.Warn("skipping malformed TLE entry",
				"line_index", b.LineNumber,
				"name", b.Name,
				"error", err,
			)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
