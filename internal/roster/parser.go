package roster

import (
	"bytes"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"

	"github.com/kimshangyup/neulbom/pkg/errors"
)

// MaxUploadSize caps roster uploads at 5 MiB, checked before any parsing.
const MaxUploadSize = 5 * 1024 * 1024

// Table is the parser output: an ordered row set keyed by header name.
// Header names are lower-cased and trimmed.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse decodes an uploaded roster file into a Table. File type is
// dispatched by extension; delimited text goes through an ordered encoding
// fallback chain. Pure transform, no side effects.
func (p *Parser) Parse(data []byte, filename string) (*Table, error) {
	if int64(len(data)) > MaxUploadSize {
		return nil, errors.ErrOversizedFile
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return p.parseCSV(data)
	case ".xlsx", ".xls":
		return p.parseSpreadsheet(data)
	default:
		return nil, errors.ErrUnsupportedFormat
	}
}

// Encodings are tried in a fixed order; the first one that both decodes
// cleanly and parses as CSV wins. Korean legacy uploads are common, so the
// chain covers EUC-KR and its CP949 superset after the UTF-8 variants.
func (p *Parser) parseCSV(data []byte) (*Table, error) {
	for _, dec := range []func([]byte) (string, bool){
		decodeUTF8SIG,
		decodeUTF8,
		decodeEUCKR,
		decodeCP949,
	} {
		text, ok := dec(data)
		if !ok {
			continue
		}
		table, err := readCSV(text)
		if stderrors.Is(err, errors.ErrEmptyFile) {
			// The bytes decoded fine; the file just has no rows. Trying
			// more encodings would only mask that.
			return nil, err
		}
		if err != nil {
			continue
		}
		return table, nil
	}
	return nil, errors.ErrUndecodableText
}

func decodeUTF8SIG(data []byte) (string, bool) {
	bom := []byte{0xEF, 0xBB, 0xBF}
	if !bytes.HasPrefix(data, bom) {
		return "", false
	}
	trimmed := bytes.TrimPrefix(data, bom)
	if !utf8.Valid(trimmed) {
		return "", false
	}
	return string(trimmed), true
}

func decodeUTF8(data []byte) (string, bool) {
	if !utf8.Valid(data) {
		return "", false
	}
	return string(data), true
}

func decodeEUCKR(data []byte) (string, bool) {
	return decodeKorean(data)
}

// The x/text EUC-KR table follows the WHATWG definition, which already
// includes the CP949 extensions, so both chain entries share one decoder.
func decodeCP949(data []byte) (string, bool) {
	return decodeKorean(data)
}

func decodeKorean(data []byte) (string, bool) {
	decoded, err := io.ReadAll(korean.EUCKR.NewDecoder().Reader(bytes.NewReader(data)))
	if err != nil {
		return "", false
	}
	if bytes.ContainsRune(decoded, utf8.RuneError) {
		return "", false
	}
	return string(decoded), true
}

func readCSV(text string) (*Table, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	return buildTable(records)
}

func (p *Parser) parseSpreadsheet(data []byte) (*Table, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrEmptyFile
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet rows: %w", err)
	}
	return buildTable(rows)
}

// buildTable turns raw records into a header-keyed Table. The first record
// is the header; rows shorter than the header are padded with empties.
func buildTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, errors.ErrEmptyFile
	}

	columns := make([]string, 0, len(records[0]))
	for _, col := range records[0] {
		columns = append(columns, strings.ToLower(strings.TrimSpace(col)))
	}

	table := &Table{Columns: columns}
	for _, record := range records[1:] {
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
