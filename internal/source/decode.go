package source

import (
	"archive/zip"
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/compare-engine/internal/record"
)

// Format is a record serialization.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatZIP  Format = "zip"
)

// Options tunes decoding.
type Options struct {
	// Delimiter overrides CSV delimiter detection.
	Delimiter rune
	// Sheet selects an XLSX sheet by name; the first sheet is used otherwise.
	Sheet string
}

// DetectFormat guesses a format from a file name's extension, falling back to
// a MIME type. It returns "" when neither is recognized.
func DetectFormat(name, contentType string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	case ".json":
		return FormatJSON
	case ".xlsx":
		return FormatXLSX
	case ".zip":
		return FormatZIP
	}
	mt, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mt == "text/csv":
		return FormatCSV
	case mt == "application/json" || strings.HasSuffix(mt, "+json"):
		return FormatJSON
	case mt == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatXLSX
	case mt == "application/zip":
		return FormatZIP
	}
	return ""
}

// Decode parses r as format into raw records.
func Decode(ctx context.Context, format Format, r io.Reader, opts Options) ([]record.Raw, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(ctx, r, opts)
	case FormatJSON:
		return ParseJSON(ctx, r)
	case FormatXLSX, FormatZIP:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: read", format)
		}
		if format == FormatXLSX {
			return ParseXLSX(data, opts)
		}
		return parseZIP(ctx, data, opts)
	default:
		return nil, eris.Errorf("unsupported format %q", format)
	}
}

// ParseCSV reads a header row and returns one record per data row, keyed by
// trimmed header names. Columns with an empty header are dropped; short rows
// simply lack the missing keys.
func ParseCSV(ctx context.Context, r io.Reader, opts Options) ([]record.Raw, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out []record.Raw
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "csv: context cancelled")
		}
		row, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		if rec := zipRow(header, row); rec != nil {
			out = append(out, rec)
		}
	}
}

// sniffDelimiter picks ';', '\t' or ',' by counting them in the first line.
func sniffDelimiter(br *bufio.Reader) rune {
	line, _ := br.Peek(br.Size())
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	best, bestN := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// zipRow pairs header names with cell values. It returns nil for rows whose
// cells are all blank.
func zipRow(header, row []string) record.Raw {
	rec := make(record.Raw, len(header))
	blank := true
	for i, h := range header {
		if h == "" || i >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[i])
		if v != "" {
			blank = false
		}
		rec[h] = v
	}
	if blank {
		return nil
	}
	return rec
}

var jsonWrapperKeys = map[string]bool{
	"data": true, "records": true, "items": true, "results": true,
	"developers": true, "manufacturers": true, "entities": true,
}

// ParseJSON decodes a JSON array of objects, or an object wrapping one under a
// key such as "data" or "developers". Array elements that are not objects are
// skipped.
func ParseJSON(ctx context.Context, r io.Reader) ([]record.Raw, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "json: read opening token")
	}

	switch tok {
	case json.Delim('['):
		return decodeArray(ctx, dec)
	case json.Delim('{'):
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, eris.Wrap(err, "json: read key")
			}
			key, _ := keyTok.(string)
			if !jsonWrapperKeys[strings.ToLower(key)] {
				var skip json.RawMessage
				if err := dec.Decode(&skip); err != nil {
					return nil, eris.Wrapf(err, "json: skip %q", key)
				}
				continue
			}
			t, err := dec.Token()
			if err != nil {
				return nil, eris.Wrapf(err, "json: read %q", key)
			}
			if t != json.Delim('[') {
				return nil, eris.Errorf("json: %q is not an array", key)
			}
			return decodeArray(ctx, dec)
		}
		return nil, eris.New("json: object holds no record array")
	default:
		return nil, eris.Errorf("json: expected array or object, got %v", tok)
	}
}

func decodeArray(ctx context.Context, dec *json.Decoder) ([]record.Raw, error) {
	var out []record.Raw
	skipped := 0
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "json: context cancelled")
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, eris.Wrap(err, "json: decode element")
		}
		rec := record.FromAny(v)
		if rec == nil {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	if skipped > 0 {
		zap.L().Debug("json: skipped non-object elements", zap.Int("skipped", skipped))
	}
	return out, nil
}

// ParseXLSX reads a workbook's sheet. The first non-blank row is the header.
func ParseXLSX(data []byte, opts Options) ([]record.Raw, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}
	return sheetRecords(f, opts)
}

// ReadXLSXFile is ParseXLSX for a file on disk.
func ReadXLSXFile(p string, opts Options) ([]record.Raw, error) {
	f, err := xlsx.OpenFile(p)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", p)
	}
	return sheetRecords(f, opts)
}

func sheetRecords(f *xlsx.File, opts Options) ([]record.Raw, error) {
	var sheet *xlsx.Sheet
	if opts.Sheet != "" {
		s, ok := f.Sheet[opts.Sheet]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.Sheet)
		}
		sheet = s
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("xlsx: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}

	var header []string
	var out []record.Raw
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			cells[i] = strings.TrimSpace(c.String())
		}
		if header == nil {
			if strings.Join(cells, "") == "" {
				continue
			}
			header = cells
			continue
		}
		if rec := zipRow(header, cells); rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// parseZIP decodes the first supported data file in an archive, by name.
func parseZIP(ctx context.Context, data []byte, opts Options) ([]record.Raw, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(path.Base(f.Name), ".") {
			continue
		}
		if ft := DetectFormat(f.Name, ""); ft != "" && ft != FormatZIP {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, eris.New("zip: no csv, json or xlsx file in archive")
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	f := files[0]
	rc, err := f.Open()
	if err != nil {
		return nil, eris.Wrapf(err, "zip: open %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck
	return Decode(ctx, DetectFormat(f.Name, ""), rc, opts)
}
