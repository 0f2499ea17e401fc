package source

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/compare-engine/internal/record"
)

// File reads a local CSV, JSON, XLSX or ZIP export.
type File struct {
	name    string
	Path    string
	Format  Format
	Options Options
}

// NewFile returns a File source; an empty format is detected from the path.
func NewFile(p string, format Format) *File {
	return &File{name: p, Path: p, Format: format}
}

// Name implements Source.
func (f *File) Name() string { return f.name }

// Load implements Source.
func (f *File) Load(ctx context.Context) ([]record.Raw, error) {
	format := f.Format
	if format == "" {
		format = DetectFormat(f.Path, "")
	}
	if format == "" {
		return nil, eris.Errorf("file: cannot detect format of %s", f.Path)
	}
	if format == FormatXLSX {
		return ReadXLSXFile(f.Path, f.Options)
	}

	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "file: open %s", f.Path)
	}
	defer fh.Close() //nolint:errcheck

	return Decode(ctx, format, fh, f.Options)
}
