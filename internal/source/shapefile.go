package source

import (
	"context"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compare-engine/internal/record"
)

// Shapefile reads point features from an ESRI shapefile. Attribute columns
// become record fields; point geometry is added as "x" (longitude) and "y"
// (latitude) unless the attributes already carry them.
type Shapefile struct {
	name string
	Path string
}

// Name implements Source.
func (s *Shapefile) Name() string { return s.name }

// Load implements Source.
func (s *Shapefile) Load(ctx context.Context) ([]record.Raw, error) {
	reader, err := shp.Open(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", s.Path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	var out []record.Raw
	nonPoint := 0
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "shapefile: context cancelled")
		}
		_, shape := reader.Shape()

		rec := make(record.Raw, len(names)+2)
		for i, name := range names {
			v := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			if name != "" && v != "" {
				rec[name] = v
			}
		}

		switch p := shape.(type) {
		case *shp.Point:
			setIfAbsent(rec, "x", p.X)
			setIfAbsent(rec, "y", p.Y)
		case *shp.PointZ:
			setIfAbsent(rec, "x", p.X)
			setIfAbsent(rec, "y", p.Y)
		case *shp.PointM:
			setIfAbsent(rec, "x", p.X)
			setIfAbsent(rec, "y", p.Y)
		default:
			nonPoint++
		}
		out = append(out, rec)
	}

	if nonPoint > 0 {
		zap.L().Debug("shapefile: records without point geometry",
			zap.String("path", s.Path),
			zap.Int("count", nonPoint),
		)
	}
	return out, nil
}

func setIfAbsent(rec record.Raw, key string, v float64) {
	if _, ok := record.Resolve(rec, key); !ok {
		rec[key] = v
	}
}
