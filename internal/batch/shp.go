package batch

import (
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/cropsense/internal/crs"
	"github.com/sells-group/cropsense/internal/geo"
)

// readShapefile reads one Point per record. Points are used as-is, polygons
// and multipoints by their centroid. The shapefile must be in geographic
// coordinates; its .prj is checked when present.
func readShapefile(path string, opts ReadOptions) ([]Point, error) {
	if err := checkGeographic(path); err != nil {
		return nil, err
	}
	dec := dbfDecoder(path)

	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	idField := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, opts.IDColumn) {
			idField = i
			break
		}
	}

	var points []Point
	for reader.Next() {
		n, shape := reader.Shape()
		p := Point{Row: n + 1, ID: strconv.Itoa(n + 1)}
		if idField >= 0 {
			if v := decodeAttribute(dec, reader.Attribute(idField)); v != "" {
				p.ID = v
			}
		}

		c, err := shapeCoordinate(shape)
		if err != nil {
			p.Err = eris.Wrapf(geo.ErrInvalidCoordinate, "record %d: %v", n+1, err)
		} else {
			p.Coordinate = c
		}
		points = append(points, p)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrap(err, "batch: read shapefile")
	}
	return points, nil
}

func checkGeographic(path string) error {
	prj, err := os.ReadFile(sidecar(path, ".prj"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return eris.Wrap(err, "batch: read .prj")
	}
	ok, err := crs.NewProjector().IsGeographic(strings.TrimSpace(string(prj)))
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrapf(ErrUnsupportedFormat, "shapefile %s is not in geographic coordinates", path)
	}
	return nil
}

func sidecar(path, ext string) string {
	return strings.TrimSuffix(path, ".shp") + ext
}

// dbfDecoder returns the attribute decoder named by the .cpg sidecar, or nil
// when attributes are UTF-8 or the code page is unknown.
func dbfDecoder(path string) *encoding.Decoder {
	data, err := os.ReadFile(sidecar(path, ".cpg"))
	if err != nil {
		return nil
	}
	cp := strings.ToUpper(strings.TrimSpace(string(data)))
	switch strings.NewReplacer(" ", "", "-", "", "_", "").Replace(cp) {
	case "UTF8", "65001":
		return nil
	case "1252", "ANSI1252", "CP1252", "WINDOWS1252":
		return charmap.Windows1252.NewDecoder()
	case "1251", "ANSI1251", "CP1251", "WINDOWS1251":
		return charmap.Windows1251.NewDecoder()
	case "88591", "ISO88591", "LATIN1":
		return charmap.ISO8859_1.NewDecoder()
	case "866", "CP866", "IBM866":
		return charmap.CodePage866.NewDecoder()
	default:
		zap.L().Warn("batch: unknown shapefile code page", zap.String("cpg", cp))
		return nil
	}
}

// decodeAttribute trims DBF padding and decodes raw bytes. Without a code
// page, non-UTF-8 bytes are read as Latin-1.
func decodeAttribute(dec *encoding.Decoder, raw string) string {
	raw = strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if dec == nil {
		if utf8.ValidString(raw) {
			return raw
		}
		dec = charmap.ISO8859_1.NewDecoder()
	}
	s, err := dec.String(raw)
	if err != nil {
		return raw
	}
	return s
}

func shapeCoordinate(shape shp.Shape) (geo.Coordinate, error) {
	var g geom.T
	switch s := shape.(type) {
	case *shp.Point:
		return geo.Coordinate{Lat: s.Y, Lon: s.X}, nil
	case *shp.PointZ:
		return geo.Coordinate{Lat: s.Y, Lon: s.X}, nil
	case *shp.PointM:
		return geo.Coordinate{Lat: s.Y, Lon: s.X}, nil
	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return geo.Coordinate{}, eris.New("empty multipoint")
		}
		flat := make([]float64, 0, len(s.Points)*2)
		for _, p := range s.Points {
			flat = append(flat, p.X, p.Y)
		}
		g = geom.NewMultiPointFlat(geom.XY, flat)
	case *shp.Polygon:
		mp := polygonRings(s)
		if mp == nil {
			return geo.Coordinate{}, eris.New("empty polygon")
		}
		g = mp
	case nil, *shp.Null:
		return geo.Coordinate{}, eris.New("null shape")
	default:
		return geo.Coordinate{}, eris.Errorf("unsupported shape type %T", shape)
	}

	c, err := xy.Centroid(g)
	if err != nil {
		return geo.Coordinate{}, eris.Wrap(err, "centroid")
	}
	return geo.FromCoord(c), nil
}

// polygonRings groups shapefile rings into polygons: clockwise rings start a
// new polygon, counter-clockwise rings are holes of the preceding one.
func polygonRings(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	var current *geom.Polygon
	flush := func() {
		if current != nil {
			if err := mp.Push(current); err != nil {
				zap.L().Debug("batch: skipping malformed polygon", zap.Error(err))
			}
		}
	}

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}
		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if xy.IsRingCounterClockwise(geom.XY, flat) && current != nil {
			if err := current.Push(ring); err != nil {
				zap.L().Debug("batch: skipping malformed hole", zap.Int32("part", i), zap.Error(err))
			}
			continue
		}
		flush()
		current = geom.NewPolygon(geom.XY)
		if err := current.Push(ring); err != nil {
			zap.L().Debug("batch: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
			current = nil
		}
	}
	flush()

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
