package batch

import (
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cropsense/internal/geo"
)

// writeGeoJSON writes rows as a FeatureCollection of points. Rows without an
// outcome carry only their error.
func writeGeoJSON(w io.Writer, rows []Row) error {
	coords := make([]geo.Coordinate, len(rows))
	ids := make([]string, len(rows))
	props := make([]map[string]any, len(rows))
	for i, r := range rows {
		coords[i] = r.Point.Coordinate
		ids[i] = r.Point.ID
		if r.Outcome != nil {
			props[i] = r.Outcome.Properties()
		} else {
			props[i] = map[string]any{}
		}
		if r.Err != nil {
			props[i]["error"] = r.Err.Error()
		}
	}

	data, err := geo.FeatureCollection(coords, ids, props)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "batch: write geojson")
	}
	return nil
}
