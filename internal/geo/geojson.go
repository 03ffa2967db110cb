package geo

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Feature encodes a coordinate and its properties as a GeoJSON Feature.
func Feature(c Coordinate, id string, props map[string]any) ([]byte, error) {
	f := &geojson.Feature{
		ID:         id,
		Geometry:   c.Point(),
		Properties: props,
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode feature")
	}
	return data, nil
}

// FeatureCollection encodes several point features as a GeoJSON FeatureCollection.
func FeatureCollection(coords []Coordinate, ids []string, props []map[string]any) ([]byte, error) {
	if len(ids) != len(coords) || len(props) != len(coords) {
		return nil, eris.New("geo: feature collection inputs differ in length")
	}
	fc := &geojson.FeatureCollection{
		Features: make([]*geojson.Feature, 0, len(coords)),
	}
	for i, c := range coords {
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         ids[i],
			Geometry:   c.Point(),
			Properties: props[i],
		})
	}
	data, err := json.Marshal(fc)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode feature collection")
	}
	return data, nil
}
