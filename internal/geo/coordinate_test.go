package geo

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestCoordinate_Validate(t *testing.T) {
	tests := []struct {
		name    string
		coord   Coordinate
		wantErr bool
	}{
		{name: "origin", coord: Coordinate{Lat: 0, Lon: 0}},
		{name: "poles and antimeridian", coord: Coordinate{Lat: 90, Lon: -180}},
		{name: "south pole", coord: Coordinate{Lat: -90, Lon: 180}},
		{name: "typical field", coord: Coordinate{Lat: 18.52, Lon: 73.85}},
		{name: "latitude too high", coord: Coordinate{Lat: 90.01, Lon: 0}, wantErr: true},
		{name: "longitude too low", coord: Coordinate{Lat: 0, Lon: -180.5}, wantErr: true},
		{name: "NaN latitude", coord: Coordinate{Lat: math.NaN(), Lon: 0}, wantErr: true},
		{name: "infinite longitude", coord: Coordinate{Lat: 0, Lon: math.Inf(1)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.coord.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCoordinate)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCoordinate_Point(t *testing.T) {
	p := Coordinate{Lat: 12.5, Lon: 77.25}.Point()

	assert.Equal(t, geom.XY, p.Layout())
	assert.Equal(t, SRID, p.SRID())
	assert.InDelta(t, 77.25, p.X(), 1e-12)
	assert.InDelta(t, 12.5, p.Y(), 1e-12)
}

func TestFromCoord(t *testing.T) {
	c := FromCoord(geom.Coord{-3.5, 40.25})
	assert.Equal(t, Coordinate{Lat: 40.25, Lon: -3.5}, c)
}

func TestFeature(t *testing.T) {
	data, err := Feature(Coordinate{Lat: 10, Lon: 20}, "abc", map[string]any{"soil_type": "Sandy"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Feature", got["type"])
	assert.Equal(t, "abc", got["id"])

	g := got["geometry"].(map[string]any)
	assert.Equal(t, "Point", g["type"])
	assert.Equal(t, []any{20.0, 10.0}, g["coordinates"])

	props := got["properties"].(map[string]any)
	assert.Equal(t, "Sandy", props["soil_type"])
}

func TestFeatureCollection_LengthMismatch(t *testing.T) {
	_, err := FeatureCollection([]Coordinate{{Lat: 1, Lon: 2}}, nil, nil)
	assert.Error(t, err)
}

func TestFeatureCollection(t *testing.T) {
	data, err := FeatureCollection(
		[]Coordinate{{Lat: 1, Lon: 2}, {Lat: 3, Lon: 4}},
		[]string{"a", "b"},
		[]map[string]any{{"n": 1}, {"n": 2}},
	)
	require.NoError(t, err)

	var got struct {
		Type     string           `json:"type"`
		Features []map[string]any `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "FeatureCollection", got.Type)
	assert.Len(t, got.Features, 2)
}
