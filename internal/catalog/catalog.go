// Package catalog describes which rasters feed an assessment: one NDVI layer,
// the soil texture fractions and the soil depth bands.
package catalog

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = eris.New("catalog: invalid")

// Role is the part a layer plays in an assessment.
type Role string

const (
	RoleNDVI      Role = "ndvi"
	RoleSoilType  Role = "soil_type"
	RoleSoilDepth Role = "soil_depth"
)

// Layer is one raster file.
type Layer struct {
	Label            string   `yaml:"label" json:"label"`
	Path             string   `yaml:"path" json:"path"`
	NoData           *float64 `yaml:"nodata,omitempty" json:"nodata,omitempty"`
	CRS              string   `yaml:"crs,omitempty" json:"crs,omitempty"`
	NeighborFallback bool     `yaml:"neighbor_fallback" json:"neighbor_fallback"`
}

// NDVILayer adds the integer encoding factor of the NDVI raster. Zero means
// "use the configured default".
type NDVILayer struct {
	Layer `yaml:",inline"`
	Scale float64 `yaml:"scale" json:"scale"`
}

// Catalog is the full set of layers.
type Catalog struct {
	DataDir   string    `yaml:"data_dir"`
	NDVI      NDVILayer `yaml:"ndvi"`
	SoilType  []Layer   `yaml:"soil_type"`
	SoilDepth []Layer   `yaml:"soil_depth"`
}

// Entry is a layer tagged with its role, in load order.
type Entry struct {
	Role  Role
	Layer Layer
}

// optionalDepthBands are used by Default only when present in the data
// directory; the bundled data ships the 0-25 cm band alone.
var optionalDepthBands = []Layer{
	{Label: "25-50 cm", Path: "fsoildep25_50.asc"},
	{Label: "50-100 cm", Path: "fsoildep50_100.asc"},
	{Label: "100+ cm", Path: "fsoildep100_plus.asc"},
}

// Default returns the layout of the bundled data directory: soil texture
// fractions fsandy/floamy/fclayey/fclayskeletal, the fsoildep0_25 depth band
// plus any deeper fsoildep* bands found on disk, and ndvi.asc.
func Default(dataDir string) *Catalog {
	c := &Catalog{
		DataDir: dataDir,
		NDVI: NDVILayer{
			Layer: Layer{Label: "NDVI", Path: "ndvi.asc"},
		},
		SoilType: []Layer{
			{Label: "Sandy", Path: "fsandy.asc"},
			{Label: "Loamy", Path: "floamy.asc"},
			{Label: "Clayey", Path: "fclayey.asc"},
			{Label: "Clay Skeletal", Path: "fclayskeletal.asc"},
		},
		SoilDepth: []Layer{
			{Label: "0-25 cm", Path: "fsoildep0_25.asc"},
		},
	}
	for _, l := range optionalDepthBands {
		if _, err := os.Stat(c.Resolve(l.Path)); err == nil {
			c.SoilDepth = append(c.SoilDepth, l)
		}
	}
	return c
}

// Load reads a YAML manifest. A relative data_dir (or a missing one) is
// resolved against the manifest's directory.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: parse %s", path)
	}
	base := filepath.Dir(path)
	switch {
	case c.DataDir == "":
		c.DataDir = base
	case !filepath.IsAbs(c.DataDir):
		c.DataDir = filepath.Join(base, c.DataDir)
	}
	return c, nil
}

// Parse decodes a manifest without resolving paths.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, eris.Wrap(err, "catalog: unmarshal")
	}
	if c.NDVI.Label == "" {
		c.NDVI.Label = "NDVI"
	}
	return &c, nil
}

// Validate checks the catalog is usable. Files are not opened here.
func (c *Catalog) Validate() error {
	if strings.TrimSpace(c.NDVI.Path) == "" {
		return eris.Wrap(ErrInvalid, "ndvi layer has no path")
	}
	if c.NDVI.Scale < 0 {
		return eris.Wrapf(ErrInvalid, "ndvi scale %v is negative", c.NDVI.Scale)
	}
	if len(c.SoilType) == 0 {
		return eris.Wrap(ErrInvalid, "no soil_type layers")
	}
	if len(c.SoilDepth) == 0 {
		return eris.Wrap(ErrInvalid, "no soil_depth layers")
	}
	for _, group := range []struct {
		role   Role
		layers []Layer
	}{{RoleSoilType, c.SoilType}, {RoleSoilDepth, c.SoilDepth}} {
		seen := make(map[string]bool, len(group.layers))
		for i, l := range group.layers {
			label := strings.ToLower(strings.TrimSpace(l.Label))
			if label == "" {
				return eris.Wrapf(ErrInvalid, "%s layer %d has no label", group.role, i)
			}
			if strings.TrimSpace(l.Path) == "" {
				return eris.Wrapf(ErrInvalid, "%s layer %q has no path", group.role, l.Label)
			}
			if seen[label] {
				return eris.Wrapf(ErrInvalid, "%s label %q is duplicated", group.role, l.Label)
			}
			seen[label] = true
		}
	}
	return nil
}

// Resolve returns p joined to the data directory unless it is absolute.
func (c *Catalog) Resolve(p string) string {
	if filepath.IsAbs(p) || c.DataDir == "" {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// Entries lists every layer: NDVI first, then soil types, then depth bands.
// Paths are resolved against the data directory.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, 1+len(c.SoilType)+len(c.SoilDepth))
	ndvi := c.NDVI.Layer
	ndvi.Path = c.Resolve(ndvi.Path)
	out = append(out, Entry{Role: RoleNDVI, Layer: ndvi})
	for _, l := range c.SoilType {
		l.Path = c.Resolve(l.Path)
		out = append(out, Entry{Role: RoleSoilType, Layer: l})
	}
	for _, l := range c.SoilDepth {
		l.Path = c.Resolve(l.Path)
		out = append(out, Entry{Role: RoleSoilDepth, Layer: l})
	}
	return out
}

// WithNeighborFallback returns a copy with the fallback enabled on every
// layer. Used when the classify.neighbor_fallback setting is on.
func (c *Catalog) WithNeighborFallback() *Catalog {
	cp := *c
	cp.NDVI.NeighborFallback = true
	cp.SoilType = make([]Layer, len(c.SoilType))
	for i, l := range c.SoilType {
		l.NeighborFallback = true
		cp.SoilType[i] = l
	}
	cp.SoilDepth = make([]Layer, len(c.SoilDepth))
	for i, l := range c.SoilDepth {
		l.NeighborFallback = true
		cp.SoilDepth[i] = l
	}
	return &cp
}
