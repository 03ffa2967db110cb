//go:build gdal

package raster

import (
	"github.com/lukeroth/gdal"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// GDAL-backed readers are only compiled with -tags gdal (cgo + libgdal).
func init() {
	for _, ext := range []string{".tif", ".tiff", ".vrt", ".img"} {
		RegisterFormat(ext, OpenGDAL)
	}
}

// OpenGDAL reads band 1 of any GDAL-readable raster.
func OpenGDAL(path string) (*Grid, error) {
	ds, err := gdal.Open(path, gdal.ReadOnly)
	if err != nil {
		zap.L().Error("raster: gdal open failed", zap.String("path", path), zap.Error(err))
		return nil, eris.Wrapf(err, "gdal: open %s", path)
	}
	defer ds.Close()

	if ds.RasterCount() < 1 {
		return nil, eris.Wrapf(ErrEmpty, "gdal: %s has no bands", path)
	}
	cols, rows := ds.RasterXSize(), ds.RasterYSize()
	band := ds.RasterBand(1)

	buf := make([]float64, cols*rows)
	if err := band.IO(gdal.Read, 0, 0, cols, rows, buf, cols, rows, 0, 0); err != nil {
		zap.L().Error("raster: gdal read band failed", zap.String("path", path), zap.Error(err))
		return nil, eris.Wrapf(err, "gdal: read %s", path)
	}

	var nodata *float64
	if v, ok := band.NoDataValue(); ok {
		nodata = &v
	}

	return NewGrid(cols, rows, buf, Affine(ds.GeoTransform()), ds.Projection(), nodata)
}
