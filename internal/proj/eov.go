// Package proj converts between the Hungarian Uniform National Projection
// (EOV, EPSG:23700) and WGS84 geographic coordinates (EPSG:4326).
//
// EOV is a Swiss-style double oblique conformal cylindrical projection on the
// GRS67 ellipsoid with the projection center at Gellérthegy. The inverse runs
// in three steps: unproject to HD72 geodetic coordinates, convert to
// geocentric XYZ, apply the 3-parameter Helmert shift to WGS84 and convert
// back to geodetic. The only iterative parts are the conformal-latitude
// inversion and the geocentric-to-geodetic conversion, both capped at
// maxIterations with a 1e-12 rad tolerance; everything else is closed form.
package proj

import (
	"fmt"
	"math"
)

// SRID constants for the two systems involved
const (
	SRID23700 = 23700 // EOV
	SRID4326  = 4326  // WGS84
)

// GRS67 ellipsoid (HD72 datum)
const (
	grs67A = 6378160.0
	grs67F = 1.0 / 298.247167427
)

// WGS84 ellipsoid
const (
	wgs84A = 6378137.0
	wgs84F = 1.0 / 298.257223563
)

// EOV projection constants
const (
	eovLat0   = (47.0 + 8.0/60.0 + 39.8174/3600.0) * math.Pi / 180.0 // Gellérthegy
	eovLon0   = (19.0 + 2.0/60.0 + 54.8584/3600.0) * math.Pi / 180.0
	eovScale  = 0.99993
	eovFalseE = 650000.0 // easting of the projection center
	eovFalseN = 200000.0 // northing of the projection center
)

// HD72 -> WGS84 Helmert translation, meters
const (
	shiftX = 52.17
	shiftY = -71.82
	shiftZ = -14.9
)

const (
	maxIterations = 15
	iterTolerance = 1e-12 // radians
)

// TransformError reports a numerically invalid transform input or result.
// It is fatal for the affected row only.
type TransformError struct {
	Easting  float64
	Northing float64
	Reason   string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("cannot transform (%g, %g): %s", e.Easting, e.Northing, e.Reason)
}

// derived projection constants, computed once
var (
	grs67E2 = 2*grs67F - grs67F*grs67F
	grs67E  = math.Sqrt(grs67E2)
	wgs84E2 = 2*wgs84F - wgs84F*wgs84F

	somercAlpha = math.Sqrt(1 + grs67E2*pow4(math.Cos(eovLat0))/(1-grs67E2))
	somercR     = eovScale * grs67A * math.Sqrt(1-grs67E2) /
		(1 - grs67E2*math.Sin(eovLat0)*math.Sin(eovLat0))
	somercB0 = math.Asin(math.Sin(eovLat0) / somercAlpha)
	somercK  = logTanHalf(somercB0) - somercAlpha*logTanHalf(eovLat0) +
		somercAlpha*grs67E/2*math.Log((1+grs67E*math.Sin(eovLat0))/(1-grs67E*math.Sin(eovLat0)))
)

func pow4(x float64) float64 { return x * x * x * x }

// logTanHalf is ln tan(pi/4 + x/2), the isometric latitude of a sphere.
func logTanHalf(x float64) float64 {
	return math.Log(math.Tan(math.Pi/4 + x/2))
}

// EOVToWGS84 converts an EOV (easting, northing) pair in meters to WGS84
// (longitude, latitude) in degrees. Pure function: identical inputs always
// produce identical outputs.
func EOVToWGS84(easting, northing float64) (lon, lat float64, err error) {
	if !isFinite(easting) || !isFinite(northing) {
		return 0, 0, &TransformError{easting, northing, "non-finite input"}
	}

	// Cylinder coordinates relative to the projection center.
	lbar := (easting - eovFalseE) / somercR
	bbar := 2*math.Atan(math.Exp((northing-eovFalseN)/somercR)) - math.Pi/2

	// Rotate the oblique sphere back: pseudo coordinates to sphere.
	sinB := math.Cos(somercB0)*math.Sin(bbar) + math.Sin(somercB0)*math.Cos(bbar)*math.Cos(lbar)
	b := math.Asin(sinB)
	l := math.Atan2(math.Cos(bbar)*math.Sin(lbar),
		math.Cos(somercB0)*math.Cos(bbar)*math.Cos(lbar)-math.Sin(somercB0)*math.Sin(bbar))

	lonHD := eovLon0 + l/somercAlpha

	// Invert the conformal latitude onto the GRS67 ellipsoid.
	c := (logTanHalf(b) - somercK) / somercAlpha
	phi := b
	for i := 0; i < maxIterations; i++ {
		es := grs67E * math.Sin(phi)
		next := 2*math.Atan(math.Exp(c+grs67E/2*math.Log((1+es)/(1-es)))) - math.Pi/2
		if math.Abs(next-phi) < iterTolerance {
			phi = next
			break
		}
		phi = next
	}

	// HD72 geodetic -> geocentric, shift, -> WGS84 geodetic.
	x, y, z := geodeticToXYZ(phi, lonHD, grs67A, grs67E2)
	x += shiftX
	y += shiftY
	z += shiftZ
	latW, lonW := xyzToGeodetic(x, y, z, wgs84A, wgs84E2)

	lon = lonW * 180 / math.Pi
	lat = latW * 180 / math.Pi
	if !isFinite(lon) || !isFinite(lat) {
		return 0, 0, &TransformError{easting, northing, "non-finite result"}
	}
	return lon, lat, nil
}

// WGS84ToEOV is the forward projection, used for round-trip verification.
func WGS84ToEOV(lon, lat float64) (easting, northing float64, err error) {
	if !isFinite(lon) || !isFinite(lat) {
		return 0, 0, &TransformError{lon, lat, "non-finite input"}
	}

	// WGS84 geodetic -> geocentric, reverse shift, -> HD72 geodetic.
	latRad := lat * math.Pi / 180
	lonRad := lon * math.Pi / 180
	x, y, z := geodeticToXYZ(latRad, lonRad, wgs84A, wgs84E2)
	x -= shiftX
	y -= shiftY
	z -= shiftZ
	phi, lam := xyzToGeodetic(x, y, z, grs67A, grs67E2)

	// Conformal latitude on the oblique sphere.
	es := grs67E * math.Sin(phi)
	s := somercAlpha*logTanHalf(phi) - somercAlpha*grs67E/2*math.Log((1+es)/(1-es)) + somercK
	b := 2*math.Atan(math.Exp(s)) - math.Pi/2
	l := somercAlpha * (lam - eovLon0)

	// Rotate onto the pseudo equator.
	sinBbar := math.Cos(somercB0)*math.Sin(b) - math.Sin(somercB0)*math.Cos(b)*math.Cos(l)
	bbar := math.Asin(sinBbar)
	lbar := math.Atan2(math.Cos(b)*math.Sin(l),
		math.Sin(somercB0)*math.Sin(b)+math.Cos(somercB0)*math.Cos(b)*math.Cos(l))

	easting = eovFalseE + somercR*lbar
	northing = eovFalseN + somercR*logTanHalf(bbar)
	if !isFinite(easting) || !isFinite(northing) {
		return 0, 0, &TransformError{lon, lat, "non-finite result"}
	}
	return easting, northing, nil
}

// geodeticToXYZ converts geodetic (radians, height 0) to geocentric meters.
func geodeticToXYZ(lat, lon, a, e2 float64) (x, y, z float64) {
	sinLat := math.Sin(lat)
	n := a / math.Sqrt(1-e2*sinLat*sinLat)
	x = n * math.Cos(lat) * math.Cos(lon)
	y = n * math.Cos(lat) * math.Sin(lon)
	z = n * (1 - e2) * sinLat
	return
}

// xyzToGeodetic converts geocentric meters to geodetic radians, iterating on
// the latitude. Heights are discarded; the source data has none.
func xyzToGeodetic(x, y, z, a, e2 float64) (lat, lon float64) {
	lon = math.Atan2(y, x)
	p := math.Hypot(x, y)
	lat = math.Atan2(z, p*(1-e2))
	for i := 0; i < maxIterations; i++ {
		sinLat := math.Sin(lat)
		n := a / math.Sqrt(1-e2*sinLat*sinLat)
		next := math.Atan2(z+e2*n*sinLat, p)
		if math.Abs(next-lat) < iterTolerance {
			return next, lon
		}
		lat = next
	}
	return lat, lon
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
