// Package polyline implements the encoded polyline format used by
// openrouteservice and Google for route geometry, at five decimal places.
// See https://developers.google.com/maps/documentation/utilities/polylinealgorithm.
package polyline

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/pathpredict/pathpredict/pkg/geo"
)

const factor = 1e5

// ErrMalformed is returned for input that ends mid-value, contains bytes
// outside the encoding alphabet, or holds an odd number of values.
var ErrMalformed = errors.New("malformed polyline")

// Decode parses an encoded polyline. An empty string yields no coordinates.
func Decode(encoded string) ([]geo.Coordinate, error) {
	if encoded == "" {
		return nil, nil
	}

	coords := make([]geo.Coordinate, 0, len(encoded)/4)
	var lat, lon int64
	for pos := 0; pos < len(encoded); {
		dLat, next, err := readValue(encoded, pos)
		if err != nil {
			return nil, err
		}
		if next == len(encoded) {
			return nil, fmt.Errorf("%w: latitude without longitude at offset %d", ErrMalformed, pos)
		}
		dLon, next, err := readValue(encoded, next)
		if err != nil {
			return nil, err
		}
		pos = next

		lat += dLat
		lon += dLon
		coords = append(coords, geo.Coordinate{Lat: float64(lat) / factor, Lon: float64(lon) / factor})
	}
	return coords, nil
}

// readValue reads one zig-zag encoded delta starting at pos.
func readValue(s string, pos int) (int64, int, error) {
	var result uint64
	for shift := uint(0); ; shift += 5 {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("%w: truncated value", ErrMalformed)
		}
		c := s[pos]
		if c < 63 || c > 126 || shift > 60 {
			return 0, pos, fmt.Errorf("%w: invalid byte %q at offset %d", ErrMalformed, c, pos)
		}
		pos++

		chunk := uint64(c - 63)
		result |= (chunk & 0x1f) << shift
		if chunk < 0x20 {
			break
		}
	}

	v := int64(result >> 1)
	if result&1 != 0 {
		v = ^v
	}
	return v, pos, nil
}

// Encode is the inverse of Decode, rounding to five decimal places.
func Encode(coords []geo.Coordinate) string {
	var b strings.Builder
	b.Grow(len(coords) * 8)

	var prevLat, prevLon int64
	for _, c := range coords {
		lat := int64(math.Round(c.Lat * factor))
		lon := int64(math.Round(c.Lon * factor))
		writeValue(&b, lat-prevLat)
		writeValue(&b, lon-prevLon)
		prevLat, prevLon = lat, lon
	}
	return b.String()
}

func writeValue(b *strings.Builder, v int64) {
	u := uint64(v) << 1
	if v < 0 {
		u = ^u
	}
	for u >= 0x20 {
		b.WriteByte(byte(0x20|(u&0x1f)) + 63)
		u >>= 5
	}
	b.WriteByte(byte(u) + 63)
}

// Length is the haversine length of the line in meters.
func Length(coords []geo.Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(coords); i++ {
		total += geo.Distance(coords[i-1], coords[i])
	}
	return total
}

// Sample walks the line and returns its first point, a point every
// intervalMeters along it, and its last point. The worker uses it to pick
// forecast locations along a corridor. A non-positive interval returns the
// input unchanged.
func Sample(coords []geo.Coordinate, intervalMeters float64) []geo.Coordinate {
	if len(coords) == 0 {
		return nil
	}
	if intervalMeters <= 0 {
		return coords
	}

	sampled := []geo.Coordinate{coords[0]}
	walked := 0.0 // since the last sample

	for i := 1; i < len(coords); i++ {
		from, to := coords[i-1], coords[i]
		left := geo.Distance(from, to)

		for left > 0 && walked+left >= intervalMeters {
			step := intervalMeters - walked
			from = geo.Interpolate(from, to, step/left)
			sampled = append(sampled, from)
			left -= step
			walked = 0
		}
		walked += left
	}

	if last := coords[len(coords)-1]; sampled[len(sampled)-1] != last {
		sampled = append(sampled, last)
	}
	return sampled
}
