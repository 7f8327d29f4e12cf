package routing

import (
	"math"
	"time"

	"github.com/pathpredict/pathpredict/pkg/geo"
)

// DefaultSegmentDistance is the target ground distance of a route segment in meters.
const DefaultSegmentDistance = 5000.0

// maxEdgeSubdivisions bounds how many points a single long edge may be split into.
const maxEdgeSubdivisions = 1000

// Segment is a contiguous span of a route bounded by approximate ground distance.
type Segment struct {
	Index          int            `json:"index" yaml:"index"`
	Start          geo.Coordinate `json:"start" yaml:"start"`
	End            geo.Coordinate `json:"end" yaml:"end"`
	Center         geo.Coordinate `json:"center" yaml:"center"`
	DistanceMeters float64        `json:"distance_meters" yaml:"distance_meters"`
	// ETA is the estimated time the segment's end point is reached.
	ETA time.Time `json:"eta" yaml:"eta"`
	// Coordinates spans Start..End inclusive. Consecutive segments share their
	// boundary coordinate.
	Coordinates []geo.Coordinate `json:"coordinates" yaml:"coordinates"`
}

// SegmentRoute splits route into consecutive segments of roughly targetMeters
// ground distance. A segment closes once its accumulated distance reaches the
// target, or at the final coordinate pair, so the last segment may be shorter.
//
// ETAs interpolate the route duration by cumulative distance over total
// distance; the final segment always arrives at departure plus the route
// duration. Edges longer than the target are first split into
// round(length/target) equal parts so sparse geometry still yields
// target-sized segments.
//
// Routes with fewer than two coordinates produce no segments.
func SegmentRoute(route *Route, targetMeters float64, departure time.Time) ([]Segment, error) {
	if !(targetMeters > 0) {
		return nil, ErrInvalidSegmentDistance
	}
	if route == nil || len(route.Coordinates) < 2 {
		return nil, nil
	}

	coords := densify(route.Coordinates, targetMeters)

	total := 0.0
	for i := 1; i < len(coords); i++ {
		total += geo.Distance(coords[i-1], coords[i])
	}
	duration := float64(route.Duration())

	var segments []Segment
	start := 0
	accumulated := 0.0
	cumulative := 0.0
	last := len(coords) - 2

	for i := 0; i <= last; i++ {
		d := geo.Distance(coords[i], coords[i+1])
		accumulated += d
		cumulative += d

		if accumulated < targetMeters && i < last {
			continue
		}

		ratio := 1.0
		if i < last && total > 0 {
			ratio = cumulative / total
		}

		end := i + 1
		span := make([]geo.Coordinate, end-start+1)
		copy(span, coords[start:end+1])

		segments = append(segments, Segment{
			Index:          len(segments),
			Start:          coords[start],
			End:            coords[end],
			Center:         coords[(start+end)/2],
			DistanceMeters: accumulated,
			ETA:            departure.Add(time.Duration(ratio * duration)),
			Coordinates:    span,
		})

		start = end
		accumulated = 0
	}

	return segments, nil
}

// densify splits edges longer than target into equal sub-edges.
func densify(coords []geo.Coordinate, target float64) []geo.Coordinate {
	out := make([]geo.Coordinate, 0, len(coords))
	out = append(out, coords[0])

	for i := 1; i < len(coords); i++ {
		a, b := coords[i-1], coords[i]
		if d := geo.Distance(a, b); d > target {
			n := min(int(math.Round(d/target)), maxEdgeSubdivisions)
			for k := 1; k < n; k++ {
				out = append(out, geo.Interpolate(a, b, float64(k)/float64(n)))
			}
		}
		out = append(out, b)
	}

	return out
}
