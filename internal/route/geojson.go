package route

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Bounds returns the bounding box of the path. ok is false for an empty path.
func (r *NormalizedRoute) Bounds() (b orb.Bound, ok bool) {
	if len(r.PathCoordinates) == 0 {
		return orb.Bound{}, false
	}
	mp := make(orb.MultiPoint, 0, len(r.PathCoordinates))
	for _, c := range r.PathCoordinates {
		mp = append(mp, orb.Point{c.Lng, c.Lat})
	}
	return mp.Bound(), true
}

// FeatureCollection exports the path as a LineString feature followed by a
// Point feature per maneuver point.
func (r *NormalizedRoute) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if len(r.PathCoordinates) >= 2 {
		line := make(orb.LineString, 0, len(r.PathCoordinates))
		for _, c := range r.PathCoordinates {
			line = append(line, orb.Point{c.Lng, c.Lat})
		}
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "path"
		f.Properties["mode"] = string(r.Mode)
		f.Properties["totalDistance"] = r.TotalDistance
		f.Properties["totalDuration"] = r.TotalDuration
		f.Properties["estimated"] = r.Estimated
		fc.Append(f)
	}

	for _, s := range r.Steps {
		if s.Coordinates == nil {
			continue
		}
		f := geojson.NewFeature(orb.Point{s.Coordinates.Lng, s.Coordinates.Lat})
		f.Properties["kind"] = "maneuver"
		f.Properties["index"] = s.Index
		f.Properties["instruction"] = s.Instruction
		f.Properties["direction"] = string(s.Direction)
		if s.StreetName != "" {
			f.Properties["streetName"] = s.StreetName
		}
		fc.Append(f)
	}
	return fc
}
