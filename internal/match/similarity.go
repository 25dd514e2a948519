package match

import (
	"math"

	"github.com/agext/levenshtein"
)

// Similarity returns a 0-1 similarity between two names, computed as
// normalized Levenshtein similarity over their canonical keys. Empty
// keys never match anything.
func Similarity(a, b string) float64 {
	ka, kb := CanonicalKey(a), CanonicalKey(b)
	if ka == "" || kb == "" {
		return 0
	}
	if ka == kb {
		return 1
	}
	return levenshtein.Similarity(ka, kb, levenshtein.NewParams())
}

const earthRadiusMeters = 6_371_000

// HaversineMeters returns the great-circle distance between two WGS84
// coordinates in meters.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180

	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dPhi := (lat2 - lat1) * degToRad
	dLambda := (lon2 - lon1) * degToRad

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)
	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda

	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
