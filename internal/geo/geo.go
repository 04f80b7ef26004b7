package geo

import (
	"math"
	"math/rand/v2"
	"sync"
)

// MetersPerDegreeLatitude is the flat-earth approximation used for offsets.
// At a few hundred metres the error is far below GPS accuracy.
const MetersPerDegreeLatitude = 111000.0

// Point is a WGS84 coordinate.
type Point struct {
	Longitude float64 `json:"lon"`
	Latitude  float64 `json:"lat"`
}

// Jitter returns a point uniformly distributed over the disc of radiusM
// metres around base. The radius is drawn as sqrt(U)*R so that density is
// uniform per unit area rather than per unit radius.
func Jitter(rnd *rand.Rand, base Point, radiusM float64) Point {
	if radiusM <= 0 {
		return base
	}
	angle := rnd.Float64() * 2 * math.Pi
	r := math.Sqrt(rnd.Float64()) * radiusM

	latPerMeter := 1 / MetersPerDegreeLatitude
	lonPerMeter := 1 / (MetersPerDegreeLatitude * math.Cos(base.Latitude*math.Pi/180))

	return Point{
		Longitude: base.Longitude + r*math.Cos(angle)*lonPerMeter,
		Latitude:  base.Latitude + r*math.Sin(angle)*latPerMeter,
	}
}

// DistanceMeters is the inverse of the Jitter projection: the planar
// distance between a and b in metres, scaled at a's latitude.
func DistanceMeters(a, b Point) float64 {
	dy := (b.Latitude - a.Latitude) * MetersPerDegreeLatitude
	dx := (b.Longitude - a.Longitude) * MetersPerDegreeLatitude * math.Cos(a.Latitude*math.Pi/180)
	return math.Hypot(dx, dy)
}

// Jitterer is a goroutine-safe Jitter bound to one random source.
type Jitterer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewJitterer creates a Jitterer. A nil rnd is seeded randomly.
func NewJitterer(rnd *rand.Rand) *Jitterer {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // not security sensitive
	}
	return &Jitterer{rnd: rnd}
}

// Around returns a jittered point around base.
func (j *Jitterer) Around(base Point, radiusM float64) Point {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Jitter(j.rnd, base, radiusM)
}
