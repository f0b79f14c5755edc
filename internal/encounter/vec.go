package encounter

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 and Quat are the mathgl types used throughout the package.
type (
	Vec3 = mgl64.Vec3
	Quat = mgl64.Quat
)

var (
	// ForwardAxis is the local nose direction of every ship model.
	ForwardAxis = Vec3{0, 0, 1}
	upAxis      = Vec3{0, 1, 0}
)

const minDirLenSq = 1e-12

// ValidDirection reports whether v is finite and long enough to normalize.
func ValidDirection(v Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return v.LenSqr() > minDirLenSq
}

// safeNormalize returns the unit vector of v, or false when v is degenerate.
func safeNormalize(v Vec3) (Vec3, bool) {
	if !ValidDirection(v) {
		return Vec3{}, false
	}
	return v.Normalize(), true
}

// angleBetween returns the angle in radians between two non-zero vectors.
func angleBetween(a, b Vec3) float64 {
	la, lb := a.Len(), b.Len()
	if la == 0 || lb == 0 {
		return math.Pi
	}
	return math.Acos(mgl64.Clamp(a.Dot(b)/(la*lb), -1, 1))
}

// forwardOf rotates the model nose by q.
func forwardOf(q Quat) Vec3 {
	return q.Rotate(ForwardAxis)
}

// lookRotation returns the orientation whose forward vector is dir.
func lookRotation(dir Vec3) Quat {
	d, ok := safeNormalize(dir)
	if !ok {
		return mgl64.QuatIdent()
	}
	return mgl64.QuatBetweenVectors(ForwardAxis, d)
}

// turnFraction converts a per-frame slerp fraction into one for dt seconds.
func turnFraction(rate, dt float64) float64 {
	if dt <= 0 {
		return 0
	}
	return 1 - math.Pow(1-rate, dt*60)
}

// tangentAround returns a unit vector perpendicular to offset in the
// horizontal plane when possible.
func tangentAround(offset Vec3) Vec3 {
	t, ok := safeNormalize(upAxis.Cross(offset))
	if !ok {
		t, _ = safeNormalize(Vec3{1, 0, 0}.Cross(offset))
	}
	return t
}

// ringPoint is a point on the horizontal circle of radius r around center.
func ringPoint(center Vec3, r, angle float64) Vec3 {
	return center.Add(Vec3{math.Cos(angle) * r, 0, math.Sin(angle) * r})
}

func randRange(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// randUnit returns a uniformly distributed unit vector.
func randUnit(rng *rand.Rand) Vec3 {
	for {
		v := Vec3{rng.Float64()*2 - 1, rng.Float64()*2 - 1, rng.Float64()*2 - 1}
		if l := v.LenSqr(); l > 1e-6 && l <= 1 {
			return v.Normalize()
		}
	}
}
