package motion

import "math"

// StandardGravity in m/s².
const StandardGravity = 9.80665

// attitude is the orientation derived from one accelerometer sample.
type attitude struct {
	module     float64 // vector magnitude
	nx, ny, nz float64
	pitch      float64 // degrees, positive when the top edge is raised
	roll       float64 // degrees, 0 face up, ±180 face down
}

func computeAttitude(s SensorSample) attitude {
	m := math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
	a := attitude{module: m}
	if m == 0 {
		return a
	}
	a.nx, a.ny, a.nz = s.X/m, s.Y/m, s.Z/m
	a.pitch = degrees(math.Atan2(a.ny, math.Sqrt(a.nx*a.nx+a.nz*a.nz)))
	a.roll = degrees(math.Atan2(-a.nx, a.nz))
	return a
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func inBand(v, low, high float64) bool {
	return v >= low && v <= high
}

// faceUp reports a horizontal device with the screen towards the sky.
func (a attitude) faceUp(pitchLimit, rollLimit float64) bool {
	return math.Abs(a.pitch) <= pitchLimit && math.Abs(a.roll) <= rollLimit
}

// faceDown reports a horizontal device with the screen towards the ground.
func (a attitude) faceDown(pitchLimit, rollLimit float64) bool {
	return math.Abs(a.pitch) <= pitchLimit && math.Abs(a.roll) >= 180-rollLimit
}
