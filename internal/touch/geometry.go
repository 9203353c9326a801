package touch

import (
	"errors"
	"math"

	"github.com/sweeney/devicestatus/internal/motion"
)

var (
	errZeroDistance  = errors.New("touch: initial finger distance is zero")
	errMissingFinger = errors.New("touch: no position recorded for pressed finger")
)

type point struct {
	x, y float64
}

func (p point) sub(q point) point {
	return point{p.x - q.x, p.y - q.y}
}

func (p point) norm() float64 {
	return math.Hypot(p.x, p.y)
}

// angleOf returns atan(dy/dx) in degrees, in (-90, 90]. A vertical segment is 90.
func angleOf(d point) float64 {
	if d.x == 0 {
		return 90
	}
	return math.Atan(d.y/d.x) * 180 / math.Pi
}

// angleDrift is the smallest difference between two line angles.
func angleDrift(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 90 {
		d = 180 - d
	}
	return d
}

// pinchScale is moving/initial; a zero initial distance has no defined scale.
func pinchScale(initial, moving float64) (float64, error) {
	if initial == 0 {
		return 0, errZeroDistance
	}
	return moving / initial, nil
}

// direction classifies a displacement by its dominant axis. Screen y grows downwards.
// A zero displacement has no direction.
func direction(d point) motion.Action {
	if d.x == 0 && d.y == 0 {
		return motion.ActionInvalid
	}
	if math.Abs(d.x) >= math.Abs(d.y) {
		if d.x > 0 {
			return motion.ActionRight
		}
		return motion.ActionLeft
	}
	if d.y > 0 {
		return motion.ActionDown
	}
	return motion.ActionUp
}
