// Package discrim separates raw I/Q readout points into the qubit
// states 0 and 1 with a linear discriminator, the form the controller
// hardware evaluates in real time.
package discrim

import (
	"errors"
	"fmt"
)

// LinearDiscriminator is the separating line a0*i + a1*q + b = 0.
// Points on or above the line classify as state 1.
type LinearDiscriminator struct {
	A [2]float64
	B float64
}

// FromNormalForm builds a discriminator from the line through p with
// normal vector n.
func FromNormalForm(p, n [2]float64) LinearDiscriminator {
	return LinearDiscriminator{A: n, B: -(p[0]*n[0] + p[1]*n[1])}
}

// FromParameterForm builds a discriminator from the line through p
// with direction u.
func FromParameterForm(p, u [2]float64) LinearDiscriminator {
	a := [2]float64{-u[1], u[0]}
	return LinearDiscriminator{A: a, B: -(p[0]*a[0] + p[1]*a[1])}
}

// ThroughPoints builds a discriminator whose separation line passes
// through p1 and p2.
func ThroughPoints(p1, p2 [2]float64) LinearDiscriminator {
	return LinearDiscriminator{
		A: [2]float64{p1[1] - p2[1], p2[0] - p1[0]},
		B: p1[0]*p2[1] - p2[0]*p1[1],
	}
}

// Estimate fits a discriminator to reference clouds of the two states.
// The line is placed perpendicular to the connection of the cloud
// means, halfway between them.
func Estimate(state0, state1 []complex128) (LinearDiscriminator, error) {
	if len(state0) == 0 || len(state1) == 0 {
		return LinearDiscriminator{}, errors.New("discriminator estimate needs points for both states")
	}
	a := mean(state1) - mean(state0)
	b := 0.0
	for _, p := range state0 {
		b += real(p*conj(p)) / 2
	}
	b /= float64(len(state0))
	for _, p := range state1 {
		b -= real(p*conj(p)) / 2 / float64(len(state1))
	}
	return LinearDiscriminator{A: [2]float64{real(a), imag(a)}, B: b}, nil
}

func mean(points []complex128) complex128 {
	var sum complex128
	for _, p := range points {
		sum += p
	}
	return sum / complex(float64(len(points)), 0)
}

func conj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}

// State classifies one I/Q point.
func (d LinearDiscriminator) State(i, q float64) int {
	if i*d.A[0]+q*d.A[1]+d.B >= 0 {
		return 1
	}
	return 0
}

// States classifies a point cloud.
func (d LinearDiscriminator) States(points []complex128) []int {
	out := make([]int, len(points))
	for n, p := range points {
		out[n] = d.State(real(p), imag(p))
	}
	return out
}

// ToPlatform returns the three coefficients in the order the
// controller's recording module takes them.
func (d LinearDiscriminator) ToPlatform() [3]float64 {
	return [3]float64{d.A[0], d.A[1], d.B}
}

// FromPlatform rebuilds a discriminator from controller coefficients.
func FromPlatform(data [3]float64) LinearDiscriminator {
	return LinearDiscriminator{A: [2]float64{data[0], data[1]}, B: data[2]}
}

func (d LinearDiscriminator) String() string {
	return fmt.Sprintf("discriminator(a=(%g, %g), b=%g)", d.A[0], d.A[1], d.B)
}
