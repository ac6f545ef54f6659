package core

import (
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
)

func assertVec(t *testing.T, want, got r3.Vector) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, 1e-9, "x")
	assert.InDelta(t, want.Y, got.Y, 1e-9, "y")
	assert.InDelta(t, want.Z, got.Z, 1e-9, "z")
}

func TestNewBeam_Frame(t *testing.T) {
	b := NewBeam(r3.Vector{X: 1}, r3.Vector{Z: 3}, r3.Vector{Y: 1, Z: 1}, 0.1, 1, 10)

	assertVec(t, r3.Vector{Z: 1}, b.Forward)
	assertVec(t, r3.Vector{Y: 1}, b.Up)
	assertVec(t, r3.Vector{X: 1}, b.Right)
	assert.Equal(t, 1.0, b.RangeMultiplier)
}

func TestNewBeam_ParallelUpFallsBack(t *testing.T) {
	b := NewBeam(r3.Vector{}, r3.Vector{Y: 1}, r3.Vector{Y: 2}, 0.1, 1, 10)

	assert.InDelta(t, 1, b.Up.Norm(), 1e-9)
	assert.InDelta(t, 0, b.Up.Dot(b.Forward), 1e-9)
	assert.InDelta(t, 0, b.Right.Dot(b.Forward), 1e-9)
}

func TestBeam_MaxDistance(t *testing.T) {
	b := NewBeam(r3.Vector{}, r3.Vector{Z: 1}, r3.Vector{Y: 1}, 0.1, 1, 10)
	assert.Equal(t, 10.0, b.MaxDistance())

	b.RangeMultiplier = 2.5
	assert.Equal(t, 25.0, b.MaxDistance())

	b.RangeMultiplier = 0.5
	assert.Equal(t, 10.0, b.MaxDistance())

	b.Range = 0
	assert.True(t, b.Degenerate())
}

func TestBeam_Directions(t *testing.T) {
	b := NewBeam(r3.Vector{}, r3.Vector{Z: 1}, r3.Vector{Y: 1}, 0.1, 1, 10)

	assertVec(t, r3.Vector{Y: 1}, b.Direction(DirectionUp))
	assertVec(t, r3.Vector{X: 1}, b.Direction(DirectionRight))
	assertVec(t, r3.Vector{Y: -1}, b.Direction(DirectionDown))
	assertVec(t, r3.Vector{X: -1}, b.Direction(DirectionLeft))
	assertVec(t, b.Direction(DirectionUp), b.Direction(Direction(4)))
	assert.Equal(t, "left", DirectionLeft.String())
}

func TestBeam_ToLocal(t *testing.T) {
	b := NewBeam(r3.Vector{X: 1, Y: 2, Z: 3}, r3.Vector{X: -1}, r3.Vector{Y: 1}, 0.1, 1, 10)

	assertVec(t, r3.Vector{Z: 4}, b.ToLocal(r3.Vector{X: -3, Y: 2, Z: 3}))
	assertVec(t, r3.Vector{X: 1, Y: 1}, b.ToLocal(r3.Vector{X: 1, Y: 3, Z: 4}))
}

func TestPlane(t *testing.T) {
	p := NewPlane(r3.Vector{Z: -2}, r3.Vector{Z: 5})

	assertVec(t, r3.Vector{Z: -1}, p.Normal)
	assert.InDelta(t, 5, p.Distance, 1e-9)
	assert.InDelta(t, 5, p.SignedDistance(r3.Vector{}), 1e-9)
	assert.InDelta(t, -1, p.SignedDistance(r3.Vector{X: 7, Z: 6}), 1e-9)
	assertVec(t, r3.Vector{Z: 5}, p.ClosestPoint())
	assert.True(t, p.Valid())
	assert.False(t, Plane{}.Valid())
}

func TestPlane_Translate(t *testing.T) {
	p := NewPlane(r3.Vector{Z: 1}, r3.Vector{Z: 5})

	moved := p.Translate(p.Normal.Mul(0.5))
	assert.InDelta(t, p.Distance-0.5, moved.Distance, 1e-9)
	assertVec(t, r3.Vector{Z: 5.5}, moved.ClosestPoint())

	// Translation parallel to the plane changes nothing
	assert.InDelta(t, p.Distance, p.Translate(r3.Vector{X: 3}).Distance, 1e-9)
}

func TestHit_Facing(t *testing.T) {
	h := Hit{Normal: r3.Vector{Z: -1}}
	assert.Equal(t, 1.0, h.Facing(r3.Vector{Z: 1}))

	h.Normal = r3.Vector{X: 1}
	assert.Equal(t, 0.0, h.Facing(r3.Vector{Z: 1}))
}
