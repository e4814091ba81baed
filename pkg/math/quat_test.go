package math

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestQuatIdentity(t *testing.T) {
	q := QuatIdentity()
	if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
		t.Errorf("Identity quaternion should be (0,0,0,1), got (%v,%v,%v,%v)", q.X, q.Y, q.Z, q.W)
	}
}

func TestQuatNormalize(t *testing.T) {
	q := Quat{X: 1, Y: 2, Z: 3, W: 4}
	n := q.Normalize()

	length := float32(math.Sqrt(float64(n.X*n.X + n.Y*n.Y + n.Z*n.Z + n.W*n.W)))
	if math.Abs(float64(length-1.0)) > 0.0001 {
		t.Errorf("Normalized quaternion length should be 1, got %v", length)
	}

	if z := (Quat{}).Normalize(); z != QuatIdentity() {
		t.Errorf("Zero quaternion should normalize to identity, got %v", z)
	}
}

func TestQuatSlerp(t *testing.T) {
	q1 := QuatIdentity()
	q2 := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, float32(math.Pi/2))

	result0 := q1.Slerp(q2, 0)
	if math.Abs(float64(result0.W-q1.W)) > 0.001 {
		t.Errorf("Slerp at t=0 should equal q1")
	}

	result1 := q1.Slerp(q2, 1)
	if math.Abs(float64(result1.W-q2.W)) > 0.001 {
		t.Errorf("Slerp at t=1 should equal q2")
	}

	// For 90 degree rotation, halfway should be 45 degrees
	result5 := q1.Slerp(q2, 0.5)
	expectedW := float32(math.Cos(float64(math.Pi / 8)))
	if math.Abs(float64(result5.W-expectedW)) > 0.01 {
		t.Errorf("Slerp at t=0.5: expected W ~%v, got %v", expectedW, result5.W)
	}
}

func TestQuatSlerpMatchesMathgl(t *testing.T) {
	a := QuatFromAxisAngle(Vec3{X: 1, Y: 0, Z: 0}, 0.3)
	b := QuatFromAxisAngle(Vec3{X: 0, Y: 0, Z: 1}, 1.9)
	ga := mgl32.QuatRotate(0.3, mgl32.Vec3{1, 0, 0})
	gb := mgl32.QuatRotate(1.9, mgl32.Vec3{0, 0, 1})

	for _, f := range []float32{0.1, 0.25, 0.5, 0.8} {
		got := a.Slerp(b, f)
		want := mgl32.QuatSlerp(ga, gb, f)
		w := Quat{X: want.V[0], Y: want.V[1], Z: want.V[2], W: want.W}
		if !got.ApproxEqual(w, 1e-4) {
			t.Errorf("Slerp(%v) = %v, mathgl says %v", f, got, w)
		}
	}
}

func TestQuatToMat4(t *testing.T) {
	q := QuatIdentity()
	m := q.ToMat4()

	identity := Identity()
	for i := 0; i < 16; i++ {
		if math.Abs(float64(m[i]-identity[i])) > 0.0001 {
			t.Errorf("Identity quat should produce identity matrix, element %d: got %v, want %v", i, m[i], identity[i])
		}
	}
}

func TestQuatFromAxisAngle(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, float32(math.Pi/2))

	expectedW := float32(math.Cos(math.Pi / 4))
	expectedY := float32(math.Sin(math.Pi / 4))

	if math.Abs(float64(q.W-expectedW)) > 0.001 {
		t.Errorf("QuatFromAxisAngle W: expected %v, got %v", expectedW, q.W)
	}
	if math.Abs(float64(q.Y-expectedY)) > 0.001 {
		t.Errorf("QuatFromAxisAngle Y: expected %v, got %v", expectedY, q.Y)
	}
}

func TestQuatRotate(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 0, Y: 1, Z: 0}, float32(math.Pi/2))
	got := q.Rotate(Vec3{X: 1})
	if !got.ApproxEqual(Vec3{Z: -1}, 1e-5) {
		t.Errorf("Rotate (1,0,0) by 90 deg about Y: got %v, want (0,0,-1)", got)
	}

	// Rotate must agree with the matrix form.
	q = QuatFromAxisAngle(Vec3{X: 1, Y: 2, Z: 3}.Normalize(), 1.1)
	v := Vec3{X: 0.5, Y: -2, Z: 4}
	if a, b := q.Rotate(v), q.ToMat4().TransformPoint(v); !a.ApproxEqual(b, 1e-5) {
		t.Errorf("Rotate = %v, matrix = %v", a, b)
	}
}

func TestQuatMulComposesRotations(t *testing.T) {
	a := QuatFromAxisAngle(Vec3{X: 1}, 0.7)
	b := QuatFromAxisAngle(Vec3{Y: 1}, -1.2)
	v := Vec3{X: 1, Y: 2, Z: 3}

	// a.Mul(b) applies b first.
	got := a.Mul(b).Rotate(v)
	want := a.Rotate(b.Rotate(v))
	if !got.ApproxEqual(want, 1e-5) {
		t.Errorf("(a*b)v = %v, a(b(v)) = %v", got, want)
	}
}

func TestQuatInverse(t *testing.T) {
	q := QuatFromAxisAngle(Vec3{X: 0, Y: 0, Z: 1}, 0.9)
	if id := q.Mul(q.Inverse()); !id.ApproxEqual(QuatIdentity(), 1e-6) {
		t.Errorf("q * q^-1 = %v, want identity", id)
	}
	if !q.Inverse().ApproxEqual(q.Conjugate(), 1e-6) {
		t.Errorf("inverse of unit quaternion should equal conjugate")
	}
}

func TestQuatFromMat3(t *testing.T) {
	tests := []struct {
		name  string
		axis  Vec3
		angle float32
	}{
		{"identity", Vec3{Y: 1}, 0},
		{"small x", Vec3{X: 1}, 0.2},
		{"half turn y", Vec3{Y: 1}, float32(math.Pi)},
		{"near half turn z", Vec3{Z: 1}, 3.1},
		{"oblique", Vec3{X: 1, Y: -1, Z: 2}.Normalize(), 2.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := QuatFromAxisAngle(tt.axis, tt.angle)
			got := QuatFromMat3(q.ToMat3())
			if !got.ApproxEqual(q, 1e-5) {
				t.Errorf("QuatFromMat3 = %v, want %v (up to sign)", got, q)
			}
		})
	}
}
