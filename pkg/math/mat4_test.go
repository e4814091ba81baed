package math

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestIdentity(t *testing.T) {
	m := Identity()
	// Diagonal should be 1
	if m[0] != 1 || m[5] != 1 || m[10] != 1 || m[15] != 1 {
		t.Error("Identity diagonal should be 1")
	}
	// Off-diagonal should be 0
	if m[1] != 0 || m[4] != 0 {
		t.Error("Identity off-diagonal should be 0")
	}
}

func TestMulIdentity(t *testing.T) {
	m := Translate(1, 2, 3)
	id := Identity()
	result := m.Mul(id)

	for i := 0; i < 16; i++ {
		if result[i] != m[i] {
			t.Errorf("M * I should equal M, element %d: got %f, want %f", i, result[i], m[i])
		}
	}
}

func TestTranslate(t *testing.T) {
	m := Translate(5, 10, 15)

	// Translation should be in column 4 (indices 12, 13, 14)
	if m[12] != 5 || m[13] != 10 || m[14] != 15 {
		t.Errorf("Translate: got (%f, %f, %f), want (5, 10, 15)", m[12], m[13], m[14])
	}
	if m.Translation() != (Vec3{5, 10, 15}) {
		t.Errorf("Translation() = %v", m.Translation())
	}
}

func TestTransformPoint(t *testing.T) {
	m := Translate(10, 20, 30)
	result := m.TransformPoint(Vec3{1, 2, 3})

	expected := Vec3{11, 22, 33}
	if result != expected {
		t.Errorf("TransformPoint: got %v, want %v", result, expected)
	}
}

func TestTransformPointScale(t *testing.T) {
	m := Scale(2, 2, 2)
	result := m.TransformPoint(Vec3{1, 2, 3})

	expected := Vec3{2, 4, 6}
	if result != expected {
		t.Errorf("TransformPoint with scale: got %v, want %v", result, expected)
	}
}

func TestTransformDirectionIgnoresTranslation(t *testing.T) {
	m := Translate(7, 8, 9).Mul(Scale(2, 3, 4))
	got := m.TransformDirection(Vec3{1, 1, 1})
	if got != (Vec3{2, 3, 4}) {
		t.Errorf("TransformDirection: got %v, want (2, 3, 4)", got)
	}
}

func TestRotateY90(t *testing.T) {
	m := RotateY(float32(math.Pi / 2))
	result := m.TransformPoint(Vec3{1, 0, 0})

	// After 90 degree Y rotation, (1,0,0) should become approximately (0,0,-1)
	if abs(result.X) > 0.001 || abs(result.Y) > 0.001 || abs(result.Z+1) > 0.001 {
		t.Errorf("RotateY 90: got %v, want (0, 0, -1)", result)
	}
}

func TestComposeOrder(t *testing.T) {
	p := Vec3{1, 2, 3}
	q := QuatFromAxisAngle(Vec3{Y: 1}, float32(math.Pi/2))
	s := Vec3{2, 3, 4}

	want := Translate(p.X, p.Y, p.Z).Mul(q.ToMat4()).Mul(Scale(s.X, s.Y, s.Z))
	got := Compose(p, q, s)
	if !got.ApproxEqual(want, 1e-6) {
		t.Errorf("Compose = %v, want T*R*S = %v", got, want)
	}
}

func TestComposeMatchesMathgl(t *testing.T) {
	p := Vec3{-4, 0.5, 9}
	axis := Vec3{X: 0.3, Y: 1, Z: -0.2}.Normalize()
	q := QuatFromAxisAngle(axis, 0.8)
	s := Vec3{1.5, 0.25, 3}

	gq := mgl32.QuatRotate(0.8, mgl32.Vec3{axis.X, axis.Y, axis.Z})
	want := mgl32.Translate3D(p.X, p.Y, p.Z).Mul4(gq.Mat4()).Mul4(mgl32.Scale3D(s.X, s.Y, s.Z))

	got := Compose(p, q, s)
	if !got.ApproxEqual(Mat4(want), 1e-5) {
		t.Errorf("Compose = %v, mathgl = %v", got, want)
	}
}

func TestInverse(t *testing.T) {
	m := Compose(Vec3{1, -2, 3}, QuatFromAxisAngle(Vec3{X: 1}, 0.4), Vec3{2, 2, 0.5})
	if got := m.Mul(m.Inverse()); !got.ApproxEqual(Identity(), 1e-5) {
		t.Errorf("M * M^-1 = %v, want identity", got)
	}

	var singular Mat4
	if singular.Inverse() != Identity() {
		t.Error("inverse of a singular matrix should be identity")
	}
}

func TestIsAffine(t *testing.T) {
	if !Compose(Vec3{1, 2, 3}, QuatIdentity(), Vec3One()).IsAffine() {
		t.Error("TRS matrix should be affine")
	}
	m := Identity()
	m[11] = -1
	if m.IsAffine() {
		t.Error("matrix with projective term should not be affine")
	}
}

func TestFromMat3(t *testing.T) {
	m3 := Mat3{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	m4 := FromMat3(m3)

	if m4[0] != 1 || m4[1] != 2 || m4[2] != 3 {
		t.Error("FromMat3 column 0 incorrect")
	}
	if m4[4] != 4 || m4[5] != 5 || m4[6] != 6 {
		t.Error("FromMat3 column 1 incorrect")
	}
	if m4[15] != 1 {
		t.Errorf("FromMat3 [15] should be 1, got %f", m4[15])
	}
	if m4.Upper3() != m3 {
		t.Errorf("Upper3 should return the original block, got %v", m4.Upper3())
	}
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
