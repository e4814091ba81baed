package math

import "github.com/chewxy/math32"

// QDUDecomposition factors m = Q·D·U where Q is orthogonal, D is diagonal and U
// is upper triangular with ones on its diagonal, using Gram-Schmidt
// orthogonalization of the columns (the QR algorithm).
//
// With columns m = [m0|m1|m2] and q = [q0|q1|q2]:
//
//	q0 = m0/|m0|
//	q1 = (m1-(q0·m1)q0)/|m1-(q0·m1)q0|
//	q2 = (m2-(q0·m2)q0-(q1·m2)q1)/|...|
//
// R has r00 = q0·m0, r01 = q0·m1, r02 = q0·m2, r11 = q1·m1, r12 = q1·m2,
// r22 = q2·m2. D holds (r00, r11, r22) and is the per-axis scale; U holds the
// shear terms (r01/r00, r02/r00, r12/r11). Q is negated when its determinant is
// negative so that it is a proper rotation; the reflection ends up in D.
func QDUDecomposition(m Mat3) (q Mat3, d Vec3, u Vec3) {
	m0, m1, m2 := m.Col(0), m.Col(1), m.Col(2)

	q0 := scaleToUnit(m0)

	q1 := m1.Sub(q0.Scale(q0.Dot(m1)))
	q1 = scaleToUnit(q1)

	q2 := m2.Sub(q0.Scale(q0.Dot(m2)))
	q2 = q2.Sub(q1.Scale(q1.Dot(m2)))
	q2 = scaleToUnit(q2)

	q = Mat3FromCols(q0, q1, q2)

	// guarantee that the orthogonal matrix has determinant 1 (no reflections)
	if q.Determinant() < 0 {
		q = q.Scale(-1)
		q0, q1, q2 = q.Col(0), q.Col(1), q.Col(2)
	}

	r00 := q0.Dot(m0)
	r01 := q0.Dot(m1)
	r11 := q1.Dot(m1)
	r02 := q0.Dot(m2)
	r12 := q1.Dot(m2)
	r22 := q2.Dot(m2)

	d = Vec3{r00, r11, r22}
	u = Vec3{r01 / r00, r02 / r00, r12 / r11}
	return q, d, u
}

// scaleToUnit divides v by its length, leaving a zero vector untouched.
func scaleToUnit(v Vec3) Vec3 {
	lenSq := v.Dot(v)
	if lenSq == 0 {
		return v
	}
	return v.Scale(1 / math32.Sqrt(lenSq))
}

// Decompose splits an affine matrix into position, scale and orientation such
// that Compose(position, orientation, scale) reproduces m when m has no shear.
// Shear is discarded.
func (m Mat4) Decompose() (position Vec3, scale Vec3, orientation Quat) {
	q, d, _ := QDUDecomposition(m.Upper3())
	return m.Translation(), d, QuatFromMat3(q).Normalize()
}
