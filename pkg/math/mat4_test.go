package math

import (
	"math"
	"testing"
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
}

func TestScale(t *testing.T) {
	m := Scale(2, 3, 4)

	if m[0] != 2 || m[5] != 3 || m[10] != 4 {
		t.Errorf("Scale diagonal: got (%f, %f, %f), want (2, 3, 4)", m[0], m[5], m[10])
	}
}

func TestTransformPoint(t *testing.T) {
	// Translate by (10, 20, 30)
	m := Translate(10, 20, 30)
	p := Vec3{1, 2, 3}
	result := m.TransformPoint(p)

	expected := Vec3{11, 22, 33}
	if result != expected {
		t.Errorf("TransformPoint: got %v, want %v", result, expected)
	}
}

func TestTransformPointScale(t *testing.T) {
	m := UniformScale(2)
	p := Vec3{1, 2, 3}
	result := m.TransformPoint(p)

	expected := Vec3{2, 4, 6}
	if result != expected {
		t.Errorf("TransformPoint with scale: got %v, want %v", result, expected)
	}
}

func TestRotateY90(t *testing.T) {
	m := RotateY(math.Pi / 2) // 90 degrees
	p := Vec3{1, 0, 0}        // Point on X axis
	result := m.TransformPoint(p)

	// After 90 degree Y rotation, (1,0,0) should become approximately (0,0,-1)
	if math.Abs(result.X) > 1e-9 || math.Abs(result.Y) > 1e-9 || math.Abs(result.Z+1) > 1e-9 {
		t.Errorf("RotateY 90: got %v, want (0, 0, -1)", result)
	}
}

func TestMulOrder(t *testing.T) {
	// Rotate then translate: with column vectors, the outer matrix applies last.
	m := Translate(10, 0, 0).Mul(RotateZ(math.Pi / 2))
	result := m.TransformPoint(Vec3{1, 0, 0})

	expected := Vec3{10, 1, 0}
	if math.Abs(result.X-expected.X) > 1e-9 ||
		math.Abs(result.Y-expected.Y) > 1e-9 ||
		math.Abs(result.Z-expected.Z) > 1e-9 {
		t.Errorf("Mul order: got %v, want %v", result, expected)
	}
}

func TestInverse(t *testing.T) {
	m := Translate(3, -2, 7).Mul(RotateX(0.5)).Mul(Scale(2, 2, 2))
	inv := m.Inverse()
	round := m.Mul(inv)

	if !round.ApproxEqual(Identity(), 1e-9) {
		t.Errorf("M * M^-1 should be identity, got %v", round)
	}
}

func TestInverseSingular(t *testing.T) {
	m := Scale(0, 0, 0)
	if got := m.Inverse(); !got.IsIdentity() {
		t.Errorf("singular inverse should fall back to identity, got %v", got)
	}
}

func TestIsIdentity(t *testing.T) {
	if !Identity().IsIdentity() {
		t.Error("Identity().IsIdentity() = false")
	}
	if Translate(0.0001, 0, 0).IsIdentity() {
		t.Error("translated matrix reported as identity")
	}
}
