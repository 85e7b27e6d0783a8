package model

import (
	stdmath "math"
	"testing"

	"github.com/Faultbox/threemf/pkg/math"
)

func TestParseTransformTranslation(t *testing.T) {
	m, err := ParseTransform("1 0 0 0 1 0 0 0 1 10 20 30")
	if err != nil {
		t.Fatalf("ParseTransform failed: %v", err)
	}
	if m[12] != 10 || m[13] != 20 || m[14] != 30 {
		t.Errorf("translation = (%v, %v, %v), want (10, 20, 30)", m[12], m[13], m[14])
	}
	p := m.TransformPoint(math.Vec3{X: 1, Y: 1, Z: 1})
	if p != (math.Vec3{X: 11, Y: 21, Z: 31}) {
		t.Errorf("transformed point = %v, want (11, 21, 31)", p)
	}
}

func TestParseTransformErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"too few fields", "1 0 0 0 1 0 0 0 1"},
		{"too many fields", "1 0 0 0 1 0 0 0 1 0 0 0 0"},
		{"non-numeric", "1 0 0 0 x 0 0 0 1 0 0 0"},
		{"infinite", "1 0 0 0 Inf 0 0 0 1 0 0 0"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTransform(tt.in); err == nil {
				t.Errorf("ParseTransform(%q) should fail", tt.in)
			}
		})
	}
}

func TestTransformRoundTrip(t *testing.T) {
	m := math.Translate(1.5, -2.25, 3).Mul(math.RotateZ(stdmath.Pi / 3)).Mul(math.Scale(2, 2, 2))
	encoded := FormatTransform(m, 9)
	decoded, err := ParseTransform(encoded)
	if err != nil {
		t.Fatalf("ParseTransform(%q) failed: %v", encoded, err)
	}
	if !decoded.ApproxEqual(m, 1e-6) {
		t.Errorf("round trip changed the matrix:\n got %v\nwant %v", decoded, m)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		precision int
		want      string
	}{
		{"integer", 42, 4, "42"},
		{"trailing zeros stripped", 1.5, 4, "1.5"},
		{"rounded", 1.23456, 4, "1.2346"},
		{"tiny rounds to zero", 1e-8, 6, "0"},
		{"negative zero", -0.00001, 3, "0"},
		{"negative", -2.5, 4, "-2.5"},
		{"zero precision", 3.7, 0, "4"},
		{"zero", 0, 4, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatNumber(tt.value, tt.precision); got != tt.want {
				t.Errorf("FormatNumber(%v, %d) = %q, want %q", tt.value, tt.precision, got, tt.want)
			}
		})
	}
}

func TestFormatNumberNeverScientific(t *testing.T) {
	for _, value := range []float64{1e21, 1e-21, 123456789012345680, 0.000000001} {
		got := FormatNumber(value, 6)
		for _, c := range got {
			if c == 'e' || c == 'E' {
				t.Errorf("FormatNumber(%v, 6) = %q uses scientific notation", value, got)
			}
		}
	}
}
