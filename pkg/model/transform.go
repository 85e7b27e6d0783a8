package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/threemf/pkg/math"
)

// transformIndices maps the 12 wire fields of a transform attribute, in
// order, to their slot in a column-major Mat4. The wire format is row after
// row of the 4x3 matrix, the fourth matrix row (0 0 0 1) being implicit.
var transformIndices = [12]int{0, 1, 2, 4, 5, 6, 8, 9, 10, 12, 13, 14}

// ParseTransform decodes a transform attribute of 12 space-separated
// numbers into a matrix.
func ParseTransform(s string) (math.Mat4, error) {
	fields := strings.Fields(s)
	if len(fields) != 12 {
		return math.Identity(), fmt.Errorf("transform has %d fields, want 12", len(fields))
	}

	m := math.Identity()
	for i, field := range fields {
		value, err := strconv.ParseFloat(field, 64)
		if err != nil || !math.Finite(value) {
			return math.Identity(), fmt.Errorf("transform field %d is not a finite number: %q", i, field)
		}
		m[transformIndices[i]] = value
	}
	return m, nil
}

// FormatTransform encodes a matrix as a transform attribute value with the
// given number of decimal digits.
func FormatTransform(m math.Mat4, precision int) string {
	fields := make([]string, 0, 12)
	for _, idx := range transformIndices {
		fields = append(fields, FormatNumber(m[idx], precision))
	}
	return strings.Join(fields, " ")
}

// FormatNumber renders a float in plain fixed-point notation with at most
// precision decimal digits. Scientific notation is never used, trailing
// zeros are stripped, and values that round to zero come out as "0".
func FormatNumber(f float64, precision int) string {
	if precision < 0 {
		precision = 0
	}
	s := strconv.FormatFloat(f, 'f', precision, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	if s == "" || s == "-0" {
		return "0"
	}
	return s
}
