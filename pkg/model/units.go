package model

// DefaultUnit is the unit a model without a unit attribute is authored in.
const DefaultUnit = "millimeter"

// unitToMillimeter maps the unit names the 3MF core specification
// allows to their size in millimeters.
var unitToMillimeter = map[string]float64{
	"micron":     0.001,
	"millimeter": 1,
	"centimeter": 10,
	"inch":       25.4,
	"foot":       304.8,
	"meter":      1000,
}

// UnitScale returns the factor converting the named unit to millimeters.
// Unknown units report false and the millimeter factor.
func UnitScale(unit string) (float64, bool) {
	if scale, ok := unitToMillimeter[unit]; ok {
		return scale, true
	}
	return 1, false
}
