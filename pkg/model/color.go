package model

import (
	"fmt"
	stdmath "math"
	"strconv"
	"strings"
)

// Color is a linear-light RGBA color in [0,1]. Valid distinguishes an
// explicit black from no color at all.
type Color struct {
	R, G, B, A float64
	Valid      bool
}

// ParseColor decodes a displaycolor attribute, "#RRGGBB" or "#RRGGBBAA"
// in sRGB, into a linear color.
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 && len(hex) != 8 {
		return Color{}, fmt.Errorf("color %q is not #RRGGBB or #RRGGBBAA", s)
	}

	channels := make([]float64, 0, 4)
	for i := 0; i < len(hex); i += 2 {
		value, err := strconv.ParseUint(hex[i:i+2], 16, 8)
		if err != nil {
			return Color{}, fmt.Errorf("color %q has a non-hex channel: %w", s, err)
		}
		channels = append(channels, float64(value)/255)
	}

	c := Color{
		R:     srgbToLinear(channels[0]),
		G:     srgbToLinear(channels[1]),
		B:     srgbToLinear(channels[2]),
		A:     1,
		Valid: true,
	}
	if len(channels) == 4 {
		c.A = channels[3] // alpha is stored linearly
	}
	return c, nil
}

// FormatColor encodes a linear color as an sRGB hex attribute value. Fully
// opaque colors omit the alpha byte.
func (c Color) FormatColor() string {
	r := channelByte(linearToSRGB(c.R))
	g := channelByte(linearToSRGB(c.G))
	b := channelByte(linearToSRGB(c.B))
	if c.A >= 1 {
		return fmt.Sprintf("#%02X%02X%02X", r, g, b)
	}
	return fmt.Sprintf("#%02X%02X%02X%02X", r, g, b, channelByte(c.A))
}

func channelByte(v float64) int {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return int(stdmath.Round(v * 255))
}

func srgbToLinear(s float64) float64 {
	if s <= 0.04045 {
		return s / 12.92
	}
	return stdmath.Pow((s+0.055)/1.055, 2.4)
}

func linearToSRGB(l float64) float64 {
	if l <= 0.0031308 {
		return l * 12.92
	}
	return 1.055*stdmath.Pow(l, 1/2.4) - 0.055
}
