package mashup

import (
	"fmt"
	"strings"
)

// Intensity is the hype level. It decides how many segments each track may
// contribute.
type Intensity int

const (
	IntensityLow Intensity = iota + 1
	IntensityMedium
	IntensityHigh
)

var intensityCaps = map[Intensity]int{
	IntensityLow:    1,
	IntensityMedium: 2,
	IntensityHigh:   3,
}

// Cap returns the maximum number of segments per track
func (i Intensity) Cap() int {
	return intensityCaps[i]
}

// Valid reports whether i is one of the three levels
func (i Intensity) Valid() bool {
	_, ok := intensityCaps[i]
	return ok
}

func (i Intensity) String() string {
	switch i {
	case IntensityLow:
		return "low"
	case IntensityMedium:
		return "medium"
	case IntensityHigh:
		return "high"
	default:
		return fmt.Sprintf("intensity(%d)", int(i))
	}
}

// MarshalText encodes the level by name
func (i Intensity) MarshalText() ([]byte, error) {
	if !i.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIntensity, int(i))
	}
	return []byte(i.String()), nil
}

// UnmarshalText accepts anything ParseIntensity does
func (i *Intensity) UnmarshalText(text []byte) error {
	parsed, err := ParseIntensity(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// ParseIntensity accepts low/medium/high (any case) or 1/2/3
func ParseIntensity(s string) (Intensity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "1":
		return IntensityLow, nil
	case "medium", "2":
		return IntensityMedium, nil
	case "high", "3":
		return IntensityHigh, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidIntensity, s)
	}
}
