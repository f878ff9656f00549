package light

import (
	"fmt"

	relay_errors "traffic-light/pkg/errors"
)

// Color is one of the three traffic light states.
type Color string

const (
	Green  Color = "green"
	Yellow Color = "yellow"
	Red    Color = "red"
)

// Colors lists every valid color in display order.
var Colors = []Color{Green, Yellow, Red}

// ParseColor matches s exactly and case-sensitively against the closed set.
func ParseColor(s string) (Color, error) {
	switch c := Color(s); c {
	case Green, Yellow, Red:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q is not one of green, yellow, red", relay_errors.ErrValidation, s)
}

func (c Color) Valid() bool {
	_, err := ParseColor(string(c))
	return err == nil
}

func (c Color) String() string {
	return string(c)
}

// Event is a single traffic light state change.
type Event struct {
	Color Color `json:"color"`
}

func NewEvent(color string) (Event, error) {
	c, err := ParseColor(color)
	if err != nil {
		return Event{}, err
	}
	return Event{Color: c}, nil
}
