package setups

import (
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

// Hz is a clock rate. In YAML it is either a plain integer ("80000000") or
// a value with a unit ("80MHz", "1.5GHz").
type Hz uint32

// ParseHz accepts the same forms as the YAML decoder.
func ParseHz(s string) (Hz, error) {
	if n, err := strconv.ParseUint(s, 0, 32); err == nil {
		return Hz(n), nil
	}
	var f physic.Frequency
	if err := f.Set(s); err != nil {
		return 0, fmt.Errorf("setups: bad frequency %q: %w", s, err)
	}
	if f <= 0 || f%physic.Hertz != 0 {
		return 0, fmt.Errorf("setups: frequency %q must be a positive whole number of Hz", s)
	}
	hz := int64(f / physic.Hertz)
	if hz > math.MaxUint32 {
		return 0, fmt.Errorf("setups: frequency %q out of range", s)
	}
	return Hz(hz), nil
}

func (h Hz) String() string {
	return (physic.Frequency(h) * physic.Hertz).String()
}

func (h *Hz) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("setups: line %d: frequency must be a scalar", n.Line)
	}
	v, err := ParseHz(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*h = v
	return nil
}

func (h Hz) MarshalYAML() (any, error) { return h.String(), nil }
