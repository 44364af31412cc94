package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration describes one duration setting: its config path, the value used
// when it is unset and the accepted range.
type Duration struct {
	Path    string
	Default time.Duration
	Min     time.Duration // 0 = no lower bound
	Max     time.Duration // 0 = no upper bound

	// ZeroOff makes an explicit "0" mean disabled instead of Default.
	ZeroOff bool
}

// Parse resolves raw against the setting. Empty selects Default; negative
// values and values outside [Min, Max] are rejected.
func (d Duration) Parse(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return d.Default, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", d.Path, raw, err)
	}
	switch {
	case v < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0", d.Path)
	case v == 0 && d.ZeroOff:
		return 0, nil
	case v == 0:
		return d.Default, nil
	case d.Min > 0 && v < d.Min:
		return 0, fmt.Errorf("%s: %s is below the minimum %s", d.Path, v, d.Min)
	case d.Max > 0 && v > d.Max:
		return 0, fmt.Errorf("%s: %s exceeds the maximum %s", d.Path, v, d.Max)
	}
	return v, nil
}

// ParseDurationField validates raw without a default; empty and zero yield 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	return Duration{Path: path, ZeroOff: true}.Parse(raw)
}

// ParseDurationOrDefault is Parse with no bounds; empty or zero select def.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	return Duration{Path: path, Default: def}.Parse(raw)
}
