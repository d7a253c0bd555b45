package keycode

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse resolves a human-written key name. Matching is case-insensitive and
// ignores spaces, underscores and dashes inside names. Hex virtual-key codes
// ("0x5B") are accepted and translated through FromCode.
func Parse(name string) (Key, error) {
	if name == "" {
		return 0, fmt.Errorf("key name is empty")
	}
	if k, ok := punctuation[name]; ok {
		return k, nil
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return 0, fmt.Errorf("key name is empty")
	}
	if k, ok := punctuation[trimmed]; ok {
		return k, nil
	}

	lower := strings.ToLower(trimmed)
	// Accept the String() form of wrapped codes so unknown keys round-trip.
	if inner, ok := strings.CutPrefix(lower, "unknown("); ok {
		lower = strings.TrimSuffix(inner, ")")
	}
	if strings.HasPrefix(lower, "0x") {
		value, err := strconv.ParseUint(lower[2:], 16, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid hex key code %q", name)
		}
		if value == 0 {
			return 0, fmt.Errorf("key code 0x00 is not a valid virtual key")
		}
		return FromCode(uint32(value)), nil
	}

	if k, ok := keyByName[normalizeName(trimmed)]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown key %q", name)
}

// ParseList parses every name in names, stopping at the first failure.
func ParseList(names []string) ([]Key, error) {
	if len(names) == 0 {
		return nil, nil
	}
	keys := make([]Key, 0, len(names))
	for _, name := range names {
		k, err := Parse(name)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}
