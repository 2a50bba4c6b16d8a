package domain

import (
	"errors"
	"fmt"
)

var ErrUnknownPreference = errors.New("unknown preference")

// Preference is what a member thinks about playing one item.
// Unset behaves exactly like a missing entry.
type Preference uint8

const (
	Unset Preference = iota
	Dislike
	Neutral
	Like
)

var preferenceNames = [...]string{
	Unset:   "Unset",
	Dislike: "Dislike",
	Neutral: "Neutral",
	Like:    "Like",
}

// Older clients still send these spellings.
var preferenceAliases = map[string]Preference{
	"Undefined": Unset,
	"Optional":  Neutral,
}

func (p Preference) String() string {
	if int(p) < len(preferenceNames) {
		return preferenceNames[p]
	}
	return fmt.Sprintf("Preference(%d)", uint8(p))
}

func (p Preference) Valid() bool { return int(p) < len(preferenceNames) }

func ParsePreference(s string) (Preference, error) {
	for i, name := range preferenceNames {
		if name == s {
			return Preference(i), nil
		}
	}
	if p, ok := preferenceAliases[s]; ok {
		return p, nil
	}
	return Unset, fmt.Errorf("%w: %q", ErrUnknownPreference, s)
}

func (p Preference) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPreference, uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Preference) UnmarshalText(text []byte) error {
	parsed, err := ParsePreference(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
