package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dkeye/GameFinder/internal/core"
	"github.com/dkeye/GameFinder/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMalformedFrame = errors.New("malformed frame")
	ErrInvalidField   = errors.New("invalid field")
)

// ProtocolError is returned by Decode. Tag is empty when the frame carried
// no usable tag.
type ProtocolError struct {
	Tag string
	Err error
}

func (e *ProtocolError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("protocol: %v", e.Err)
	}
	return fmt.Sprintf("protocol: %s: %v", e.Tag, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Code is the short machine-readable form sent back in an Error frame.
func (e *ProtocolError) Code() string {
	switch {
	case errors.Is(e.Err, ErrUnknownEvent):
		return "unknown_event"
	case errors.Is(e.Err, ErrInvalidField):
		return "invalid_field"
	default:
		return "malformed_frame"
	}
}

// ErrorFrom maps a decode failure to the Error frame sent to the originator.
func ErrorFrom(err error) Error {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return Error{Code: perr.Code(), Message: perr.Error()}
	}
	return Error{Code: "internal", Message: err.Error()}
}

type changeMembersWire struct {
	SteamIDs []*string `json:"steamids" validate:"required,dive,required"`
}

type setUnavailableWire struct {
	User  *string `json:"user" validate:"required"`
	Broke *bool   `json:"broke" validate:"required"`
}

type setPreferenceWire struct {
	User       *string            `json:"user" validate:"required"`
	Game       *uint64            `json:"game" validate:"required"`
	Preference *domain.Preference `json:"preference" validate:"required"`
}

type decodeFunc func(frame []byte, fields map[string]json.RawMessage) (ReceiveEvent, error)

var (
	validate = validator.New()

	// decoders is built once and never written after init.
	decoders = map[string]decodeFunc{
		TagChangeMembers:  decodeChangeMembers,
		TagChangeUser:     decodeChangeMembers,
		TagSetUnavailable: decodeSetUnavailable,
		TagSetBroke:       decodeSetUnavailable,
		TagSetPreference:  decodeSetPreference,
	}
)

// Tags lists every accepted receive tag, aliases included.
func Tags() []string {
	tags := lo.Keys(decoders)
	slices.Sort(tags)
	return tags
}

// Decode turns one text frame into a receive event. Every failure is a
// *ProtocolError.
func Decode(frame []byte) (ReceiveEvent, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return nil, &ProtocolError{Err: errors.Join(ErrMalformedFrame, err)}
	}
	raw, ok := fields["type"]
	if !ok || string(raw) == "null" {
		return nil, &ProtocolError{Err: fmt.Errorf("%w: missing type", ErrMalformedFrame)}
	}
	var tag string
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, &ProtocolError{Err: errors.Join(ErrMalformedFrame, err)}
	}
	decode, ok := decoders[tag]
	if !ok {
		return nil, &ProtocolError{Tag: tag, Err: ErrUnknownEvent}
	}
	ev, err := decode(frame, fields)
	if err != nil {
		return nil, &ProtocolError{Tag: tag, Err: err}
	}
	return ev, nil
}

// decodeBody fills dst from frame. encoding/json matches keys without regard
// to case, so any key that differs from a wire name only by case is refused
// first.
func decodeBody(frame []byte, fields map[string]json.RawMessage, dst any, names ...string) error {
	names = append(names, "type")
	for key := range fields {
		for _, name := range names {
			if key != name && strings.EqualFold(key, name) {
				return fmt.Errorf("%w: %q must be spelled %q", ErrInvalidField, key, name)
			}
		}
	}
	if err := json.Unmarshal(frame, dst); err != nil {
		return errors.Join(ErrInvalidField, err)
	}
	if err := validate.Struct(dst); err != nil {
		return errors.Join(ErrInvalidField, err)
	}
	return nil
}

func decodeChangeMembers(frame []byte, fields map[string]json.RawMessage) (ReceiveEvent, error) {
	var w changeMembersWire
	if err := decodeBody(frame, fields, &w, "steamids"); err != nil {
		return nil, err
	}
	members := make([]domain.MemberID, 0, len(w.SteamIDs))
	for _, id := range w.SteamIDs {
		members = append(members, domain.MemberID(*id))
	}
	return ChangeMembers{Members: members}, nil
}

func decodeSetUnavailable(frame []byte, fields map[string]json.RawMessage) (ReceiveEvent, error) {
	var w setUnavailableWire
	if err := decodeBody(frame, fields, &w, "user", "broke"); err != nil {
		return nil, err
	}
	return SetUnavailable{Member: domain.MemberID(*w.User), Unavailable: *w.Broke}, nil
}

func decodeSetPreference(frame []byte, fields map[string]json.RawMessage) (ReceiveEvent, error) {
	var w setPreferenceWire
	if err := decodeBody(frame, fields, &w, "user", "game", "preference"); err != nil {
		return nil, err
	}
	return SetPreference{
		Member:     domain.MemberID(*w.User),
		Item:       domain.ItemID(*w.Game),
		Preference: *w.Preference,
	}, nil
}

// Encode serializes a send event into the frame shared by every recipient.
func Encode(ev SendEvent) (core.Frame, error) {
	b, err := json.Marshal(ev.wire())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Tag(), err)
	}
	return core.Frame(b), nil
}
