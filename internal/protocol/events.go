// Package protocol defines the closed set of frames exchanged over a room
// connection. Every frame is a flat JSON object whose "type" field names the
// variant; the remaining fields are that variant's payload.
package protocol

import (
	"github.com/dkeye/GameFinder/internal/core"
	"github.com/dkeye/GameFinder/internal/domain"
)

// Receive tags. The second spelling of each is what older clients send.
const (
	TagChangeMembers  = "ChangeMembers"
	TagChangeUser     = "ChangeUser"
	TagSetUnavailable = "SetUnavailable"
	TagSetBroke       = "SetBroke"
	TagSetPreference  = "SetPreference"
)

// Send tags.
const (
	TagSessionSnapshot    = "SendInfo"
	TagMembersChanged     = "UpdatedUser"
	TagUnavailableChanged = "UpdateBroke"
	TagPreferenceChanged  = "UpdatePreference"
	TagError              = "Error"
)

type Event interface {
	Tag() string
}

// ReceiveEvent is a decoded client→server frame. Values are immutable once
// decoded.
type ReceiveEvent interface {
	Event
	receive()
}

// SendEvent is a server→client frame.
type SendEvent interface {
	Event
	wire() any
}

type ChangeMembers struct {
	Members []domain.MemberID
}

type SetUnavailable struct {
	Member      domain.MemberID
	Unavailable bool
}

type SetPreference struct {
	Member     domain.MemberID
	Item       domain.ItemID
	Preference domain.Preference
}

func (ChangeMembers) Tag() string  { return TagChangeMembers }
func (SetUnavailable) Tag() string { return TagSetUnavailable }
func (SetPreference) Tag() string  { return TagSetPreference }

func (ChangeMembers) receive()  {}
func (SetUnavailable) receive() {}
func (SetPreference) receive()  {}

type SessionSnapshot struct {
	Session core.Snapshot
}

type MembersChanged struct {
	Members []domain.MemberID
}

type UnavailableChanged struct {
	Member      domain.MemberID
	Unavailable bool
}

type PreferenceChanged struct {
	Member     domain.MemberID
	Item       domain.ItemID
	Preference domain.Preference
}

// Error tells one client its frame was not applied.
type Error struct {
	Code    string
	Message string
}

func (SessionSnapshot) Tag() string    { return TagSessionSnapshot }
func (MembersChanged) Tag() string     { return TagMembersChanged }
func (UnavailableChanged) Tag() string { return TagUnavailableChanged }
func (PreferenceChanged) Tag() string  { return TagPreferenceChanged }
func (Error) Tag() string              { return TagError }

func UnavailableChangedFrom(ev SetUnavailable) UnavailableChanged {
	return UnavailableChanged{Member: ev.Member, Unavailable: ev.Unavailable}
}

func PreferenceChangedFrom(ev SetPreference) PreferenceChanged {
	return PreferenceChanged{Member: ev.Member, Item: ev.Item, Preference: ev.Preference}
}

// SnapshotBody is the JSON shape of a session, shared by the SendInfo frame
// and the HTTP lookup.
type SnapshotBody struct {
	ID          domain.SessionID                                        `json:"id"`
	SteamIDs    []domain.MemberID                                       `json:"steamids"`
	Broke       []domain.MemberID                                       `json:"broke"`
	Preferences map[domain.MemberID]map[domain.ItemID]domain.Preference `json:"preferences"`
}

func NewSnapshotBody(s core.Snapshot) SnapshotBody {
	body := SnapshotBody{
		ID:          s.ID,
		SteamIDs:    s.Members,
		Broke:       s.Unavailable,
		Preferences: s.Preferences,
	}
	if body.SteamIDs == nil {
		body.SteamIDs = []domain.MemberID{}
	}
	if body.Broke == nil {
		body.Broke = []domain.MemberID{}
	}
	if body.Preferences == nil {
		body.Preferences = map[domain.MemberID]map[domain.ItemID]domain.Preference{}
	}
	return body
}

type sessionSnapshotFrame struct {
	Type string `json:"type"`
	SnapshotBody
}

type membersChangedFrame struct {
	Type     string            `json:"type"`
	SteamIDs []domain.MemberID `json:"steamids"`
}

type unavailableChangedFrame struct {
	Type  string          `json:"type"`
	User  domain.MemberID `json:"user"`
	Broke bool            `json:"broke"`
}

type preferenceChangedFrame struct {
	Type       string            `json:"type"`
	User       domain.MemberID   `json:"user"`
	Game       domain.ItemID     `json:"game"`
	Preference domain.Preference `json:"preference"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (e SessionSnapshot) wire() any {
	return sessionSnapshotFrame{Type: TagSessionSnapshot, SnapshotBody: NewSnapshotBody(e.Session)}
}

func (e MembersChanged) wire() any {
	members := e.Members
	if members == nil {
		members = []domain.MemberID{}
	}
	return membersChangedFrame{Type: TagMembersChanged, SteamIDs: members}
}

func (e UnavailableChanged) wire() any {
	return unavailableChangedFrame{Type: TagUnavailableChanged, User: e.Member, Broke: e.Unavailable}
}

func (e PreferenceChanged) wire() any {
	return preferenceChangedFrame{Type: TagPreferenceChanged, User: e.Member, Game: e.Item, Preference: e.Preference}
}

func (e Error) wire() any {
	return errorFrame{Type: TagError, Error: e.Code, Message: e.Message}
}
