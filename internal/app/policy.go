package app

import "github.com/dkeye/GameFinder/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

func (a BackpressureAction) String() string {
	switch a {
	case KickMember:
		return "kick"
	case DropFrame:
		return "drop"
	default:
		return "none"
	}
}

// Policy decides what happens to a peer that could not take a frame.
type Policy interface {
	OnBackPressure(sess *core.Session, peer core.Peer) BackpressureAction
}

// SimplePolicy treats every failed delivery as a disconnect.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*core.Session, core.Peer) BackpressureAction {
	return KickMember
}
