// Package domain contains value types without logic, just meta-data
package domain

type (
	// SessionID names a room. Possession of the id is the only access control.
	SessionID string
	// MemberID is an external account id (a steam id in practice).
	MemberID string
	// ItemID identifies a shared game.
	ItemID uint64
)
