package invite

import (
	"errors"
	"time"
)

var (
	ErrInvalidArgs        = errors.New("invalid arguments")
	ErrSelfInvite         = errors.New("cannot invite yourself")
	ErrTargetOffline      = errors.New("invitation target is not online")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrNotRecipient       = errors.New("invitation is addressed to someone else")
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusDeclined Status = "DECLINED"
)

// Invitation is a pending offer from one identity to another to play in RoomID.
type Invitation struct {
	ID        string
	From      string
	FromName  string
	To        string
	ToName    string
	RoomID    string
	CreatedAt time.Time
	Status    Status

	// connection the invitation was delivered to
	ToConn string
}
