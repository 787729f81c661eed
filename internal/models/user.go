package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a connected identity. ID is stable for the lifetime of the session
// and distinct from the transport-level ConnectionID.
type User struct {
	ID           string
	Username     string
	ConnectionID string
	Online       bool
	LastSeen     time.Time
	CurrentRoom  string
}

// UserView is the serialized form of a User. The connection id is internal.
type UserView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Online      bool      `json:"online"`
	LastSeen    time.Time `json:"lastSeen"`
	CurrentRoom string    `json:"currentRoom"`
}

// NewUser creates an online user bound to connectionID, placed in the default room.
func NewUser(username, connectionID string) *User {
	return &User{
		ID:           uuid.NewString(),
		Username:     username,
		ConnectionID: connectionID,
		Online:       true,
		LastSeen:     time.Now().UTC(),
		CurrentRoom:  DefaultRoom,
	}
}

// View returns the serialized form of the user.
func (u *User) View() UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		Online:      u.Online,
		LastSeen:    u.LastSeen,
		CurrentRoom: u.CurrentRoom,
	}
}
