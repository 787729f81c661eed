package models

import (
	"time"

	"github.com/samber/lo"
)

const (
	// DefaultRoom exists for the lifetime of the process.
	DefaultRoom = "general"
	// SystemCreator is recorded as the creator of rooms the server makes itself.
	SystemCreator = "system"
	// RoomHistoryLimit bounds the per-room recent message buffer.
	RoomHistoryLimit = 100
)

// Room is a named broadcast group. Members holds the ids of users currently
// in the room; a user leaves it when switching rooms.
type Room struct {
	Name      string
	CreatedBy string
	CreatedAt time.Time
	members   []string
	messages  []*Message
}

// RoomView is the serialized form of a Room. It reports the size of the
// message buffer rather than its contents.
type RoomView struct {
	Name         string    `json:"name"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	Members      []string  `json:"members"`
	MemberCount  int       `json:"memberCount"`
	MessageCount int       `json:"messageCount"`
}

func NewRoom(name, createdBy string) *Room {
	return &Room{
		Name:      name,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
		members:   []string{},
	}
}

func (r *Room) AddMember(userID string) {
	if lo.Contains(r.members, userID) {
		return
	}
	r.members = append(r.members, userID)
}

func (r *Room) RemoveMember(userID string) {
	r.members = lo.Without(r.members, userID)
}

func (r *Room) HasMember(userID string) bool {
	return lo.Contains(r.members, userID)
}

// Members returns a copy of the member ids in join order.
func (r *Room) Members() []string {
	return append([]string{}, r.members...)
}

// AddMessage appends to the recent buffer, dropping the oldest entries past RoomHistoryLimit.
func (r *Room) AddMessage(message *Message) {
	r.messages = append(r.messages, message)
	if overflow := len(r.messages) - RoomHistoryLimit; overflow > 0 {
		r.messages = append([]*Message(nil), r.messages[overflow:]...)
	}
}

// Messages returns the buffered messages, oldest first.
func (r *Room) Messages() []*Message {
	return append([]*Message(nil), r.messages...)
}

func (r *Room) View() RoomView {
	return RoomView{
		Name:         r.Name,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    r.CreatedAt,
		Members:      r.Members(),
		MemberCount:  len(r.members),
		MessageCount: len(r.messages),
	}
}
