package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Message is a chat message addressed either to a room or to a single
// recipient. Only Reactions and ReadBy change after creation.
type Message struct {
	ID          string
	Seq         uint64
	SenderID    string
	SenderName  string
	Content     string
	Room        string
	IsPrivate   bool
	RecipientID string
	Timestamp   time.Time
	Reactions   map[string][]string // emoji -> user ids, in reaction order
	ReadBy      []string
	FileURL     string
	FileName    string
}

// MessageView is the serialized form of a Message. Room is null for private
// messages and RecipientID is null for room messages.
type MessageView struct {
	ID          string              `json:"id"`
	Seq         uint64              `json:"seq"`
	SenderID    string              `json:"senderId"`
	SenderName  string              `json:"senderName"`
	Content     string              `json:"content"`
	Room        *string             `json:"room"`
	IsPrivate   bool                `json:"isPrivate"`
	RecipientID *string             `json:"recipientId"`
	Timestamp   time.Time           `json:"timestamp"`
	Reactions   map[string][]string `json:"reactions"`
	ReadBy      []string            `json:"readBy"`
	FileURL     *string             `json:"fileUrl"`
	FileName    *string             `json:"fileName"`
}

// NewMessage creates a message posted to room.
func NewMessage(senderID, senderName, content, room string) *Message {
	return newMessage(senderID, senderName, content, room, false, "")
}

// NewPrivateMessage creates a message addressed to recipientID.
func NewPrivateMessage(senderID, senderName, content, recipientID string) *Message {
	return newMessage(senderID, senderName, content, "", true, recipientID)
}

func newMessage(senderID, senderName, content, room string, private bool, recipientID string) *Message {
	return &Message{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		SenderName:  senderName,
		Content:     content,
		Room:        room,
		IsPrivate:   private,
		RecipientID: recipientID,
		Timestamp:   time.Now().UTC(),
		Reactions:   make(map[string][]string),
		ReadBy:      []string{},
	}
}

// AttachFile records the result of an external upload on the message.
func (m *Message) AttachFile(url, name string) {
	m.FileURL = url
	m.FileName = name
}

// AddReaction records that userID reacted with emoji. Repeating the same pair is a no-op.
func (m *Message) AddReaction(userID, emoji string) {
	users := m.Reactions[emoji]
	if lo.Contains(users, userID) {
		return
	}
	m.Reactions[emoji] = append(users, userID)
}

// RemoveReaction withdraws userID's emoji reaction. The emoji key disappears
// once nobody is left reacting with it.
func (m *Message) RemoveReaction(userID, emoji string) {
	users, ok := m.Reactions[emoji]
	if !ok {
		return
	}
	remaining := lo.Without(users, userID)
	if len(remaining) == 0 {
		delete(m.Reactions, emoji)
		return
	}
	m.Reactions[emoji] = remaining
}

// MarkRead records that userID has seen the message.
func (m *Message) MarkRead(userID string) {
	if lo.Contains(m.ReadBy, userID) {
		return
	}
	m.ReadBy = append(m.ReadBy, userID)
}

// VisibleTo reports whether userID may see the message: room messages are
// public, private ones only to their sender and recipient.
func (v MessageView) VisibleTo(userID string) bool {
	if !v.IsPrivate {
		return true
	}
	return v.SenderID == userID || lo.FromPtr(v.RecipientID) == userID
}

// Between reports whether m is a private message exchanged by exactly a and b.
func (m *Message) Between(a, b string) bool {
	if !m.IsPrivate {
		return false
	}
	return (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a)
}

// ReactionsView returns a deep copy of the reaction map.
func (m *Message) ReactionsView() map[string][]string {
	out := make(map[string][]string, len(m.Reactions))
	for emoji, users := range m.Reactions {
		out[emoji] = append([]string(nil), users...)
	}
	return out
}

// View returns a deep copy of the message suitable for serialization.
func (m *Message) View() MessageView {
	return MessageView{
		ID:          m.ID,
		Seq:         m.Seq,
		SenderID:    m.SenderID,
		SenderName:  m.SenderName,
		Content:     m.Content,
		Room:        lo.EmptyableToPtr(m.Room),
		IsPrivate:   m.IsPrivate,
		RecipientID: lo.EmptyableToPtr(m.RecipientID),
		Timestamp:   m.Timestamp,
		Reactions:   m.ReactionsView(),
		ReadBy:      append([]string{}, m.ReadBy...),
		FileURL:     lo.EmptyableToPtr(m.FileURL),
		FileName:    lo.EmptyableToPtr(m.FileName),
	}
}
