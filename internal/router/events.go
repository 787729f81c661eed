package router

import (
	"encoding/json"
	"strings"

	"github.com/Tyrowin/chathub/internal/models"
)

// InboundEvent names an event a client can send.
type InboundEvent string

const (
	EventJoin                InboundEvent = "user_join"
	EventSendMessage         InboundEvent = "send_message"
	EventPrivateMessage      InboundEvent = "private_message"
	EventTyping              InboundEvent = "typing"
	EventSwitchRoom          InboundEvent = "join_room"
	EventCreateRoom          InboundEvent = "create_room"
	EventAddReaction         InboundEvent = "add_reaction"
	EventRemoveReaction      InboundEvent = "remove_reaction"
	EventMarkRead            InboundEvent = "mark_read"
	EventFetchHistory        InboundEvent = "get_messages"
	EventFetchPrivateHistory InboundEvent = "get_private_messages"
	EventSearch              InboundEvent = "search_messages"
)

// InboundEvents lists every inbound event; the dispatch table must cover all of them.
var InboundEvents = []InboundEvent{
	EventJoin,
	EventSendMessage,
	EventPrivateMessage,
	EventTyping,
	EventSwitchRoom,
	EventCreateRoom,
	EventAddReaction,
	EventRemoveReaction,
	EventMarkRead,
	EventFetchHistory,
	EventFetchPrivateHistory,
	EventSearch,
}

// OutboundEvent names an event the server delivers to clients.
type OutboundEvent string

const (
	EventAuthenticated         OutboundEvent = "user_authenticated"
	EventRoomList              OutboundEvent = "room_list"
	EventMessageHistory        OutboundEvent = "message_history"
	EventUserList              OutboundEvent = "user_list"
	EventUserJoined            OutboundEvent = "user_joined"
	EventUserLeft              OutboundEvent = "user_left"
	EventReceiveMessage        OutboundEvent = "receive_message"
	EventNotification          OutboundEvent = "new_message_notification"
	EventReceivePrivate        OutboundEvent = "receive_private_message"
	EventTypingUsers           OutboundEvent = "typing_users"
	EventUserLeftRoom          OutboundEvent = "user_left_room"
	EventUserJoinedRoom        OutboundEvent = "user_joined_room"
	EventRoomJoined            OutboundEvent = "room_joined"
	EventRoomCreated           OutboundEvent = "room_created"
	EventMessageReaction       OutboundEvent = "message_reaction"
	EventMessageRead           OutboundEvent = "message_read"
	EventPrivateMessageHistory OutboundEvent = "private_message_history"
	EventSearchResults         OutboundEvent = "search_results"
	EventError                 OutboundEvent = "error"
)

// Envelope is the JSON frame exchanged over a connection.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundEnvelope struct {
	Event OutboundEvent `json:"event"`
	Data  any           `json:"data"`
}

// Encode renders an outbound event as a wire frame.
func Encode(event OutboundEvent, payload any) ([]byte, error) {
	return json.Marshal(outboundEnvelope{Event: event, Data: payload})
}

// Inbound payloads.

type FileRef struct {
	URL  string `json:"url" validate:"required,max=2048"`
	Name string `json:"name" validate:"max=255"`
}

type JoinRequest struct {
	Username string `json:"username" validate:"required,notblank,min=3,max=20"`
	Token    string `json:"token"`
}

func (j *JoinRequest) trim() { j.Username = strings.TrimSpace(j.Username) }

type SendMessageRequest struct {
	Content string   `json:"content" validate:"required_without=File,omitempty,notblank,max=5000"`
	Room    string   `json:"room" validate:"omitempty,min=3,max=50"`
	File    *FileRef `json:"file"`
}

func (m *SendMessageRequest) trim() { m.Room = strings.TrimSpace(m.Room) }

type PrivateMessageRequest struct {
	RecipientID string   `json:"recipientId" validate:"required"`
	Content     string   `json:"content" validate:"required_without=File,omitempty,notblank,max=5000"`
	File        *FileRef `json:"file"`
}

type TypingRequest struct {
	Room     string `json:"room"`
	IsTyping bool   `json:"isTyping"`
}

func (t *TypingRequest) trim() { t.Room = strings.TrimSpace(t.Room) }

type RoomRequest struct {
	RoomName string `json:"roomName" validate:"required,notblank,min=3,max=50"`
}

func (r *RoomRequest) trim() { r.RoomName = strings.TrimSpace(r.RoomName) }

type ReactionRequest struct {
	MessageID string `json:"messageId" validate:"required"`
	Emoji     string `json:"emoji" validate:"required,max=32"`
}

type MarkReadRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type HistoryRequest struct {
	Room   string `json:"room"`
	Limit  int    `json:"limit" validate:"gte=0,lte=1000"`
	Offset int    `json:"offset" validate:"gte=0"`
}

type PrivateHistoryRequest struct {
	RecipientID string `json:"recipientId" validate:"required"`
	Limit       int    `json:"limit" validate:"gte=0,lte=1000"`
}

type SearchRequest struct {
	Query string `json:"query" validate:"required,notblank,max=200"`
	Room  string `json:"room"`
}

// Outbound payloads.

type AuthenticatedPayload struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	ConnectionID string `json:"socketId"`
}

type PresencePayload struct {
	Username string `json:"username"`
	UserID   string `json:"userId,omitempty"`
	Room     string `json:"room"`
}

type NotificationPayload struct {
	MessageID string `json:"messageId"`
	From      string `json:"from"`
	Room      string `json:"room,omitempty"`
	IsPrivate bool   `json:"isPrivate,omitempty"`
	Preview   string `json:"preview"`
}

type TypingPayload struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

type RoomJoinedPayload struct {
	Room string `json:"room"`
}

type ReactionPayload struct {
	MessageID string              `json:"messageId"`
	Reactions map[string][]string `json:"reactions"`
}

type ReadReceiptPayload struct {
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
	ReaderID  string `json:"readerId"`
}

type ErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Event   string    `json:"event,omitempty"`
}

// previewLength is the number of runes quoted in notifications.
const previewLength = 50

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength])
}

func reactionPayload(message models.MessageView) ReactionPayload {
	return ReactionPayload{MessageID: message.ID, Reactions: message.Reactions}
}
