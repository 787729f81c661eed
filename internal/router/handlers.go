package router

import (
	"encoding/json"
	"errors"

	"github.com/Tyrowin/chathub/internal/models"
	"github.com/Tyrowin/chathub/internal/storage"
	"github.com/samber/lo"
)

// historyPageSize is the page sent on join and room switch, and the default
// for history requests without a limit.
const historyPageSize = 50

func (r *Router) handleJoin(c *eventContext, data json.RawMessage) error {
	req, err := decode[JoinRequest](r, data)
	if err != nil {
		return err
	}
	if _, joined := r.registry.GetUser(c.connectionID); joined {
		return invalid("connection already joined")
	}
	if err := r.auth.Authenticate(req.Username, req.Token); err != nil {
		return invalid("authentication rejected: %v", err)
	}

	user := models.NewUser(req.Username, c.connectionID)
	if err := r.registry.AddUser(user); err != nil {
		if errors.Is(err, storage.ErrUsernameTaken) {
			return invalid("username %q is already in use", req.Username)
		}
		return invalid("%v", err)
	}

	r.transport.JoinGroup(c.connectionID, user.CurrentRoom)

	r.transport.SendToConnection(c.connectionID, EventAuthenticated, AuthenticatedPayload{
		UserID:       user.ID,
		Username:     user.Username,
		ConnectionID: c.connectionID,
	})
	r.transport.SendToAll(EventUserList, r.registry.GetAllUsers())
	r.transport.SendToGroup(models.DefaultRoom, EventUserJoined, PresencePayload{
		Username: user.Username,
		UserID:   user.ID,
		Room:     models.DefaultRoom,
	}, "")
	r.transport.SendToConnection(c.connectionID, EventRoomList, r.registry.GetAllRooms())
	r.transport.SendToConnection(c.connectionID, EventMessageHistory,
		r.registry.GetMessages(models.DefaultRoom, historyPageSize, 0))

	r.log.Info("User joined", "conn", c.connectionID, "user", user.Username, "user_id", user.ID)
	return nil
}

func (r *Router) handleSendMessage(c *eventContext, data json.RawMessage) error {
	req, err := decode[SendMessageRequest](r, data)
	if err != nil {
		return err
	}
	room := lo.Ternary(req.Room == "", c.user.CurrentRoom, req.Room)
	if !r.registry.RoomExists(room) {
		return notFound("room " + room)
	}

	message := models.NewMessage(c.user.ID, c.user.Username, r.filter.Censor(req.Content), room)
	if req.File != nil {
		message.AttachFile(req.File.URL, req.File.Name)
	}
	stored := r.registry.AddMessage(message)

	r.transport.SendToGroup(room, EventReceiveMessage, stored, "")
	r.transport.SendToGroup(room, EventNotification, NotificationPayload{
		MessageID: stored.ID,
		From:      c.user.Username,
		Room:      room,
		Preview:   preview(stored.Content),
	}, c.connectionID)
	return nil
}

// handlePrivateMessage addresses the recipient by user id.
func (r *Router) handlePrivateMessage(c *eventContext, data json.RawMessage) error {
	req, err := decode[PrivateMessageRequest](r, data)
	if err != nil {
		return err
	}
	recipient, ok := r.registry.GetUserByID(req.RecipientID)
	if !ok {
		return notFound("recipient")
	}

	message := models.NewPrivateMessage(c.user.ID, c.user.Username, r.filter.Censor(req.Content), recipient.ID)
	if req.File != nil {
		message.AttachFile(req.File.URL, req.File.Name)
	}
	stored := r.registry.AddMessage(message)

	r.transport.SendToConnection(c.connectionID, EventReceivePrivate, stored)
	if recipient.ConnectionID != c.connectionID {
		r.transport.SendToConnection(recipient.ConnectionID, EventReceivePrivate, stored)
	}
	r.transport.SendToConnection(recipient.ConnectionID, EventNotification, NotificationPayload{
		MessageID: stored.ID,
		From:      c.user.Username,
		IsPrivate: true,
		Preview:   preview(stored.Content),
	})
	return nil
}

func (r *Router) handleTyping(c *eventContext, data json.RawMessage) error {
	req, err := decode[TypingRequest](r, data)
	if err != nil {
		return err
	}
	room := lo.Ternary(req.Room == "", c.user.CurrentRoom, req.Room)
	if room != c.user.CurrentRoom {
		if !r.registry.RoomExists(room) {
			return notFound("room " + room)
		}
		return invalid("typing is only reported in the current room %q", c.user.CurrentRoom)
	}

	r.registry.SetTyping(c.connectionID, c.user.Username, room, req.IsTyping)
	r.transport.SendToGroup(room, EventTypingUsers, TypingPayload{
		Room:  room,
		Users: r.registry.GetTypingUsers(room),
	}, c.connectionID)
	return nil
}

func (r *Router) handleSwitchRoom(c *eventContext, data json.RawMessage) error {
	req, err := decode[RoomRequest](r, data)
	if err != nil {
		return err
	}
	switched, ok := r.registry.SwitchRoom(c.connectionID, req.RoomName)
	if !ok {
		return ErrNotAuthenticated
	}
	target := switched.Room.Name

	r.transport.LeaveGroup(c.connectionID, switched.Previous)
	r.transport.JoinGroup(c.connectionID, target)

	if switched.Previous != target {
		r.transport.SendToGroup(switched.Previous, EventUserLeftRoom, PresencePayload{
			Username: c.user.Username,
			Room:     switched.Previous,
		}, "")
	}
	r.transport.SendToGroup(target, EventUserJoinedRoom, PresencePayload{
		Username: c.user.Username,
		Room:     target,
	}, "")
	if switched.Created {
		r.transport.SendToAll(EventRoomList, r.registry.GetAllRooms())
	}

	r.transport.SendToConnection(c.connectionID, EventMessageHistory,
		r.registry.GetMessages(target, historyPageSize, 0))
	r.transport.SendToConnection(c.connectionID, EventRoomJoined, RoomJoinedPayload{Room: target})

	r.log.Info("User switched room", "conn", c.connectionID, "user", c.user.Username,
		"from", switched.Previous, "room", target)
	return nil
}

func (r *Router) handleCreateRoom(c *eventContext, data json.RawMessage) error {
	req, err := decode[RoomRequest](r, data)
	if err != nil {
		return err
	}
	room, created := r.registry.CreateRoom(req.RoomName, c.user.ID)

	r.transport.SendToAll(EventRoomList, r.registry.GetAllRooms())
	r.transport.SendToConnection(c.connectionID, EventRoomCreated, room)

	if created {
		r.log.Info("Room created", "conn", c.connectionID, "user", c.user.Username, "room", room.Name)
	}
	return nil
}

func (r *Router) handleAddReaction(c *eventContext, data json.RawMessage) error {
	return r.react(c, data, func(messageID, emoji string) (models.MessageView, bool) {
		return r.registry.AddReaction(messageID, c.user.ID, emoji)
	})
}

func (r *Router) handleRemoveReaction(c *eventContext, data json.RawMessage) error {
	return r.react(c, data, func(messageID, emoji string) (models.MessageView, bool) {
		return r.registry.RemoveReaction(messageID, c.user.ID, emoji)
	})
}

func (r *Router) react(c *eventContext, data json.RawMessage, apply func(messageID, emoji string) (models.MessageView, bool)) error {
	req, err := decode[ReactionRequest](r, data)
	if err != nil {
		return err
	}
	if _, err := r.visibleMessage(c, req.MessageID); err != nil {
		return err
	}
	updated, ok := apply(req.MessageID, req.Emoji)
	if !ok {
		return notFound("message")
	}
	r.deliverToAudience(updated, EventMessageReaction, reactionPayload(updated))
	return nil
}

func (r *Router) handleMarkRead(c *eventContext, data json.RawMessage) error {
	req, err := decode[MarkReadRequest](r, data)
	if err != nil {
		return err
	}
	if _, err := r.visibleMessage(c, req.MessageID); err != nil {
		return err
	}
	updated, ok := r.registry.MarkRead(req.MessageID, c.user.ID)
	if !ok {
		return notFound("message")
	}

	sender, online := r.registry.GetUserByID(updated.SenderID)
	if !online {
		return nil
	}
	r.transport.SendToConnection(sender.ConnectionID, EventMessageRead, ReadReceiptPayload{
		MessageID: updated.ID,
		ReadBy:    c.user.Username,
		ReaderID:  c.user.ID,
	})
	return nil
}

func (r *Router) handleFetchHistory(c *eventContext, data json.RawMessage) error {
	req, err := decode[HistoryRequest](r, data)
	if err != nil {
		return err
	}
	if req.Room != "" && !r.registry.RoomExists(req.Room) {
		return notFound("room " + req.Room)
	}
	limit := lo.Ternary(req.Limit == 0, historyPageSize, req.Limit)

	r.transport.SendToConnection(c.connectionID, EventMessageHistory,
		r.registry.GetMessages(req.Room, limit, req.Offset))
	return nil
}

func (r *Router) handleFetchPrivateHistory(c *eventContext, data json.RawMessage) error {
	req, err := decode[PrivateHistoryRequest](r, data)
	if err != nil {
		return err
	}
	limit := lo.Ternary(req.Limit == 0, historyPageSize, req.Limit)

	r.transport.SendToConnection(c.connectionID, EventPrivateMessageHistory,
		r.registry.GetPrivateMessages(c.user.ID, req.RecipientID, limit))
	return nil
}

// handleSearch only returns private messages the requester took part in.
func (r *Router) handleSearch(c *eventContext, data json.RawMessage) error {
	req, err := decode[SearchRequest](r, data)
	if err != nil {
		return err
	}
	results := lo.Filter(r.registry.SearchMessages(req.Query, req.Room), func(m models.MessageView, _ int) bool {
		return m.VisibleTo(c.user.ID)
	})
	r.transport.SendToConnection(c.connectionID, EventSearchResults, results)
	return nil
}

// Disconnect deregisters whoever was joined on connectionID. It is safe to
// call for connections that never joined.
func (r *Router) Disconnect(connectionID string) {
	user, ok := r.registry.RemoveUser(connectionID)
	if !ok {
		return
	}
	r.transport.LeaveGroup(connectionID, user.CurrentRoom)

	r.transport.SendToAll(EventUserList, r.registry.GetAllUsers())
	r.transport.SendToGroup(user.CurrentRoom, EventUserLeft, PresencePayload{
		Username: user.Username,
		UserID:   user.ID,
		Room:     user.CurrentRoom,
	}, "")
	r.transport.SendToGroup(user.CurrentRoom, EventTypingUsers, TypingPayload{
		Room:  user.CurrentRoom,
		Users: r.registry.GetTypingUsers(user.CurrentRoom),
	}, "")

	r.log.Info("User disconnected", "conn", connectionID, "user", user.Username)
}

// visibleMessage looks up a message the requester is allowed to act on.
// Private messages of other pairs are reported as missing.
func (r *Router) visibleMessage(c *eventContext, messageID string) (models.MessageView, error) {
	message, ok := r.registry.GetMessage(messageID)
	if !ok {
		return models.MessageView{}, notFound("message")
	}
	if !message.VisibleTo(c.user.ID) {
		return models.MessageView{}, notFound("message")
	}
	return message, nil
}

// deliverToAudience sends to the message's room, or to both private parties
// that are still connected.
func (r *Router) deliverToAudience(message models.MessageView, event OutboundEvent, payload any) {
	if !message.IsPrivate {
		r.transport.SendToGroup(lo.FromPtr(message.Room), event, payload, "")
		return
	}
	parties := lo.Uniq([]string{message.SenderID, lo.FromPtr(message.RecipientID)})
	for _, userID := range parties {
		if party, ok := r.registry.GetUserByID(userID); ok {
			r.transport.SendToConnection(party.ConnectionID, event, payload)
		}
	}
}
