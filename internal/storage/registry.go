// Package storage holds the process-wide session registry: connected users,
// rooms, the global message log and the typing table.
package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/Tyrowin/chathub/internal/models"
	"github.com/samber/lo"
)

// MaxMessages caps the global message log.
const MaxMessages = 1000

var (
	ErrUsernameTaken   = errors.New("username already in use")
	ErrConnectionInUse = errors.New("connection already has a user")
)

// MessageHook observes every stored message. Hooks run after the registry
// lock is released, in registration order.
type MessageHook interface {
	OnMessageStored(message models.MessageView)
}

// MessageHookFunc adapts a function to MessageHook.
type MessageHookFunc func(message models.MessageView)

func (f MessageHookFunc) OnMessageStored(message models.MessageView) { f(message) }

// TypingState is an entry of the typing table.
type TypingState struct {
	Username string
	Room     string
}

// Registry is the single owner of all chat state. Every exported method is
// one atomic step under mu; nothing returned aliases internal state.
type Registry struct {
	mu          sync.RWMutex
	users       map[string]*models.User // connection id -> user
	usersByName map[string]*models.User
	usersByID   map[string]*models.User
	rooms       map[string]*models.Room
	roomOrder   []string
	messages    []*models.Message
	messageByID map[string]*models.Message
	typing      map[string]TypingState // connection id -> state
	seq         uint64
	maxMessages int
	hooks       []MessageHook
}

// Option configures a Registry.
type Option func(*Registry)

// WithMessageHook registers a hook called for each stored message.
func WithMessageHook(hook MessageHook) Option {
	return func(r *Registry) {
		r.hooks = append(r.hooks, hook)
	}
}

// WithMaxMessages overrides the global log cap.
func WithMaxMessages(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxMessages = n
		}
	}
}

// NewRegistry creates a registry holding the default room.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		users:       make(map[string]*models.User),
		usersByName: make(map[string]*models.User),
		usersByID:   make(map[string]*models.User),
		rooms:       make(map[string]*models.Room),
		messageByID: make(map[string]*models.Message),
		typing:      make(map[string]TypingState),
		maxMessages: MaxMessages,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.rooms[models.DefaultRoom] = models.NewRoom(models.DefaultRoom, models.SystemCreator)
	r.roomOrder = append(r.roomOrder, models.DefaultRoom)
	return r
}

// AddUser registers user under its connection id and username and seats it
// in its current room, the default room when unset. The name check, the
// insert and the room membership happen in one step, so two joins racing for
// the same name cannot both succeed and no reader sees a user outside its room.
func (r *Registry) AddUser(user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ConnectionID]; exists {
		return ErrConnectionInUse
	}
	if _, exists := r.usersByName[user.Username]; exists {
		return ErrUsernameTaken
	}
	r.users[user.ConnectionID] = user
	r.usersByName[user.Username] = user
	r.usersByID[user.ID] = user

	if user.CurrentRoom == "" {
		user.CurrentRoom = models.DefaultRoom
	}
	room, _ := r.getOrCreateRoomLocked(user.CurrentRoom, user.ID)
	room.AddMember(user.ID)
	return nil
}

// RemoveUser deregisters the user bound to connectionID. It also drops the
// user from its current room and clears its typing entry.
func (r *Registry) RemoveUser(connectionID string) (models.UserView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[connectionID]
	if !ok {
		return models.UserView{}, false
	}
	delete(r.users, connectionID)
	delete(r.usersByID, user.ID)
	if r.usersByName[user.Username] == user {
		delete(r.usersByName, user.Username)
	}
	if room, exists := r.rooms[user.CurrentRoom]; exists {
		room.RemoveMember(user.ID)
	}
	delete(r.typing, connectionID)

	user.Online = false
	return user.View(), true
}

// Session is the router's snapshot of a connected user.
type Session struct {
	models.UserView
	ConnectionID string
}

func sessionOf(user *models.User) Session {
	return Session{UserView: user.View(), ConnectionID: user.ConnectionID}
}

func (r *Registry) GetUser(connectionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[connectionID]
	if !ok {
		return Session{}, false
	}
	return sessionOf(user), true
}

func (r *Registry) GetUserByUsername(username string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.usersByName[username]
	if !ok {
		return Session{}, false
	}
	return sessionOf(user), true
}

func (r *Registry) GetUserByID(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.usersByID[userID]
	if !ok {
		return Session{}, false
	}
	return sessionOf(user), true
}

// GetAllUsers returns every connected user ordered by username.
func (r *Registry) GetAllUsers() []models.UserView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := lo.MapToSlice(r.users, func(_ string, u *models.User) models.UserView {
		return u.View()
	})
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}

// CreateRoom returns the room called name, creating it first if needed.
// created reports whether this call made it.
func (r *Registry) CreateRoom(name, creatorID string) (room models.RoomView, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, created := r.getOrCreateRoomLocked(name, creatorID)
	return existing.View(), created
}

func (r *Registry) getOrCreateRoomLocked(name, creatorID string) (*models.Room, bool) {
	if room, ok := r.rooms[name]; ok {
		return room, false
	}
	room := models.NewRoom(name, creatorID)
	r.rooms[name] = room
	r.roomOrder = append(r.roomOrder, name)
	return room, true
}

func (r *Registry) GetRoom(name string) (models.RoomView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[name]
	if !ok {
		return models.RoomView{}, false
	}
	return room.View(), true
}

func (r *Registry) RoomExists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[name]
	return ok
}

// GetAllRooms returns rooms in creation order.
func (r *Registry) GetAllRooms() []models.RoomView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return lo.Map(r.roomOrder, func(name string, _ int) models.RoomView {
		return r.rooms[name].View()
	})
}

// AddUserToRoom adds the user on connectionID to roomName and makes it the
// user's current room. It reports false when either does not exist.
func (r *Registry) AddUserToRoom(connectionID, roomName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, uok := r.users[connectionID]
	room, rok := r.rooms[roomName]
	if !uok || !rok {
		return false
	}
	room.AddMember(user.ID)
	user.CurrentRoom = roomName
	return true
}

// RemoveUserFromRoom drops the user on connectionID from roomName's member set.
func (r *Registry) RemoveUserFromRoom(connectionID, roomName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, uok := r.users[connectionID]
	room, rok := r.rooms[roomName]
	if !uok || !rok {
		return false
	}
	room.RemoveMember(user.ID)
	return true
}

// RoomSwitch describes the outcome of SwitchRoom.
type RoomSwitch struct {
	Previous string
	Room     models.RoomView
	Created  bool
}

// SwitchRoom moves the user on connectionID from its current room into
// target, creating target if needed. Leaving and joining are one step, so no
// reader ever sees the user in both rooms or in neither.
func (r *Registry) SwitchRoom(connectionID, target string) (RoomSwitch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[connectionID]
	if !exists {
		return RoomSwitch{}, false
	}
	previous := user.CurrentRoom
	if old, found := r.rooms[previous]; found {
		old.RemoveMember(user.ID)
	}
	delete(r.typing, connectionID)

	next, created := r.getOrCreateRoomLocked(target, user.ID)
	next.AddMember(user.ID)
	user.CurrentRoom = target
	return RoomSwitch{Previous: previous, Room: next.View(), Created: created}, true
}

// AddMessage assigns the next sequence number to message and appends it to
// the global log and, for room messages, to the room buffer.
func (r *Registry) AddMessage(message *models.Message) models.MessageView {
	r.mu.Lock()
	r.seq++
	message.Seq = r.seq
	r.messages = append(r.messages, message)
	r.messageByID[message.ID] = message

	if !message.IsPrivate && message.Room != "" {
		if room, ok := r.rooms[message.Room]; ok {
			room.AddMessage(message)
		}
	}

	if overflow := len(r.messages) - r.maxMessages; overflow > 0 {
		for _, evicted := range r.messages[:overflow] {
			delete(r.messageByID, evicted.ID)
		}
		r.messages = append([]*models.Message(nil), r.messages[overflow:]...)
	}

	view := message.View()
	hooks := r.hooks
	r.mu.Unlock()

	for _, hook := range hooks {
		hook.OnMessageStored(view)
	}
	return view
}

func (r *Registry) GetMessage(messageID string) (models.MessageView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	message, ok := r.messageByID[messageID]
	if !ok {
		return models.MessageView{}, false
	}
	return message.View(), true
}

// MessageCount returns the size of the global log.
func (r *Registry) MessageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}

// GetMessages returns a page of public messages, optionally limited to room.
// The page ends offset messages before the newest match and holds at most
// limit messages, oldest first.
func (r *Registry) GetMessages(room string, limit, offset int) []models.MessageView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := lo.Filter(r.messages, func(m *models.Message, _ int) bool {
		return !m.IsPrivate && (room == "" || m.Room == room)
	})
	return viewsOf(page(matches, limit, offset))
}

// GetPrivateMessages returns the most recent limit private messages exchanged
// between userA and userB in either direction, oldest first.
func (r *Registry) GetPrivateMessages(userA, userB string, limit int) []models.MessageView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := lo.Filter(r.messages, func(m *models.Message, _ int) bool {
		return m.Between(userA, userB)
	})
	return viewsOf(page(matches, limit, 0))
}

// SearchMessages returns every message whose content contains query, ignoring
// case. A non-empty room restricts the search to that room.
func (r *Registry) SearchMessages(query, room string) []models.MessageView {
	needle := strings.ToLower(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := lo.Filter(r.messages, func(m *models.Message, _ int) bool {
		if room != "" && m.Room != room {
			return false
		}
		return strings.Contains(strings.ToLower(m.Content), needle)
	})
	return viewsOf(matches)
}

// React applies fn to the stored message and returns its updated view.
func (r *Registry) React(messageID string, fn func(*models.Message)) (models.MessageView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.messageByID[messageID]
	if !ok {
		return models.MessageView{}, false
	}
	fn(message)
	return message.View(), true
}

func (r *Registry) AddReaction(messageID, userID, emoji string) (models.MessageView, bool) {
	return r.React(messageID, func(m *models.Message) { m.AddReaction(userID, emoji) })
}

func (r *Registry) RemoveReaction(messageID, userID, emoji string) (models.MessageView, bool) {
	return r.React(messageID, func(m *models.Message) { m.RemoveReaction(userID, emoji) })
}

func (r *Registry) MarkRead(messageID, userID string) (models.MessageView, bool) {
	return r.React(messageID, func(m *models.Message) { m.MarkRead(userID) })
}

// SetTyping records or clears the typing flag for connectionID.
func (r *Registry) SetTyping(connectionID, username, room string, isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !isTyping {
		delete(r.typing, connectionID)
		return
	}
	r.typing[connectionID] = TypingState{Username: username, Room: room}
}

// GetTypingUsers returns the usernames typing in room, sorted.
func (r *Registry) GetTypingUsers(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.FilterMap(lo.Values(r.typing), func(state TypingState, _ int) (string, bool) {
		return state.Username, state.Room == room
	})
	sort.Strings(names)
	return names
}

func (r *Registry) ClearTyping(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.typing, connectionID)
}

// Stats is a point-in-time count of registry contents.
type Stats struct {
	Users    int `json:"users"`
	Rooms    int `json:"rooms"`
	Messages int `json:"messages"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Users: len(r.users), Rooms: len(r.rooms), Messages: len(r.messages)}
}

func page(messages []*models.Message, limit, offset int) []*models.Message {
	if limit <= 0 {
		return nil
	}
	if offset < 0 {
		offset = 0
	}
	end := len(messages) - offset
	if end <= 0 {
		return nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return messages[start:end]
}

func viewsOf(messages []*models.Message) []models.MessageView {
	return lo.Map(messages, func(m *models.Message, _ int) models.MessageView {
		return m.View()
	})
}
