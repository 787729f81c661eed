// Package router implements the per-connection protocol state machine. It
// turns inbound events into registry mutations and outbound deliveries.
package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/Tyrowin/chathub/internal/storage"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// eventContext carries what a handler knows about the originating connection.
// user is only set for events that require an authenticated connection.
type eventContext struct {
	connectionID string
	event        InboundEvent
	user         storage.Session
}

type handlerFunc func(c *eventContext, data json.RawMessage) error

// Router dispatches inbound events for every connection. It holds no chat
// state of its own; all of it lives in the registry.
type Router struct {
	log       *slog.Logger
	registry  *storage.Registry
	transport Transport
	auth      Authenticator
	filter    ContentFilter
	validate  *validator.Validate
	handlers  map[InboundEvent]handlerFunc
}

// Option configures a Router.
type Option func(*Router)

// WithAuthenticator vets usernames and tokens at join.
func WithAuthenticator(auth Authenticator) Option {
	return func(r *Router) {
		if auth != nil {
			r.auth = auth
		}
	}
}

// WithContentFilter rewrites message content before storage.
func WithContentFilter(filter ContentFilter) Option {
	return func(r *Router) {
		if filter != nil {
			r.filter = filter
		}
	}
}

func New(log *slog.Logger, registry *storage.Registry, transport Transport, opts ...Option) *Router {
	r := &Router{
		log:       log,
		registry:  registry,
		transport: transport,
		auth:      acceptAll{},
		filter:    passThrough{},
		validate:  newValidator(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.handlers = map[InboundEvent]handlerFunc{
		EventJoin:                r.handleJoin,
		EventSendMessage:         r.handleSendMessage,
		EventPrivateMessage:      r.handlePrivateMessage,
		EventTyping:              r.handleTyping,
		EventSwitchRoom:          r.handleSwitchRoom,
		EventCreateRoom:          r.handleCreateRoom,
		EventAddReaction:         r.handleAddReaction,
		EventRemoveReaction:      r.handleRemoveReaction,
		EventMarkRead:            r.handleMarkRead,
		EventFetchHistory:        r.handleFetchHistory,
		EventFetchPrivateHistory: r.handleFetchPrivateHistory,
		EventSearch:              r.handleSearch,
	}
	return r
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// HandlesEvent reports whether event has a handler.
func (r *Router) HandlesEvent(event InboundEvent) bool {
	_, ok := r.handlers[event]
	return ok
}

// HandleEvent processes one raw frame from connectionID. Failures are
// reported to that connection only.
func (r *Router) HandleEvent(connectionID string, raw []byte) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		r.reject(connectionID, "", invalid("malformed event frame"))
		return
	}

	event := InboundEvent(envelope.Event)
	handler, ok := r.handlers[event]
	if !ok {
		r.reject(connectionID, envelope.Event, invalid("unknown event %q", envelope.Event))
		return
	}
	r.dispatch(&eventContext{connectionID: connectionID, event: event}, handler, envelope.Data)
}

func (r *Router) dispatch(c *eventContext, handler handlerFunc, data json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Event handler panicked",
				"conn", c.connectionID, "event", c.event, "panic", rec, "stack", string(debug.Stack()))
			r.reject(c.connectionID, string(c.event), fmt.Errorf("%w: %v", ErrInternal, rec))
		}
	}()

	if c.event != EventJoin {
		user, ok := r.registry.GetUser(c.connectionID)
		if !ok {
			r.reject(c.connectionID, string(c.event), ErrNotAuthenticated)
			return
		}
		c.user = user
	}

	if err := handler(c, data); err != nil {
		if CodeOf(err) == CodeInternal {
			r.log.Error("Event handling failed", "conn", c.connectionID, "event", c.event, "error", err)
		} else {
			r.log.Debug("Event rejected", "conn", c.connectionID, "event", c.event, "error", err)
		}
		r.reject(c.connectionID, string(c.event), err)
	}
}

func (r *Router) reject(connectionID, event string, err error) {
	r.transport.SendToConnection(connectionID, EventError, errorPayload(event, err))
}

// trimmer is implemented by payloads carrying names that ignore surrounding
// whitespace.
type trimmer interface {
	trim()
}

// decode unmarshals and validates an event payload. A missing payload
// decodes as an empty object. Names are trimmed before validation.
func decode[T any](r *Router, data json.RawMessage) (T, error) {
	var payload T
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &payload); err != nil {
			return payload, invalid("malformed payload")
		}
	}
	if t, ok := any(&payload).(trimmer); ok {
		t.trim()
	}
	if err := r.validate.Struct(payload); err != nil {
		return payload, invalidPayload(err)
	}
	return payload, nil
}
