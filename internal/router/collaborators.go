package router

// Transport delivers events to live connections and keeps the room groups
// used for multicast. Implementations must not block on slow connections.
type Transport interface {
	JoinGroup(connectionID, group string)
	LeaveGroup(connectionID, group string)
	SendToConnection(connectionID string, event OutboundEvent, payload any)
	// SendToGroup delivers to every connection in group except exclude. An
	// empty exclude delivers to all of them.
	SendToGroup(group string, event OutboundEvent, payload any, exclude string)
	SendToAll(event OutboundEvent, payload any)
}

// Authenticator vets the identity presented at join. The router never
// interprets the token itself.
type Authenticator interface {
	Authenticate(username, token string) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(username, token string) error

func (f AuthenticatorFunc) Authenticate(username, token string) error { return f(username, token) }

// ContentFilter rewrites message content before it is stored.
type ContentFilter interface {
	Censor(content string) string
}

type acceptAll struct{}

func (acceptAll) Authenticate(string, string) error { return nil }

type passThrough struct{}

func (passThrough) Censor(content string) string { return content }
