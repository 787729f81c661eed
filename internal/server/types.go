package server

import (
	"strings"
	"time"

	"github.com/Tyrowin/chathub/internal/models"
	"github.com/Tyrowin/chathub/internal/storage"
)

// EventHandler consumes the frames read from connections and learns when a
// connection goes away.
type EventHandler interface {
	HandleEvent(connectionID string, raw []byte)
	Disconnect(connectionID string)
}

type healthResponse struct {
	Success     bool          `json:"success"`
	Status      string        `json:"status"`
	Uptime      string        `json:"uptime"`
	Connections int           `json:"connections"`
	Stats       storage.Stats `json:"stats"`
	Timestamp   time.Time     `json:"timestamp"`
}

type usersResponse struct {
	Success bool              `json:"success"`
	Users   []models.UserView `json:"users"`
}

type roomsResponse struct {
	Success bool              `json:"success"`
	Rooms   []models.RoomView `json:"rooms"`
}

type messagesResponse struct {
	Success  bool                 `json:"success"`
	Messages []models.MessageView `json:"messages"`
	Count    int                  `json:"count"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
