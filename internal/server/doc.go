// Package server is the WebSocket transport of the chat hub.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers. The Hub implements
// router.Transport: it keeps one queue per connection plus the room groups
// used for multicast, and it feeds every inbound frame to the event router.
package server
