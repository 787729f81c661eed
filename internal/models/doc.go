// Package models defines the chat entities held by the session registry:
// users, messages and rooms, together with the views they are serialized as.
//
// Entities are not safe for concurrent use on their own. The registry owns
// every instance and mutates them under its lock; anything handed outside the
// registry is a View, which is a deep copy.
package models
