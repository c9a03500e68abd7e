// Package domain contains core concepts of the real-time core.
// This file defines the connected user identity rooms authorize against.
// No runtime, network, or UI logic should be added here.
package domain

// User is the identity attached to a connection by the transport.
type User struct {
	ID   string
	Role string
}
