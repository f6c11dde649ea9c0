// Package transport defines the contract for the messaging backend client:
// the asynchronous operations the pipeline relies on, the read-only chat and
// message projections, and the tagged update variants pushed by the backend.
//
// The concrete WebSocket implementation lives in the wire subpackage; the
// mock subpackage provides an in-memory fake for tests.
package transport

import (
	"context"
	"time"
)

// Parameters identifies this client installation to the backend. It must be
// submitted before any authentication step.
type Parameters struct {
	DeviceName string
	AppVersion string
}

// AuthState is the backend's view of the authentication progression, pushed
// via [AuthStateChanged] updates. Local session state is derived from these
// values only, never from optimistic assumptions about submitted credentials.
type AuthState string

const (
	AuthWaitPhoneNumber AuthState = "waitPhoneNumber"
	AuthWaitCode        AuthState = "waitCode"
	AuthWaitPassword    AuthState = "waitPassword"
	AuthReady           AuthState = "ready"
	AuthClosed          AuthState = "closed"
)

// Chat is a read-only projection of a conversation on the backend.
type Chat struct {
	ID    string
	Title string
}

// Message is a read-only projection of a single message.
type Message struct {
	ID       string
	ChatID   string
	SenderID string
	SentAt   time.Time
	Text     string

	// Voice is set when the message carries a voice note.
	Voice *VoiceInfo
}

// VoiceInfo describes the voice payload of a message.
type VoiceInfo struct {
	// FileID is the backend handle used with [Client.DownloadFile].
	FileID string

	// Duration is the clip length in seconds.
	Duration int

	// Waveform is the visual loudness-bucket sequence, if the sender
	// provided one.
	Waveform []byte
}

// MessageHandle identifies a message accepted by the backend.
type MessageHandle struct {
	MessageID string
	ChatID    string
}

// SendVoiceRequest carries one voice payload to the backend. Waveform is nil
// when the payload is an unconverted fallback artifact.
type SendVoiceRequest struct {
	ChatID   string
	Path     string
	Duration int
	Waveform []byte
}

// Client is the opaque asynchronous channel to the messaging backend. Every
// operation may suspend for network-bound durations and fail independently.
// SendVoiceMessage resolving successfully means the backend accepted the
// upload for delivery; the backend may still queue it internally.
type Client interface {
	// SetParameters registers client metadata with the backend.
	SetParameters(ctx context.Context, p Parameters) error

	// SubmitPhoneNumber, SubmitCode, and SubmitSecondFactor advance the
	// authentication flow. Progress is reported asynchronously through
	// [AuthStateChanged] updates, never through these return values; an
	// error return means only that this submission was rejected.
	SubmitPhoneNumber(ctx context.Context, number string) error
	SubmitCode(ctx context.Context, code string) error
	SubmitSecondFactor(ctx context.Context, password string) error

	// LogOut tears down the authenticated session.
	LogOut(ctx context.Context) error

	// ListChats returns up to limit chats ordered by recency.
	ListChats(ctx context.Context, limit int) ([]Chat, error)

	// GetChatHistory returns up to limit most recent messages of a chat.
	GetChatHistory(ctx context.Context, chatID string, limit int) ([]Message, error)

	// SendVoiceMessage uploads a voice payload to a chat.
	SendVoiceMessage(ctx context.Context, req SendVoiceRequest) (MessageHandle, error)

	// DownloadFile fetches a file to local storage and returns its path.
	// Implementations check the local cache before requesting a transfer.
	DownloadFile(ctx context.Context, fileID string) (string, error)

	// Updates returns the stream of backend push updates. The channel is
	// closed when the client closes.
	Updates() <-chan Update

	// Close tears down the connection. Pending operations fail with
	// [ErrClosed].
	Close() error
}
