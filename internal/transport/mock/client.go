// Package mock provides an in-memory test double for [transport.Client].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. Backend push updates are
// simulated with [Client.PushUpdate]. It is safe for concurrent use via an
// internal [sync.Mutex].
//
// Typical usage:
//
//	client := &mock.Client{
//	    SendVoiceMessageResult: transport.MessageHandle{MessageID: "m1"},
//	}
//
//	// inject client into the system under test …
//
//	client.PushUpdate(transport.AuthStateChanged{State: transport.AuthReady})
//	if got := client.CallCount("SendVoiceMessage"); got != 1 {
//	    t.Errorf("expected 1 SendVoiceMessage call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/voxwire/voxwire/internal/transport"
)

// Compile-time interface assertion.
var _ transport.Client = (*Client)(nil)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Client is a configurable test double for [transport.Client].
// All exported *Err fields default to nil (success); all exported *Result
// fields default to their zero values.
type Client struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// SetParametersErr is returned by [Client.SetParameters] when non-nil.
	SetParametersErr error

	// SubmitPhoneNumberErr is returned by [Client.SubmitPhoneNumber] when non-nil.
	SubmitPhoneNumberErr error

	// SubmitCodeErr is returned by [Client.SubmitCode] when non-nil.
	SubmitCodeErr error

	// SubmitSecondFactorErr is returned by [Client.SubmitSecondFactor] when non-nil.
	SubmitSecondFactorErr error

	// LogOutErr is returned by [Client.LogOut] when non-nil.
	LogOutErr error

	// ListChatsResult is returned by [Client.ListChats].
	// When nil, ListChats returns an empty non-nil slice.
	ListChatsResult []transport.Chat

	// ListChatsErr is returned by [Client.ListChats] when non-nil.
	ListChatsErr error

	// GetChatHistoryResult is returned by [Client.GetChatHistory].
	// When nil, GetChatHistory returns an empty non-nil slice.
	GetChatHistoryResult []transport.Message

	// GetChatHistoryErr is returned by [Client.GetChatHistory] when non-nil.
	GetChatHistoryErr error

	// SendVoiceMessageResult is returned by [Client.SendVoiceMessage].
	SendVoiceMessageResult transport.MessageHandle

	// SendVoiceMessageErr is returned by [Client.SendVoiceMessage] when non-nil.
	SendVoiceMessageErr error

	// SendVoiceMessageErrs, when non-empty, overrides SendVoiceMessageErr:
	// each call consumes the next entry, then falls back to
	// SendVoiceMessageErr. Use it to script a failure followed by a
	// successful retry.
	SendVoiceMessageErrs []error

	// DownloadFileResult is the path returned by [Client.DownloadFile].
	DownloadFileResult string

	// DownloadFileErr is returned by [Client.DownloadFile] when non-nil.
	DownloadFileErr error

	// CloseErr is returned by [Client.Close].
	CloseErr error

	updatesOnce sync.Once
	updates     chan transport.Update
	closeOnce   sync.Once
}

func (m *Client) updateChan() chan transport.Update {
	m.updatesOnce.Do(func() {
		m.updates = make(chan transport.Update, 16)
	})
	return m.updates
}

// PushUpdate delivers an update on the channel returned by [Client.Updates],
// simulating a backend push.
func (m *Client) PushUpdate(u transport.Update) {
	m.updateChan() <- u
}

// Calls returns a copy of all recorded method invocations.
func (m *Client) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Client) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *Client) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// SetParameters implements [transport.Client].
func (m *Client) SetParameters(_ context.Context, p transport.Parameters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SetParameters", Args: []any{p}})
	return m.SetParametersErr
}

// SubmitPhoneNumber implements [transport.Client].
func (m *Client) SubmitPhoneNumber(_ context.Context, number string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SubmitPhoneNumber", Args: []any{number}})
	return m.SubmitPhoneNumberErr
}

// SubmitCode implements [transport.Client].
func (m *Client) SubmitCode(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SubmitCode", Args: []any{code}})
	return m.SubmitCodeErr
}

// SubmitSecondFactor implements [transport.Client].
func (m *Client) SubmitSecondFactor(_ context.Context, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SubmitSecondFactor", Args: []any{password}})
	return m.SubmitSecondFactorErr
}

// LogOut implements [transport.Client].
func (m *Client) LogOut(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "LogOut"})
	return m.LogOutErr
}

// ListChats implements [transport.Client].
func (m *Client) ListChats(_ context.Context, limit int) ([]transport.Chat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "ListChats", Args: []any{limit}})
	if m.ListChatsResult == nil {
		return []transport.Chat{}, m.ListChatsErr
	}
	out := make([]transport.Chat, len(m.ListChatsResult))
	copy(out, m.ListChatsResult)
	return out, m.ListChatsErr
}

// GetChatHistory implements [transport.Client].
func (m *Client) GetChatHistory(_ context.Context, chatID string, limit int) ([]transport.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GetChatHistory", Args: []any{chatID, limit}})
	if m.GetChatHistoryResult == nil {
		return []transport.Message{}, m.GetChatHistoryErr
	}
	out := make([]transport.Message, len(m.GetChatHistoryResult))
	copy(out, m.GetChatHistoryResult)
	return out, m.GetChatHistoryErr
}

// SendVoiceMessage implements [transport.Client].
func (m *Client) SendVoiceMessage(_ context.Context, req transport.SendVoiceRequest) (transport.MessageHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SendVoiceMessage", Args: []any{req}})
	if len(m.SendVoiceMessageErrs) > 0 {
		err := m.SendVoiceMessageErrs[0]
		m.SendVoiceMessageErrs = m.SendVoiceMessageErrs[1:]
		if err != nil {
			return transport.MessageHandle{}, err
		}
		return m.SendVoiceMessageResult, nil
	}
	return m.SendVoiceMessageResult, m.SendVoiceMessageErr
}

// DownloadFile implements [transport.Client].
func (m *Client) DownloadFile(_ context.Context, fileID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "DownloadFile", Args: []any{fileID}})
	return m.DownloadFileResult, m.DownloadFileErr
}

// Updates implements [transport.Client].
func (m *Client) Updates() <-chan transport.Update {
	return m.updateChan()
}

// Close implements [transport.Client]. The update channel is closed on the
// first call.
func (m *Client) Close() error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: "Close"})
	err := m.CloseErr
	m.mu.Unlock()
	m.closeOnce.Do(func() {
		close(m.updateChan())
	})
	return err
}
