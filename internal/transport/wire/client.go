// Package wire implements the transport.Client contract over a WebSocket
// connection carrying a JSON envelope protocol: numbered request/response
// pairs for RPCs and unnumbered push envelopes for backend updates.
package wire

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxwire/voxwire/internal/transport"
)

// Compile-time check that *Client satisfies [transport.Client].
var _ transport.Client = (*Client)(nil)

const defaultUpdateBuffer = 64

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithDownloadDir sets the directory downloaded files are cached in.
// Defaults to a "voxwire-downloads" directory under os.TempDir().
func WithDownloadDir(dir string) Option {
	return func(c *Client) { c.downloadDir = dir }
}

// WithUpdateBuffer sets the capacity of the update channel. The default is 64.
func WithUpdateBuffer(n int) Option {
	return func(c *Client) { c.updates = make(chan transport.Update, n) }
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client is the WebSocket implementation of [transport.Client].
// All exported methods are safe for concurrent use.
type Client struct {
	conn        *websocket.Conn
	downloadDir string
	updates     chan transport.Update

	mu        sync.Mutex
	nextID    uint64
	pending   map[uint64]chan rpcResponse
	authState transport.AuthState
	closed    bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Dial connects to the backend gateway at endpoint and starts the receive
// loop. The returned client reports [transport.AuthClosed] until the backend
// pushes its first authStateChanged update.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %q: %w", endpoint, err)
	}

	clientCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:        conn,
		downloadDir: filepath.Join(os.TempDir(), "voxwire-downloads"),
		updates:     make(chan transport.Update, defaultUpdateBuffer),
		pending:     make(map[uint64]chan rpcResponse),
		authState:   transport.AuthClosed,
		ctx:         clientCtx,
		cancel:      cancel,
	}
	for _, o := range opts {
		o(c)
	}

	if err := os.MkdirAll(c.downloadDir, 0o755); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("wire: create download dir: %w", err)
	}

	go c.receiveLoop()
	return c, nil
}

// ── Envelope types ─────────────────────────────────────────────────────────────

type rpcRequest struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// envelope is the single incoming frame shape: responses carry ID and one of
// Result/Error; pushes carry Update and Payload.
type envelope struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcErrorBody   `json:"error,omitempty"`

	Update  string          `json:"update,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type rpcResponse struct {
	result json.RawMessage
	err    error
}

// Push payload shapes.

type authStatePayload struct {
	State string `json:"state"`
	Hint  string `json:"hint,omitempty"`
}

type messagePayload struct {
	ID       string        `json:"id"`
	ChatID   string        `json:"chat_id"`
	SenderID string        `json:"sender_id"`
	SentAt   time.Time     `json:"sent_at"`
	Text     string        `json:"text,omitempty"`
	Voice    *voicePayload `json:"voice,omitempty"`
}

type voicePayload struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration"`
	Waveform []byte `json:"waveform,omitempty"`
}

type filePayload struct {
	FileID string `json:"file_id"`
	Data   []byte `json:"data"`
}

type sessionClosedPayload struct {
	Reason string `json:"reason"`
}

type sendVoiceParams struct {
	ChatID   string `json:"chat_id"`
	Duration int    `json:"duration"`
	Waveform []byte `json:"waveform,omitempty"`
	Data     string `json:"data"` // base64-encoded Opus payload
}

type messageHandleResult struct {
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
}

// ── Receive loop ───────────────────────────────────────────────────────────────

// receiveLoop reads envelopes from the WebSocket and dispatches them. It owns
// the updates channel and closes it when the loop exits.
func (c *Client) receiveLoop() {
	defer c.teardown()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			slog.Debug("wire: dropping malformed frame", "err", err)
			continue
		}

		switch {
		case env.Update != "":
			c.handleUpdate(&env)
		case env.ID != 0:
			c.handleResponse(&env)
		}
	}
}

func (c *Client) handleResponse(env *envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()
	if !ok {
		slog.Debug("wire: response for unknown request", "id", env.ID)
		return
	}

	resp := rpcResponse{result: env.Result}
	if env.Error != nil {
		resp.err = &transport.RPCError{Code: env.Error.Code, Message: env.Error.Message}
	}
	ch <- resp
}

func (c *Client) handleUpdate(env *envelope) {
	var upd transport.Update

	switch env.Update {
	case "authStateChanged":
		var p authStatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		state := transport.AuthState(p.State)
		c.mu.Lock()
		c.authState = state
		c.mu.Unlock()
		upd = transport.AuthStateChanged{State: state, Hint: p.Hint}

	case "newMessage":
		var p messagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		upd = transport.NewMessage{Message: toMessage(p)}

	case "fileDownloaded":
		var p filePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return
		}
		path, err := c.cacheFile(p.FileID, p.Data)
		if err != nil {
			slog.Warn("wire: caching pushed file failed", "file_id", p.FileID, "err", err)
			return
		}
		upd = transport.FileDownloaded{FileID: p.FileID, Path: path}

	case "sessionClosed":
		var p sessionClosedPayload
		_ = json.Unmarshal(env.Payload, &p)
		c.mu.Lock()
		c.authState = transport.AuthClosed
		c.mu.Unlock()
		upd = transport.SessionClosed{Reason: p.Reason}

	default:
		// The backend may be newer than this client.
		slog.Debug("wire: ignoring unknown update", "kind", env.Update)
		return
	}

	select {
	case c.updates <- upd:
	case <-c.ctx.Done():
	}
}

// teardown fails all pending calls and closes the update stream.
func (c *Client) teardown() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		pending := c.pending
		c.pending = map[uint64]chan rpcResponse{}
		c.mu.Unlock()

		for _, ch := range pending {
			ch <- rpcResponse{err: transport.ErrClosed}
		}
		close(c.updates)
		c.cancel()
	})
}

// ── RPC plumbing ───────────────────────────────────────────────────────────────

// call performs one request/response round trip. When out is non-nil the
// response result is unmarshalled into it.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	var raw json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("wire: marshal %s params: %w", method, err)
		}
		raw = data
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan rpcResponse, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	data, err := json.Marshal(rpcRequest{ID: id, Method: method, Params: raw})
	if err != nil {
		c.forget(id)
		return fmt.Errorf("wire: marshal %s: %w", method, err)
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.forget(id)
		return fmt.Errorf("wire: write %s: %w", method, err)
	}

	select {
	case resp := <-ch:
		if resp.err != nil {
			return resp.err
		}
		if out != nil && len(resp.result) > 0 {
			if err := json.Unmarshal(resp.result, out); err != nil {
				return fmt.Errorf("wire: unmarshal %s result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.ctx.Done():
		return transport.ErrClosed
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// requireReady guards non-auth operations: they are rejected locally until
// the backend has reported the ready state.
func (c *Client) requireReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authState != transport.AuthReady {
		return transport.ErrUnauthenticated
	}
	return nil
}

// ── transport.Client implementation ────────────────────────────────────────────

// SetParameters implements [transport.Client].
func (c *Client) SetParameters(ctx context.Context, p transport.Parameters) error {
	return c.call(ctx, "setParameters", map[string]string{
		"device_name": p.DeviceName,
		"app_version": p.AppVersion,
	}, nil)
}

// SubmitPhoneNumber implements [transport.Client].
func (c *Client) SubmitPhoneNumber(ctx context.Context, number string) error {
	return c.call(ctx, "submitPhoneNumber", map[string]string{"phone_number": number}, nil)
}

// SubmitCode implements [transport.Client].
func (c *Client) SubmitCode(ctx context.Context, code string) error {
	return c.call(ctx, "submitCode", map[string]string{"code": code}, nil)
}

// SubmitSecondFactor implements [transport.Client].
func (c *Client) SubmitSecondFactor(ctx context.Context, password string) error {
	return c.call(ctx, "submitSecondFactor", map[string]string{"password": password}, nil)
}

// LogOut implements [transport.Client].
func (c *Client) LogOut(ctx context.Context) error {
	return c.call(ctx, "logOut", nil, nil)
}

// ListChats implements [transport.Client].
func (c *Client) ListChats(ctx context.Context, limit int) ([]transport.Chat, error) {
	if err := c.requireReady(); err != nil {
		return nil, err
	}
	var out []transport.Chat
	err := c.call(ctx, "listChats", map[string]int{"limit": limit}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetChatHistory implements [transport.Client].
func (c *Client) GetChatHistory(ctx context.Context, chatID string, limit int) ([]transport.Message, error) {
	if err := c.requireReady(); err != nil {
		return nil, err
	}
	var raw []messagePayload
	err := c.call(ctx, "getChatHistory", map[string]any{"chat_id": chatID, "limit": limit}, &raw)
	if err != nil {
		return nil, err
	}
	msgs := make([]transport.Message, len(raw))
	for i, p := range raw {
		msgs[i] = toMessage(p)
	}
	return msgs, nil
}

// SendVoiceMessage implements [transport.Client]. The payload file is read
// and shipped inline; a backend refusal is wrapped in [transport.ErrRejected]
// so the caller can offer a retry with the identical payload.
func (c *Client) SendVoiceMessage(ctx context.Context, req transport.SendVoiceRequest) (transport.MessageHandle, error) {
	if err := c.requireReady(); err != nil {
		return transport.MessageHandle{}, err
	}

	payload, err := os.ReadFile(req.Path)
	if err != nil {
		return transport.MessageHandle{}, fmt.Errorf("wire: read payload %q: %w", req.Path, err)
	}

	var res messageHandleResult
	err = c.call(ctx, "sendVoiceMessage", sendVoiceParams{
		ChatID:   req.ChatID,
		Duration: req.Duration,
		Waveform: req.Waveform,
		Data:     base64.StdEncoding.EncodeToString(payload),
	}, &res)
	if err != nil {
		var rpcErr *transport.RPCError
		if errors.As(err, &rpcErr) {
			return transport.MessageHandle{}, fmt.Errorf("%w: %s", transport.ErrRejected, rpcErr.Message)
		}
		return transport.MessageHandle{}, err
	}
	return transport.MessageHandle{MessageID: res.MessageID, ChatID: res.ChatID}, nil
}

// DownloadFile implements [transport.Client]. The local cache is consulted
// before any transfer is requested from the backend.
func (c *Client) DownloadFile(ctx context.Context, fileID string) (string, error) {
	if err := c.requireReady(); err != nil {
		return "", err
	}

	path := c.cachePath(fileID)
	if _, err := os.Stat(path); err == nil {
		slog.Debug("wire: download cache hit", "file_id", fileID)
		return path, nil
	}

	var res filePayload
	if err := c.call(ctx, "downloadFile", map[string]string{"file_id": fileID}, &res); err != nil {
		return "", err
	}
	return c.cacheFile(fileID, res.Data)
}

// Updates implements [transport.Client].
func (c *Client) Updates() <-chan transport.Update { return c.updates }

// Close implements [transport.Client].
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "client shutdown")
	c.teardown()
	return err
}

// ── Helpers ────────────────────────────────────────────────────────────────────

// cachePath maps a backend file id to its location in the download directory.
// The id is untrusted input: it is reduced to a bare file name so that ids
// carrying path separators cannot escape the cache.
func (c *Client) cachePath(fileID string) string {
	name := filepath.Base(filepath.FromSlash(fileID))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		name = "file"
	}
	return filepath.Join(c.downloadDir, name)
}

func (c *Client) cacheFile(fileID string, data []byte) (string, error) {
	path := c.cachePath(fileID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("wire: cache file %q: %w", fileID, err)
	}
	return path, nil
}

func toMessage(p messagePayload) transport.Message {
	m := transport.Message{
		ID:       p.ID,
		ChatID:   p.ChatID,
		SenderID: p.SenderID,
		SentAt:   p.SentAt,
		Text:     p.Text,
	}
	if p.Voice != nil {
		m.Voice = &transport.VoiceInfo{
			FileID:   p.Voice.FileID,
			Duration: p.Voice.Duration,
			Waveform: p.Voice.Waveform,
		}
	}
	return m
}
