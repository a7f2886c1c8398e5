package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mangwale-chat/internal/model"

	"golang.org/x/time/rate"
)

const (
	DefaultPollInterval = 3 * time.Second
	DefaultSettleDelay  = 500 * time.Millisecond
	DefaultHistoryLimit = 50
)

type PollOptions struct {
	// BaseURL of the REST backend, e.g. http://localhost:3200.
	BaseURL    string
	Header     http.Header
	HTTPClient *http.Client

	// PollInterval is the idle fetch period. SettleDelay is how long to wait
	// after a send before fetching replies (the backend needs time to answer).
	PollInterval time.Duration
	SettleDelay  time.Duration
	HistoryLimit int

	BackoffInitial time.Duration
	BackoffMax     time.Duration

	Logger *log.Logger
}

// PollingTransport is the request/response fallback: frames are translated into
// REST calls and replies are fetched by polling. It never holds a socket, so
// "connected" means the last health check or call succeeded.
type PollingTransport struct {
	observers

	opts    PollOptions
	client  *http.Client
	limiter *rate.Limiter
	logger  *log.Logger
	queue   chan model.Frame

	mu        sync.Mutex
	connected bool
	running   bool
	closed    bool
	recipient string
	cancel    context.CancelFunc
	done      chan struct{}
}

type chatSendRequest struct {
	RecipientID     string `json:"recipientId"`
	Text            string `json:"text"`
	Type            string `json:"type,omitempty"`
	Action          string `json:"action,omitempty"`
	ClientMessageID string `json:"clientMessageId,omitempty"`
}

type chatSendResponse struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type polledMessage struct {
	ID        string `json:"id,omitempty"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type chatMessagesResponse struct {
	OK       bool            `json:"ok"`
	Messages []polledMessage `json:"messages"`
}

type httpStatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// message returns the server's own explanation when the body is the usual
// {"message": ...} envelope.
func (e *httpStatusError) message() string {
	var envelope struct {
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(e.Body), &envelope) == nil && envelope.Message != "" {
		return envelope.Message
	}
	return http.StatusText(e.Code)
}

// rejection returns the status error when err is a 4xx answer: the backend is
// reachable and refused this one request.
func rejection(err error) *httpStatusError {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.Code >= 400 && statusErr.Code < 500 {
		return statusErr
	}
	return nil
}

func NewPollingTransport(opts PollOptions) *PollingTransport {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = DefaultBackoffInitial
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	// Fetches never run closer together than a quarter of the settle delay.
	limiter := rate.NewLimiter(rate.Every(opts.SettleDelay/4), 2)

	return &PollingTransport{
		opts:    opts,
		client:  client,
		limiter: limiter,
		logger:  logger,
		queue:   make(chan model.Frame, sendQueueSize),
	}
}

func (t *PollingTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.running = true
	t.cancel = cancel
	t.done = make(chan struct{})

	go t.run(loopCtx, t.done)
	return nil
}

func (t *PollingTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Send queues the frame for the sender loop; the HTTP call happens later, in
// order, on the loop goroutine.
func (t *PollingTransport) Send(frame model.Frame) error {
	if !t.Connected() {
		return ErrNotConnected
	}
	select {
	case t.queue <- frame:
		return nil
	default:
		return &ConnectionError{Op: "send", Err: errSendQueueFull}
	}
}

func (t *PollingTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

func (t *PollingTransport) setConnected(v bool) {
	t.mu.Lock()
	t.connected = v
	t.mu.Unlock()
}

func (t *PollingTransport) currentRecipient() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.recipient
}

func (t *PollingTransport) setRecipient(id string) {
	t.mu.Lock()
	t.recipient = id
	t.mu.Unlock()
}

func (t *PollingTransport) run(ctx context.Context, done chan struct{}) {
	defer func() {
		t.setConnected(false)
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		close(done)
	}()

	backoff := NewBackoff(t.opts.BackoffInitial, t.opts.BackoffMax)

	for {
		if ctx.Err() != nil {
			return
		}

		if err := t.checkHealth(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			delay := backoff.Next()
			t.logger.Printf("⚠️ realtime: backend health check failed: %v (retry in %s)", err, delay)
			t.emitState(StateEvent{State: StateError, Err: &ConnectionError{Op: "health", Err: err}})
			if sleepCtx(ctx, delay) != nil {
				return
			}
			continue
		}

		backoff.Reset()
		t.setConnected(true)
		t.logger.Printf("✅ realtime: polling %s", t.opts.BaseURL)
		t.emitState(StateEvent{State: StateConnected})

		err := t.serve(ctx)
		t.setConnected(false)
		t.drainQueue()

		if ctx.Err() != nil {
			t.emitState(StateEvent{State: StateDisconnected})
			return
		}

		t.logger.Printf("❌ realtime: polling stopped: %v", err)
		t.emitState(StateEvent{State: StateDisconnected, Err: &ConnectionError{Op: "poll", Err: err}})

		if sleepCtx(ctx, backoff.Next()) != nil {
			return
		}
	}
}

func (t *PollingTransport) serve(ctx context.Context) error {
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	var settle <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case frame := <-t.queue:
			fetchSoon, err := t.deliver(ctx, frame)
			if rejected := rejection(err); rejected != nil {
				t.logger.Printf("⚠️ realtime: %s rejected: %v", frame.Event, err)
				t.emitServerError(fmt.Sprintf("HTTP_%d", rejected.Code), rejected.message())
				continue
			}
			if err != nil {
				return err
			}
			if fetchSoon {
				settle = time.After(t.opts.SettleDelay)
			}

		case <-settle:
			settle = nil
			if err := t.limiter.Wait(ctx); err != nil {
				return err
			}
			if err := t.fetch(ctx); err != nil {
				return err
			}

		case <-ticker.C:
			if !t.limiter.Allow() {
				continue
			}
			if err := t.fetch(ctx); err != nil {
				return err
			}
		}
	}
}

func (t *PollingTransport) drainQueue() {
	for {
		select {
		case <-t.queue:
		default:
			return
		}
	}
}

// deliver translates one outbound frame into its REST call. It reports whether
// replies should be fetched after the settle delay.
func (t *PollingTransport) deliver(ctx context.Context, frame model.Frame) (bool, error) {
	switch frame.Event {
	case model.EventSessionJoin:
		var p model.JoinPayload
		if err := frame.Decode(&p); err != nil {
			return false, nil
		}
		t.setRecipient(p.SessionID)
		return false, t.replayHistory(ctx, p.SessionID)

	case model.EventSessionLeave:
		t.setRecipient("")
		return false, nil

	case model.EventMessageSend:
		var p model.SendPayload
		if err := frame.Decode(&p); err != nil {
			return false, nil
		}
		recipient := p.SessionID
		if recipient == "" {
			recipient = t.currentRecipient()
		}
		req := chatSendRequest{
			RecipientID:     recipient,
			Text:            p.Message,
			Type:            p.Type,
			Action:          p.Action,
			ClientMessageID: p.ClientMessageID,
		}
		var res chatSendResponse
		if err := t.doJSON(ctx, http.MethodPost, "/chat/send", req, &res); err != nil {
			return false, err
		}
		if !res.OK {
			t.emitServerError("SEND_REJECTED", res.Error)
			return false, nil
		}
		if res.MessageID != "" && p.ClientMessageID != "" {
			ack, _ := model.NewFrame(model.EventMessageAck, model.AckPayload{
				ClientMessageID: p.ClientMessageID,
				MessageID:       res.MessageID,
			})
			t.emitFrame(ack)
		}
		return true, nil

	case model.EventLocationUpdate:
		var p model.LocationPayload
		if err := frame.Decode(&p); err != nil {
			return false, nil
		}
		path := "/sessions/" + url.PathEscape(p.SessionID) + "/location"
		body := model.Location{Lat: p.Lat, Lng: p.Lng}
		return false, t.doJSON(ctx, http.MethodPost, path, body, nil)

	case model.EventOptionClick:
		var p model.OptionClickPayload
		if err := frame.Decode(&p); err != nil {
			return false, nil
		}
		path := "/sessions/" + url.PathEscape(p.SessionID) + "/option"
		return true, t.doJSON(ctx, http.MethodPost, path, p, nil)

	default:
		// typing, ping and anything else have no REST counterpart.
		return false, nil
	}
}

func (t *PollingTransport) replayHistory(ctx context.Context, sessionID string) error {
	path := fmt.Sprintf("/sessions/%s/history?limit=%d", url.PathEscape(sessionID), t.opts.HistoryLimit)

	var history []model.InboundMessage
	err := t.doJSON(ctx, http.MethodGet, path, nil, &history)
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.Code == http.StatusNotFound {
		history, err = nil, nil
	}
	if err != nil {
		return err
	}

	joined, err := model.NewFrame(model.EventSessionJoined, model.JoinedPayload{
		SessionID: sessionID,
		History:   history,
	})
	if err != nil {
		return err
	}
	t.emitFrame(joined)
	return nil
}

func (t *PollingTransport) fetch(ctx context.Context) error {
	recipient := t.currentRecipient()
	if recipient == "" {
		return nil
	}

	var res chatMessagesResponse
	err := t.doJSON(ctx, http.MethodGet, "/chat/messages/"+url.PathEscape(recipient), nil, &res)
	if rejection(err) != nil {
		// e.g. 429 from the backend's rate limiter; the next tick tries again
		t.logger.Printf("⚠️ realtime: poll skipped: %v", err)
		return nil
	}
	if err != nil {
		return err
	}

	for idx, msg := range res.Messages {
		id := msg.ID
		if id == "" {
			id = fmt.Sprintf("%d-%d", msg.Timestamp, idx)
		}
		frame, err := model.NewFrame(model.EventMessage, model.InboundMessage{
			ID:        id,
			Sender:    string(model.RoleAssistant),
			Text:      msg.Message,
			Timestamp: msg.Timestamp,
		})
		if err != nil {
			continue
		}
		t.emitFrame(frame)
	}
	return nil
}

func (t *PollingTransport) emitServerError(code, message string) {
	if message == "" {
		message = "request rejected by server"
	}
	frame, err := model.NewFrame(model.EventError, model.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	t.emitFrame(frame)
}

func (t *PollingTransport) checkHealth(ctx context.Context) error {
	return t.doJSON(ctx, http.MethodGet, "/", nil, nil)
}

func (t *PollingTransport) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.opts.BaseURL+path, reader)
	if err != nil {
		return err
	}
	for k, vs := range t.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &httpStatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
