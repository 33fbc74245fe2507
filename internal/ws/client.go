package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/model"
)

const sendBufferSize = 64

// Client is one websocket subscriber of the hub's shared topic.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	send   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// Serve upgrades the request and pumps the connection until either side
// closes. It blocks for the lifetime of the connection.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	logger := logutil.GetLogger(r.Context()).With(zap.String("remote", r.RemoteAddr))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		logger.Error("websocket accept failed", zap.Error(err))
		return
	}
	client := &Client{
		hub:    h,
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
	h.attach(client)
	logger.Info("client connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		client.readPump(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		client.writePump(ctx)
	}()
	wg.Wait()

	h.detach(client)
	client.close()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	logger.Info("client disconnected")
}

// readPump decodes inbound events and hands them to the processor. A
// processor error is reported back to this client only, never broadcast.
func (c *Client) readPump(ctx context.Context) {
	logger := logutil.GetLogger(ctx).With(zap.String("remote", c.remote))
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				logger.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		var ev model.ChatEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Warn("malformed event", zap.Error(err))
			c.sendError("Invalid event payload.")
			continue
		}
		if err := c.hub.processor.ProcessEvent(ctx, &ev); err != nil {
			logger.Warn("event rejected", zap.String("type", string(ev.Kind)), zap.Error(err))
			c.sendError("Could not process your message.")
		}
	}
}

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
				return
			}
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// sendError enqueues an ERROR event for this client alone.
func (c *Client) sendError(text string) {
	data, err := json.Marshal(&model.ChatEvent{
		Kind:    model.EventKindError,
		Sender:  "SYSTEM",
		Content: text,
	})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}
