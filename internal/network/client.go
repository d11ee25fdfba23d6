package network

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/MRamiBalles/uplink-sim/server/internal/domain"
	"github.com/MRamiBalles/uplink-sim/server/internal/engine"
	"github.com/MRamiBalles/uplink-sim/server/internal/platform/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512
	// Time allowed for one command to run against the store.
	commandTimeout = 5 * time.Second
)

// Commands is the part of the engine a push channel can drive.
type Commands interface {
	SetSpeed(ctx context.Context, sessionID string, speed int) error
	AddBounce(ctx context.Context, sessionID, address string) (*domain.BounceNode, error)
	RemoveBounce(ctx context.Context, sessionID string, position int) error
	BounceChain(ctx context.Context, sessionID string) ([]domain.BounceNode, error)
	Connect(ctx context.Context, sessionID string) (*engine.ScreenData, error)
	Disconnect(ctx context.Context, sessionID string) error
	ScreenAction(ctx context.Context, sessionID, action string, input engine.ScreenInput) (*engine.ScreenData, error)
}

// Command is an inbound message from the frontend.
type Command struct {
	Type        string `json:"type"`
	Speed       *int   `json:"speed,omitempty"`
	Address     string `json:"address,omitempty"`
	Position    *int   `json:"position,omitempty"`
	Action      string `json:"action,omitempty"`
	Password    string `json:"password,omitempty"`
	ScreenIndex int    `json:"screen_index,omitempty"`
}

// Command and reply types of the push channel.
const (
	CmdHeartbeat    = "heartbeat"
	CmdSetSpeed     = "set_speed"
	CmdBounceAdd    = "bounce_add"
	CmdBounceRemove = "bounce_remove"
	CmdConnect      = "connect"
	CmdDisconnect   = "disconnect"
	CmdScreenAction = "screen_action"

	ReplyHeartbeat    = "heartbeat_ack"
	ReplySpeedChanged = "speed_changed"
	ReplyBounceChain  = "bounce_chain_updated"
	ReplyConnected    = "connected"
	ReplyDisconnected = "disconnected"
	ReplyScreen       = "screen"
	ReplyError        = "error"
)

// Reply is an outbound direct response to a Command.
type Reply struct {
	Type   string              `json:"type"`
	Speed  *int                `json:"speed,omitempty"`
	Nodes  []domain.BounceNode `json:"nodes,omitempty"`
	Screen *engine.ScreenData  `json:"screen,omitempty"`
	Detail string              `json:"detail,omitempty"`
}

// Client is one WebSocket connection bound to a session.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
	commands  Commands
	limiter   *rate.Limiter
	logger    *logger.Logger
}

// NewClient creates a client for sessionID. A nil limiter means unlimited.
func NewClient(hub *Hub, conn *websocket.Conn, sessionID string, commands Commands, limiter *rate.Limiter, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		hub:       hub,
		conn:      conn,
		sessionID: sessionID,
		send:      make(chan []byte, buffer),
		commands:  commands,
		limiter:   limiter,
		logger:    hub.logger.With(logger.Fields{"session": sessionID}),
	}
}

// Register adds the client to the hub. A client registering with a hub
// that has shut down is closed at once.
func (c *Client) Register() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.send)
	}
}

// ReadPump reads commands from the connection until it closes.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warnf("WebSocket read error: %v", err)
			}
			break
		}

		limited := c.limiter != nil && !c.limiter.Allow()
		c.hub.metrics.RecordWSMessage(limited)
		if limited {
			c.hub.reply(c, Reply{Type: ReplyError, Detail: "rate limit exceeded"})
			continue
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.hub.reply(c, Reply{Type: ReplyError, Detail: "malformed command"})
			continue
		}
		c.hub.reply(c, c.handle(cmd))
	}
}

func (c *Client) handle(cmd Command) Reply {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Type {
	case CmdHeartbeat:
		return Reply{Type: ReplyHeartbeat}

	case CmdSetSpeed:
		if cmd.Speed == nil {
			return Reply{Type: ReplyError, Detail: "speed is required"}
		}
		if err := c.commands.SetSpeed(ctx, c.sessionID, *cmd.Speed); err != nil {
			return c.failure(cmd, err)
		}
		return Reply{Type: ReplySpeedChanged, Speed: cmd.Speed}

	case CmdBounceAdd:
		if cmd.Address == "" {
			return Reply{Type: ReplyError, Detail: "address is required"}
		}
		if _, err := c.commands.AddBounce(ctx, c.sessionID, cmd.Address); err != nil {
			return c.failure(cmd, err)
		}
		return c.chain(ctx, cmd)

	case CmdBounceRemove:
		if cmd.Position == nil {
			return Reply{Type: ReplyError, Detail: "position is required"}
		}
		if err := c.commands.RemoveBounce(ctx, c.sessionID, *cmd.Position); err != nil {
			return c.failure(cmd, err)
		}
		return c.chain(ctx, cmd)

	case CmdConnect:
		screen, err := c.commands.Connect(ctx, c.sessionID)
		if err != nil {
			return c.failure(cmd, err)
		}
		return Reply{Type: ReplyConnected, Screen: screen}

	case CmdDisconnect:
		if err := c.commands.Disconnect(ctx, c.sessionID); err != nil {
			return c.failure(cmd, err)
		}
		return Reply{Type: ReplyDisconnected}

	case CmdScreenAction:
		screen, err := c.commands.ScreenAction(ctx, c.sessionID, cmd.Action,
			engine.ScreenInput{Password: cmd.Password, ScreenIndex: cmd.ScreenIndex})
		if err != nil {
			return c.failure(cmd, err)
		}
		return Reply{Type: ReplyScreen, Screen: screen}
	}
	return Reply{Type: ReplyError, Detail: "unknown command " + cmd.Type}
}

func (c *Client) chain(ctx context.Context, cmd Command) Reply {
	nodes, err := c.commands.BounceChain(ctx, c.sessionID)
	if err != nil {
		return c.failure(cmd, err)
	}
	return Reply{Type: ReplyBounceChain, Nodes: nodes}
}

// failure turns an engine error into a reply. Internal errors are logged, not echoed.
func (c *Client) failure(cmd Command, err error) Reply {
	if domain.IsValidation(err) || domain.IsNotFound(err) {
		return Reply{Type: ReplyError, Detail: err.Error()}
	}
	c.logger.Errorf("Command %s failed: %v", cmd.Type, err)
	return Reply{Type: ReplyError, Detail: "internal error"}
}

// WritePump writes queued messages to the connection, one frame each.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serveWs upgrades /ws?session=ID and starts the client pumps.
func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeError(w, s.logger, domain.NewValidationError("session is required"))
		return
	}
	if _, err := s.engine.Status(r.Context(), sessionID); err != nil {
		writeError(w, s.logger, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("Failed to upgrade websocket connection: %v", err)
		return
	}

	var limiter *rate.Limiter
	if s.tuning.MaxMessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.tuning.MaxMessagesPerSecond), s.tuning.MessageBurst)
	}
	client := NewClient(s.hub, conn, sessionID, s.engine, limiter, s.tuning.ClientSendBuffer)
	client.Register()

	go client.WritePump()
	go client.ReadPump()
}
