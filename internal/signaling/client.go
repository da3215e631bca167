package signaling

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/pannenhilfe24/callcore/internal/config"
	"github.com/pannenhilfe24/callcore/internal/types"
)

// Client is one party's WebSocket leg of a signaling session. It
// forwards inbound envelopes to the relay and streams the peer's
// envelopes back out.
type Client struct {
	callID  string
	partyID string
	conn    *websocket.Conn
	relay   *Relay
	sub     *PeerSubscription
	cfg     *config.Config
	logger  zerolog.Logger
	done    chan struct{}
}

// NewClient wires a freshly upgraded connection into the relay.
func NewClient(callID, partyID string, conn *websocket.Conn, relay *Relay, cfg *config.Config, logger zerolog.Logger) *Client {
	return &Client{
		callID:  callID,
		partyID: partyID,
		conn:    conn,
		relay:   relay,
		sub:     relay.Subscribe(callID, partyID),
		cfg:     cfg,
		logger: logger.With().
			Str("call_id", callID).
			Str("party_id", partyID).
			Logger(),
		done: make(chan struct{}),
	}
}

// Start runs the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// inboundSignal is the wire shape clients send. Call ID and sender
// are stamped server-side from the connection, never trusted from
// the payload.
type inboundSignal struct {
	Type    types.SignalType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

// readPump pumps envelopes from the connection to the relay
func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.sub.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Debug().Err(err).Msg("signaling websocket read error")
			}
			return
		}

		var in inboundSignal
		if err := json.Unmarshal(message, &in); err != nil {
			c.logger.Debug().Err(err).Msg("failed to parse signal")
			continue
		}
		if !in.Type.Valid() {
			c.logger.Debug().Str("type", string(in.Type)).Msg("unknown signal type")
			continue
		}

		c.relay.Send(types.SignalEnvelope{
			CallID:    c.callID,
			FromParty: c.partyID,
			Type:      in.Type,
			Payload:   in.Payload,
		})
	}
}

// writePump pumps the peer's envelopes from the relay to the connection
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.sub.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				// Room closed, the call reached a terminal state.
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"))
				return
			}

			data, err := json.Marshal(env)
			if err != nil {
				c.logger.Error().Err(err).Msg("failed to marshal signal envelope")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
