package ws

import (
	"encoding/json"
	"time"

	"github.com/emberchat/emberchat/broker"
	"github.com/emberchat/emberchat/globals"
	"github.com/emberchat/emberchat/types"
	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
)

const (
	maxMessageSize  = 4096
	pongWait        = 2 * time.Minute
	pingPeriod      = time.Minute
	writeWait       = 10 * time.Second
	sendChannelSize = 1000
)

// Client is a middleman between one websocket connection and the broker.
type Client struct {
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	Send chan []byte

	broker *broker.Broker

	// roomId is empty for the room-created stream.
	roomId string

	doneChan chan struct{}
}

func NewClient(conn *websocket.Conn, b *broker.Broker, roomId string, doneChan chan struct{}) *Client {
	return &Client{
		conn:     conn,
		Send:     make(chan []byte, sendChannelSize),
		broker:   b,
		roomId:   roomId,
		doneChan: doneChan,
	}
}

// queue enqueues an outbound frame unless the connection is already going
// down. A stalled connection eventually fails its write deadline, which
// closes doneChan and unblocks any queued producer.
func (c *Client) queue(frame []byte) bool {
	select {
	case c.Send <- frame:
		return true
	case <-c.doneChan:
		return false
	}
}

// ReadLoop pumps frames from the websocket connection to the broker.
//
// The application runs ReadLoop in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.conn.Close()
		close(c.doneChan)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				globals.AppLogger.Debug("ws closed unexpected", "error", err)
			}
			return
		}

		message := &types.WebsocketMessage{}
		err = json.Unmarshal(raw, message)
		if err != nil {
			globals.AppLogger.Error("could not unmarshal ws message", "error", err)
			return
		}

		switch message.Event {
		case types.WireEventMessage:
			if c.roomId == "" {
				// the room-created stream is push-only
				continue
			}
			sendMsgMap := make(map[string]interface{})
			err = json.Unmarshal(message.Data, &sendMsgMap)
			if err != nil {
				globals.AppLogger.Error("could not unmarshal send frame", "error", err)
				return
			}
			sendMsg := types.WireSendMessage{}
			err = mapstructure.WeakDecode(sendMsgMap, &sendMsg)
			if err != nil {
				globals.AppLogger.Error("could not decode send frame", "error", err)
				return
			}
			if _, err := c.broker.SendMessage(c.roomId, sendMsg.Username, sendMsg.Content); err != nil {
				// report back to this client only, fan-out to the other
				// subscribers is unaffected
				frame, merr := types.NewWireMessage(types.WireEventError, types.ErrorMessage{Error: err.Error()})
				if merr != nil {
					globals.AppLogger.Error("could not marshal error frame", "error", merr)
					continue
				}
				c.queue(frame)
			}
			// on success the append comes back through the subscription
		}
	}
}

// WriteLoop pumps frames from the send channel to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				globals.AppLogger.Debug("could not write to ws connection, exiting write loop")
				return
			}
			_, _ = w.Write(frame)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				globals.AppLogger.Debug("could not send ping message, exiting write loop")
				return
			}

		case <-c.doneChan:
			return
		}
	}
}

// ForwardMessages pumps the subscription tail into the send channel. When
// the stream closes (cancellation, overflow drop or room reclamation) the
// connection is closed too; the client must re-snapshot on reconnect.
func (c *Client) ForwardMessages(sub *broker.MessageSubscription) {
	defer c.conn.Close()
	for {
		select {
		case msg, ok := <-sub.Events():
			if !ok {
				return
			}
			frame, err := types.NewWireMessage(types.WireEventMessage, msg)
			if err != nil {
				globals.AppLogger.Error("could not marshal message frame", "error", err)
				continue
			}
			if !c.queue(frame) {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}

// ForwardRooms is the room-created counterpart of ForwardMessages.
func (c *Client) ForwardRooms(sub *broker.RoomSubscription) {
	defer c.conn.Close()
	for {
		select {
		case room, ok := <-sub.Events():
			if !ok {
				return
			}
			frame, err := types.NewWireMessage(types.WireEventRoom, room)
			if err != nil {
				globals.AppLogger.Error("could not marshal room frame", "error", err)
				continue
			}
			if !c.queue(frame) {
				return
			}

		case <-c.doneChan:
			return
		}
	}
}
