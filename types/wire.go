package types

import "encoding/json"

const (
	WireEventRoom     = "room"
	WireEventRooms    = "rooms"
	WireEventMessage  = "message"
	WireEventMessages = "messages"
	WireEventInfo     = "info"
	WireEventError    = "error"
)

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket
// connection, in both directions.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WireSendMessage is the incoming "message" frame: a request to append to the
// room the connection is subscribed to.
type WireSendMessage struct {
	Username string `json:"username" mapstructure:"username"`
	Content  string `json:"content" mapstructure:"content"`
}

// InfoMessage carries room metadata to a freshly connected subscriber. The
// participant count is the number of distinct senders in the room's history,
// not a live connection count.
type InfoMessage struct {
	Room         *Room `json:"room"`
	Participants int   `json:"participants"`
}

// ErrorMessage is sent to a single client when its own request failed, f.e. a
// rejected "message" frame. Fan-out to other clients is unaffected.
type ErrorMessage struct {
	Error string `json:"error"`
}

func NewWireMessage(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(WebsocketMessage{Event: event, Data: raw})
}
