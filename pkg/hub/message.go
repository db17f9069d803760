// Package hub fans messages out to persistent websocket subscribers.
//
// Each subscriber owns a buffered queue drained by its own write pump, so
// a slow or broken subscriber never stalls delivery to the others: a full
// queue or a failed write removes only that subscriber.
package hub

// MessageType indicates the websocket message format
type MessageType int

// JSONMessage is a JSON-encoded text message
const JSONMessage MessageType = iota

// Message represents a message to be broadcast to subscribers
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}
