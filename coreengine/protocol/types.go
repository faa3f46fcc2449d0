// Package protocol implements a Jupyter-style protocol engine and message
// processor: named Channels with per-channel routing strategies, the
// LRP/LDP wire-protocol adapters that translate frames into an internal
// UniversalMessage shape, and capability-addressed dispatch to
// MessageProcessors.
package protocol

import "encoding/json"

// Channel names the five protocol channels, each with its own routing
// strategy.
type Channel string

const (
	ChannelShell     Channel = "shell"
	ChannelIOPub     Channel = "iopub"
	ChannelStdin     Channel = "stdin"
	ChannelControl   Channel = "control"
	ChannelHeartbeat Channel = "heartbeat"
)

// MessageHeader is the common envelope every LRP frame carries, a
// Jupyter-wire-protocol-shaped header.
type MessageHeader struct {
	MsgID    string `json:"msg_id"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	MsgType  string `json:"msg_type"`
	Version  string `json:"version"`
}

// UniversalMessage is the internal shape every wire protocol adapter
// converts its frames into before handing them to a MessageProcessor — the
// Protocol Engine's one message type regardless of which adapter (LRP, LDP)
// produced it.
type UniversalMessage struct {
	Header     MessageHeader   `json:"header"`
	Channel    Channel         `json:"-"`
	Capability string          `json:"-"`
	Content    json.RawMessage `json:"content"`
}

// Handler processes one UniversalMessage and returns its reply content (or
// an error, rendered by the adapter as an Error{message, details?}).
type Handler func(msg UniversalMessage) (json.RawMessage, error)
