package protocol

import "encoding/json"

// ClientMessageType enumerates the message kinds a connection accepts
// before and after authentication.
type ClientMessageType string

const (
	ClientAuth            ClientMessageType = "auth"
	ClientPing            ClientMessageType = "ping"
	ClientSubmit          ClientMessageType = "submit"
	ClientRequestSnapshot ClientMessageType = "request_snapshot"
	ClientPresenceSet     ClientMessageType = "presence_set"
	ClientPresenceClear   ClientMessageType = "presence_clear"
)

// ServerMessageType enumerates the message kinds a connection emits.
type ServerMessageType string

const (
	ServerAuthResult       ServerMessageType = "auth_result"
	ServerPong             ServerMessageType = "pong"
	ServerTransaction      ServerMessageType = "transaction"
	ServerSnapshot         ServerMessageType = "snapshot"
	ServerError            ServerMessageType = "error"
	ServerPresenceSnapshot ServerMessageType = "presence_snapshot"
	ServerPresenceUpdate   ServerMessageType = "presence_update"
	ServerPresenceRemove   ServerMessageType = "presence_remove"
)

// ClientFrame is the envelope every inbound frame decodes into first;
// Type selects how the remaining fields are interpreted.
type ClientFrame struct {
	Type ClientMessageType `json:"type"`

	// auth
	Token string `json:"token,omitempty"`

	// submit
	Transaction json.RawMessage `json:"transaction,omitempty"`

	// presence_set
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerFrame is the envelope every outbound frame encodes from.
// Fields unused by a given Type are omitted.
type ServerFrame struct {
	Type ServerMessageType `json:"type"`

	// auth_result
	Success    bool   `json:"success,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Permission string `json:"permission,omitempty"`
	Error      string `json:"error,omitempty"`

	// transaction / snapshot
	Transaction json.RawMessage `json:"transaction,omitempty"`
	State       any             `json:"state,omitempty"`
	Version     int64           `json:"version,omitempty"`

	// error
	TransactionID string `json:"transactionId,omitempty"`
	Reason        string `json:"reason,omitempty"`

	// presence
	SelfID    string         `json:"selfId,omitempty"`
	Presences map[string]any `json:"presences,omitempty"`
	ID        string         `json:"id,omitempty"`
}
