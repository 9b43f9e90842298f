// Package relaydto defines the JSON frames exchanged with relay clients.
package relaydto

import "encoding/json"

// Inbound event names.
const (
	EventCreateGame        = "create-game"
	EventJoinGame          = "join-game"
	EventSendInvitation    = "send-invitation"
	EventRespondInvitation = "respond-invitation"
	EventMove              = "move"
	EventGetMoveHistory    = "get-move-history"
)

// Outbound event names.
const (
	EventActivePlayers      = "active-players"
	EventGameInvitation     = "game-invitation"
	EventInvitationAccepted = "invitation-accepted"
	EventInvitationDeclined = "invitation-declined"
	EventGameJoined         = "game-joined"
	EventOpponentJoined     = "opponent-joined"
	EventGameState          = "game-state"
	EventOpponentMove       = "opponent-move"
	EventInvalidMove        = "invalid-move"
	EventGameOver           = "game-over"
	EventGameFull           = "game-full"
	EventGameNotFound       = "game-not-found"
	EventMoveHistory        = "move-history"
	EventError              = "error"
)

// Envelope is one websocket text frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope.
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Decode unmarshals the envelope payload into v. An empty payload leaves v unchanged.
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}
