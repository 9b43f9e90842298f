package relaydto

import "encoding/json"

// RoomRequest is the payload of create-game, join-game and get-move-history.
// Browser clients send the room as gameId; roomId wins when both are present.
type RoomRequest struct {
	RoomID string `json:"roomId"`
}

func (r *RoomRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		RoomID string `json:"roomId"`
		GameID string `json:"gameId"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.RoomID = firstNonEmpty(raw.RoomID, raw.GameID)
	return nil
}

type SendInvitationRequest struct {
	ToEmail string `json:"toEmail"`
	RoomID  string `json:"roomId"`
}

type RespondInvitationRequest struct {
	InvitationID string `json:"invitationId"`
	Accepted     bool   `json:"accepted"`
}

// Move is a client-proposed move: squares plus an optional promotion piece.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san,omitempty"`
}

type MoveRequest struct {
	RoomID string `json:"roomId"`
	Move   Move   `json:"move"`
}

func (r *MoveRequest) UnmarshalJSON(b []byte) error {
	var raw struct {
		RoomID string `json:"roomId"`
		GameID string `json:"gameId"`
		Move   Move   `json:"move"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.RoomID = firstNonEmpty(raw.RoomID, raw.GameID)
	r.Move = raw.Move
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
