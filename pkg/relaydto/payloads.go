package relaydto

// Player is one entry of the active-players list.
type Player struct {
	SocketID string `json:"socketId"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

type GameInvitation struct {
	InvitationID string `json:"invitationId"`
	From         string `json:"from"`
	FromName     string `json:"fromName"`
	RoomID       string `json:"roomId"`
}

type InvitationAccepted struct {
	RoomID   string `json:"roomId"`
	Side     string `json:"side"`
	Opponent string `json:"opponent"`
}

type InvitationDeclined struct {
	From     string `json:"from"`
	FromName string `json:"fromName"`
}

type GameJoined struct {
	RoomID   string `json:"roomId"`
	Side     string `json:"side"`
	Opponent string `json:"opponent,omitempty"`
}

type OpponentJoined struct {
	Opponent string `json:"opponent"`
}

// MoveRecord is one validated move with the position it produced.
type MoveRecord struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
	Color     string `json:"color"`
	FEN       string `json:"fen"`
}

// HistoryEntry mirrors the client's move-history item: the move and the FEN after it.
type HistoryEntry struct {
	Move MoveRecord `json:"move"`
	FEN  string     `json:"fen"`
}

type GameState struct {
	RoomID string         `json:"roomId"`
	FEN    string         `json:"fen"`
	Moves  []HistoryEntry `json:"moves"`
	Status string         `json:"status"`
	Turn   string         `json:"turn"`
}

type OpponentMove struct {
	Move MoveRecord `json:"move"`
}

type InvalidMove struct {
	Error string `json:"error"`
}

type GameOver struct {
	RoomID      string `json:"roomId"`
	Winner      string `json:"winner,omitempty"`
	Reason      string `json:"reason"`
	IsCheckmate bool   `json:"isCheckmate"`
	IsStalemate bool   `json:"isStalemate"`
	IsDraw      bool   `json:"isDraw"`
}

type GameFull struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type GameNotFound struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message,omitempty"`
}

type MoveHistory struct {
	RoomID string         `json:"roomId"`
	Moves  []HistoryEntry `json:"moves"`
}

// Error is the generic negative outcome for requests without a dedicated event.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
