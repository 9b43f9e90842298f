package relaydto

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeDecode(t *testing.T) {
	var env Envelope
	raw := `{"event":"move","data":{"roomId":"room1","move":{"from":"e2","to":"e4"}}}`
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Event != EventMove {
		t.Fatalf("event=%q", env.Event)
	}
	var req MoveRequest
	if err := env.Decode(&req); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.RoomID != "room1" || req.Move.From != "e2" || req.Move.To != "e4" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestNewEnvelopeWithoutData(t *testing.T) {
	env, err := NewEnvelope(EventGameNotFound, nil)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	out, _ := json.Marshal(env)
	if string(out) != `{"event":"game-not-found"}` {
		t.Fatalf("unexpected frame %s", out)
	}
	var req RoomRequest
	if err := env.Decode(&req); err != nil || req.RoomID != "" {
		t.Fatalf("expected empty decode, got %+v %v", req, err)
	}
}

func TestRoomRequestsAcceptGameID(t *testing.T) {
	var room RoomRequest
	if err := json.Unmarshal([]byte(`{"gameId":"room1"}`), &room); err != nil {
		t.Fatalf("unmarshal room: %v", err)
	}
	if room.RoomID != "room1" {
		t.Fatalf("room=%q, want room1", room.RoomID)
	}

	var mv MoveRequest
	if err := json.Unmarshal([]byte(`{"gameId":"room2","move":{"from":"e2","to":"e4"}}`), &mv); err != nil {
		t.Fatalf("unmarshal move: %v", err)
	}
	if mv.RoomID != "room2" || mv.Move.From != "e2" || mv.Move.To != "e4" {
		t.Fatalf("unexpected move request: %+v", mv)
	}

	var both RoomRequest
	if err := json.Unmarshal([]byte(`{"roomId":"a","gameId":"b"}`), &both); err != nil {
		t.Fatalf("unmarshal both: %v", err)
	}
	if both.RoomID != "a" {
		t.Fatalf("roomId should win, got %q", both.RoomID)
	}
}
