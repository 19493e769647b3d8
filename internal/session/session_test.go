package session

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSessionJSON(t *testing.T) {
	s := &Session{
		ID:        "s1",
		Creator:   "0xAAA",
		CreatedAt: time.UnixMilli(1700000000123),
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if body["timestamp"] != float64(1700000000123) {
		t.Errorf("expected unix millis timestamp, got %v", body["timestamp"])
	}
	participants, ok := body["participants"].([]interface{})
	if !ok || len(participants) != 0 {
		t.Errorf("expected empty participants array, got %v", body["participants"])
	}

	var back Session
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.CreatedAt.Equal(s.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", s.CreatedAt, back.CreatedAt)
	}
}

func TestSessionHas(t *testing.T) {
	s := &Session{Participants: []string{"0x1", "0x2"}}
	if !s.Has("0x2") {
		t.Error("expected 0x2 to be a participant")
	}
	if s.Has("0x3") {
		t.Error("expected 0x3 not to be a participant")
	}
}
