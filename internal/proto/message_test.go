package proto

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMsgObjDecoding(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantID   ID
		wantTime time.Time
		wantErr  bool
	}{
		{
			name:   "string id without timestamp",
			raw:    `{"behavior":"talk","message":"hi","senderId":"u1","senderName":"alice"}`,
			wantID: "u1",
		},
		{
			name:   "numeric id",
			raw:    `{"behavior":"talk","senderId":42}`,
			wantID: "42",
		},
		{
			name:     "rfc3339 timestamp",
			raw:      `{"behavior":"talk","senderId":"u1","createdAt":"2024-05-01T10:00:00Z"}`,
			wantID:   "u1",
			wantTime: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "unix millis",
			raw:      `{"behavior":"talk","senderId":"u1","createdAt":1714557600000}`,
			wantID:   "u1",
			wantTime: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:     "unix millis as string",
			raw:      `{"behavior":"talk","senderId":"u1","createdAt":"1714557600000"}`,
			wantID:   "u1",
			wantTime: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name:   "null timestamp",
			raw:    `{"behavior":"talk","senderId":"u1","createdAt":null}`,
			wantID: "u1",
		},
		{
			name:    "garbage timestamp",
			raw:     `{"behavior":"talk","senderId":"u1","createdAt":"yesterday"}`,
			wantErr: true,
		},
		{
			name:    "object id",
			raw:     `{"behavior":"talk","senderId":{"oid":"x"}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var obj MsgObj
			err := json.Unmarshal([]byte(tt.raw), &obj)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", obj)
				}
				return
			}
			if err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if obj.SenderID != tt.wantID {
				t.Fatalf("sender id = %q, want %q", obj.SenderID, tt.wantID)
			}
			if !obj.CreatedAt.Equal(tt.wantTime) {
				t.Fatalf("createdAt = %v, want %v", obj.CreatedAt.Time, tt.wantTime)
			}
		})
	}
}

func TestNormalizeEvent(t *testing.T) {
	if got := NormalizeEvent("chat message"); got != EventChatMessage {
		t.Fatalf("legacy name normalized to %q", got)
	}
	if got := NormalizeEvent(EventPrivate); got != EventPrivate {
		t.Fatalf("private normalized to %q", got)
	}
	if got := HistoryEvent("u1"); got != "history-u1" {
		t.Fatalf("history event = %q", got)
	}
}

func TestOutboundOmitsEmptyFields(t *testing.T) {
	raw, err := json.Marshal(Outbound{Event: EventError, Error: &Error{Code: ErrCodeBadRequest, Msg: "bad"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"event":"error","error":{"code":"bad_request","msg":"bad"}}`
	if string(raw) != want {
		t.Fatalf("got %s, want %s", raw, want)
	}
}
