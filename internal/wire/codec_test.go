package wire

import (
	"strings"
	"testing"
	"time"
)

func TestEncodeDecodeMessageRequestRoundTrip(t *testing.T) {
	t.Parallel()

	frame, err := EncodeMessageRequest("hi", "c1")
	if err != nil {
		t.Fatalf("EncodeMessageRequest failed: %v", err)
	}

	req, err := DecodeMessageRequest(frame)
	if err != nil {
		t.Fatalf("DecodeMessageRequest failed: %v", err)
	}
	if req.Text != "hi" || req.ChatID != "c1" {
		t.Errorf("round trip mismatch: got %+v", req)
	}
}

func TestDecodeServerEventNewMessage(t *testing.T) {
	t.Parallel()

	frame := []byte(`{"type":"NewMessage","message":{"text":"hello","timestamp":1700000000000,"username":"bob","id":"m1","chatId":"c1"}}`)
	ev, err := DecodeServerEvent(frame)
	if err != nil {
		t.Fatalf("DecodeServerEvent failed: %v", err)
	}
	if ev.Type != EventNewMessage {
		t.Fatalf("expected type %q, got %q", EventNewMessage, ev.Type)
	}

	msg := ev.Message.ToMessage()
	if msg.Text != "hello" || msg.Username != "bob" || msg.ChatID != "c1" {
		t.Errorf("unexpected message: %+v", msg)
	}
	want := time.UnixMilli(1700000000000)
	if !msg.Timestamp.Equal(want) {
		t.Errorf("expected timestamp %v, got %v", want, msg.Timestamp)
	}
}

func TestDecodeServerEventNewChat(t *testing.T) {
	t.Parallel()

	frame := []byte(`{"type":"NewChat","chat":{"id":"c2","name":"General","isGroup":true,"createdBy":"alice"}}`)
	ev, err := DecodeServerEvent(frame)
	if err != nil {
		t.Fatalf("DecodeServerEvent failed: %v", err)
	}

	chat := ev.Chat.ToChat()
	if chat.ID != "c2" || chat.Name != "General" || !chat.IsGroup || chat.CreatedBy != "alice" {
		t.Errorf("unexpected chat: %+v", chat)
	}
	if chat.LastMessageID != "" {
		t.Errorf("expected empty LastMessageID for absent lastMessageId, got %q", chat.LastMessageID)
	}
}

func TestDecodeServerEventDeleteChat(t *testing.T) {
	t.Parallel()

	ev, err := DecodeServerEvent([]byte(`{"type":"DeleteChat","chatId":"c3"}`))
	if err != nil {
		t.Fatalf("DecodeServerEvent failed: %v", err)
	}
	if ev.ChatID != "c3" {
		t.Errorf("expected chatId c3, got %q", ev.ChatID)
	}
}

func TestDecodeServerEventRejectsMalformedFrames(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		frame string
	}{
		{"not json", `not json at all`},
		{"unknown type", `{"type":"Typing","chatId":"c1"}`},
		{"message without payload", `{"type":"NewMessage"}`},
		{"chat without payload", `{"type":"NewChat"}`},
		{"delete without chat id", `{"type":"DeleteChat"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeServerEvent([]byte(tc.frame)); err == nil {
				t.Errorf("expected decode error for %q", tc.frame)
			}
		})
	}
}

func TestEncodeServerEventRoundTrip(t *testing.T) {
	t.Parallel()

	last := "m9"
	in := &ServerEvent{
		Type: EventNewChat,
		Chat: &ChatWire{ID: "c1", Name: "pair", CreatedBy: "bob", LastMessageID: &last},
	}
	frame, err := EncodeServerEvent(in)
	if err != nil {
		t.Fatalf("EncodeServerEvent failed: %v", err)
	}
	if !strings.Contains(string(frame), `"lastMessageId":"m9"`) {
		t.Errorf("expected lastMessageId in frame, got %s", frame)
	}

	out, err := DecodeServerEvent(frame)
	if err != nil {
		t.Fatalf("DecodeServerEvent failed: %v", err)
	}
	if out.Chat.ToChat().LastMessageID != "m9" {
		t.Errorf("round trip lost lastMessageId: %+v", out.Chat)
	}
}
