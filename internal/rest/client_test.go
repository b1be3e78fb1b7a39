package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/messages/conversations/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q, want Bearer tok", got)
		}
		last := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		_ = json.NewEncoder(w).Encode(conversationsResponse{Conversations: []Conversation{
			{Friend: User{ID: 2, Name: "bob"}, LastText: "hi", LastTime: &last, LastSenderID: 2, Unread: 3},
		}})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	convs, err := c.Conversations(context.Background())
	if err != nil {
		t.Fatalf("Conversations() error = %v", err)
	}
	if len(convs) != 1 || convs[0].Friend.ID != 2 || convs[0].Unread != 3 {
		t.Errorf("convs = %+v", convs)
	}
}

func TestHistoryQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_id"); got != "42" {
			t.Errorf("user_id = %q, want 42", got)
		}
		_ = json.NewEncoder(w).Encode(messagesResponse{Messages: []Message{
			{ID: 1, Text: "hello", Sender: User{ID: 42}},
		}})
	}))
	defer srv.Close()

	msgs, err := New(srv.URL, "tok").History(context.Background(), 42)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != 1 {
		t.Errorf("msgs = %+v", msgs)
	}
}

func TestSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["receiver_id"].(float64) != 9 || body["text"] != "yo" {
			t.Errorf("body = %v", body)
		}
		_ = json.NewEncoder(w).Encode(sendResponse{Message: &Message{ID: 77, Text: "yo"}})
	}))
	defer srv.Close()

	msg, err := New(srv.URL, "tok").Send(context.Background(), 9, "yo")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.ID != 77 {
		t.Errorf("msg.ID = %d, want 77", msg.ID)
	}
}

func TestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "stale").Conversations(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAuthError(err) {
		t.Errorf("IsAuthError(%v) = false, want true", err)
	}

	re, ok := err.(*Error)
	if !ok {
		t.Fatalf("error type = %T, want *Error", err)
	}
	if re.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", re.StatusCode)
	}
}

func TestIsAuthErrorOtherStatus(t *testing.T) {
	if IsAuthError(&Error{StatusCode: http.StatusInternalServerError}) {
		t.Error("500 should not be an auth error")
	}
	if IsAuthError(context.Canceled) {
		t.Error("non-rest errors should not be auth errors")
	}
}

func TestMarkReadBestEffortBody(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["user_id"].(float64) != 5 {
			t.Errorf("user_id = %v, want 5", body["user_id"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := New(srv.URL, "tok").MarkRead(context.Background(), 5); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if gotPath != "/auth/messages/mark-read/" {
		t.Errorf("path = %q", gotPath)
	}
}
