package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nihinconnect/chatd/internal/bus"
	"github.com/nihinconnect/chatd/internal/chat"
	"github.com/nihinconnect/chatd/internal/rest"
	"github.com/nihinconnect/chatd/internal/status"
	"go.uber.org/zap"
)

type stubSender struct{}

func (stubSender) SafeSend(any)      {}
func (stubSender) OnNextOpen(f func()) { f() }

type stubBackend struct {
	history map[int64][]rest.Message
	reply   *rest.Message
}

func (b *stubBackend) History(ctx context.Context, userID int64) ([]rest.Message, error) {
	return b.history[userID], nil
}

func (b *stubBackend) Send(ctx context.Context, receiverID int64, text string) (*rest.Message, error) {
	return b.reply, nil
}

func (b *stubBackend) MarkRead(context.Context, int64) error          { return nil }
func (b *stubBackend) MarkAllNotificationsRead(context.Context) error { return nil }

type stubDirectory struct{}

func (stubDirectory) Conversations(context.Context) ([]rest.Conversation, error) { return nil, nil }
func (stubDirectory) Friends(context.Context) ([]rest.User, error)               { return nil, nil }
func (stubDirectory) Notifications(context.Context) ([]rest.Notification, error) { return nil, nil }

func testHandler(t *testing.T, backend *stubBackend) (*Handler, *chat.Projector, *echo.Echo) {
	t.Helper()
	b := bus.New()
	logger := zap.NewNop()
	machine := status.NewMachine(b)
	sender := stubSender{}
	typist := chat.NewTypist(sender)
	proj := chat.NewProjector(rest.User{ID: 1, Name: "Me"}, backend, sender, typist, nil, b, logger)
	poller := chat.NewPoller(proj, stubDirectory{}, b, logger)
	h := NewHandler("main", machine, proj, poller, typist, nil, logger)
	e := echo.New()
	h.Register(e)
	return h, proj, e
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	_, _, e := testHandler(t, &stubBackend{})

	rec := doJSON(e, http.MethodGet, "/v1/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var resp StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Session != "main" || resp.State != string(status.Closed) {
		t.Errorf("status = %+v, want session main in CLOSED", resp)
	}
}

func TestOpenConversationReturnsHistory(t *testing.T) {
	now := time.Now()
	backend := &stubBackend{
		history: map[int64][]rest.Message{
			2: {
				{ID: 10, Text: "hello", CreatedAt: now, Sender: rest.User{ID: 2, Name: "A"}},
			},
		},
	}
	_, proj, e := testHandler(t, backend)

	rec := doJSON(e, http.MethodPost, "/v1/conversations/open", `{"friend_id":2,"name":"A"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var msgs []MessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ServerID != 10 || msgs[0].Text != "hello" {
		t.Errorf("messages = %+v, want the fetched history", msgs)
	}
	if proj.ActiveID() != 2 {
		t.Errorf("active = %d, want 2", proj.ActiveID())
	}
}

func TestOpenConversationRequiresFriendID(t *testing.T) {
	_, _, e := testHandler(t, &stubBackend{})

	rec := doJSON(e, http.MethodPost, "/v1/conversations/open", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
}

func TestSendWithoutOpenConversation(t *testing.T) {
	_, _, e := testHandler(t, &stubBackend{})

	rec := doJSON(e, http.MethodPost, "/v1/messages", `{"text":"hi"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("code = %d, want 409", rec.Code)
	}
}

func TestSendReturnsUpdatedMessages(t *testing.T) {
	now := time.Now()
	backend := &stubBackend{
		reply: &rest.Message{ID: 20, Text: "hi", CreatedAt: now, Sender: rest.User{ID: 1, Name: "Me"}},
	}
	_, _, e := testHandler(t, backend)

	if rec := doJSON(e, http.MethodPost, "/v1/conversations/open", `{"friend_id":2}`); rec.Code != http.StatusOK {
		t.Fatalf("open code = %d", rec.Code)
	}
	rec := doJSON(e, http.MethodPost, "/v1/messages", `{"text":"hi"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var msgs []MessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ServerID != 20 || msgs[0].Provisional {
		t.Errorf("messages = %+v, want one confirmed message", msgs)
	}
}

func TestMessagesQueryValidation(t *testing.T) {
	_, _, e := testHandler(t, &stubBackend{})

	if rec := doJSON(e, http.MethodGet, "/v1/messages?friend_id=abc", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
	if rec := doJSON(e, http.MethodGet, "/v1/messages", ""); rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
}

func TestTypingRequiresFriendID(t *testing.T) {
	_, _, e := testHandler(t, &stubBackend{})

	if rec := doJSON(e, http.MethodPost, "/v1/typing", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("code = %d, want 400", rec.Code)
	}
	if rec := doJSON(e, http.MethodPost, "/v1/typing", `{"friend_id":2}`); rec.Code != http.StatusNoContent {
		t.Errorf("code = %d, want 204", rec.Code)
	}
}

func TestConversationsFromProjector(t *testing.T) {
	_, proj, e := testHandler(t, &stubBackend{})

	now := time.Now()
	proj.ApplyConversations([]rest.Conversation{
		{Friend: rest.User{ID: 3, Name: "B"}, LastText: "yo", LastTime: &now, Unread: 2},
	})

	rec := doJSON(e, http.MethodGet, "/v1/conversations", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var sums []SummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &sums); err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 || sums[0].FriendID != 3 || sums[0].Unread != 2 {
		t.Errorf("summaries = %+v, want the projected row", sums)
	}
}
