package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nereus-ai/chat-backend/internal/auth"
	"github.com/nereus-ai/chat-backend/internal/domain"
	"github.com/nereus-ai/chat-backend/internal/http/middleware"
	"github.com/nereus-ai/chat-backend/internal/repo"
	"github.com/nereus-ai/chat-backend/internal/services"
)

// fakeIdemStore is an in-memory IdempotencyStore.
type fakeIdemStore struct {
	records map[string]*repo.Idempotency
	puts    int
}

func (f *fakeIdemStore) key(userID, chatID, key string) string {
	return userID + "#" + chatID + "#" + key
}

func (f *fakeIdemStore) Get(ctx context.Context, userID, chatID, key string, now time.Time) *repo.Idempotency {
	return f.records[f.key(userID, chatID, key)]
}

func (f *fakeIdemStore) Put(ctx context.Context, userID, chatID, key, messageID string, status int) {
	f.puts++
	f.records[f.key(userID, chatID, key)] = &repo.Idempotency{
		UserID: userID, ChatID: chatID, Key: key, MessageID: messageID, Status: status,
	}
}

func messageRouter(t *testing.T, a Assistant, idem IdempotencyStore) (*gin.Engine, *auth.Issuer) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	issuer := auth.NewIssuer([]byte("msg-secret"), time.Hour)

	opts := []Option{}
	if idem != nil {
		opts = append(opts, WithIdempotency(idem))
	}
	h := New(nil, stubAuthSvc{}, a, opts...)

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Session(issuer))
	r.POST("/chats/:id/messages", h.PostMessage)
	return r, issuer
}

func postMessage(r *gin.Engine, token, chatID, body string, extra map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chats/"+chatID+"/messages", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func streamingAssistant() stubAssistant {
	return stubAssistant{respond: func(ctx context.Context, sess *auth.Session, chatID, prompt string, h services.StreamHandlers) (*domain.Message, error) {
		if err := h.OnSources([]services.Source{{Label: "Pricing", Snippet: "plans start at ten dollars"}}); err != nil {
			return nil, err
		}
		for _, snapshot := range []string{"Plans ", "Plans start at ten dollars [citation](1)."} {
			if err := h.OnContent(snapshot); err != nil {
				return nil, err
			}
		}
		return &domain.Message{ID: "m-final", Role: domain.RoleAssistant, Content: "Plans start at ten dollars [citation](1)."}, nil
	}}
}

func TestPostMessage_StreamsEvents(t *testing.T) {
	r, issuer := messageRouter(t, streamingAssistant(), nil)
	token, _ := issuer.Issue("u1", "a@b.c")

	w := postMessage(r, token, "c1", `{"message":"how much?"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
	body := w.Body.String()
	for _, want := range []string{
		"event:sources",
		`"label":"Pricing"`,
		"event:message",
		`[citation](1)`,
		"event:done",
		`"message_id":"m-final"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %q:\n%s", want, body)
		}
	}
	if strings.Index(body, "event:sources") > strings.Index(body, "event:message") {
		t.Fatalf("sources must precede content:\n%s", body)
	}
}

func TestPostMessage_RejectsMissingBody(t *testing.T) {
	r, _ := messageRouter(t, streamingAssistant(), nil)

	for _, body := range []string{`{}`, `{"message":""}`, `broken`} {
		w := postMessage(r, "", "c1", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q -> %d, want 400", body, w.Code)
		}
	}
}

func TestPostMessage_ValidationErrorBeforeStream(t *testing.T) {
	a := stubAssistant{respond: func(context.Context, *auth.Session, string, string, services.StreamHandlers) (*domain.Message, error) {
		return nil, services.ErrTooLong
	}}
	r, _ := messageRouter(t, a, nil)

	w := postMessage(r, "", "c1", `{"message":"way too long"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), ErrCodeBadRequest) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestPostMessage_MidStreamErrorBecomesEvent(t *testing.T) {
	a := stubAssistant{respond: func(ctx context.Context, sess *auth.Session, chatID, prompt string, h services.StreamHandlers) (*domain.Message, error) {
		if err := h.OnContent("partial answer"); err != nil {
			return nil, err
		}
		return nil, errors.New("upstream reset")
	}}
	r, _ := messageRouter(t, a, nil)

	w := postMessage(r, "", "c1", `{"message":"hi"}`, nil)
	// The status line was already sent with the first event.
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "event:error") || strings.Contains(body, "event:done") {
		t.Fatalf("expected error event and no done event:\n%s", body)
	}
}

func TestPostMessage_IdempotentReplay(t *testing.T) {
	idem := &fakeIdemStore{records: map[string]*repo.Idempotency{}}
	r, issuer := messageRouter(t, streamingAssistant(), idem)
	token, _ := issuer.Issue("u1", "a@b.c")
	hdr := map[string]string{idempotencyKeyHeader: "retry-1"}

	w := postMessage(r, token, "c1", `{"message":"how much?"}`, hdr)
	if w.Code != http.StatusOK || idem.puts != 1 {
		t.Fatalf("first request: status=%d puts=%d", w.Code, idem.puts)
	}

	// Same tuple replays from the record without streaming.
	w2 := postMessage(r, token, "c1", `{"message":"how much?"}`, hdr)
	if w2.Code != http.StatusOK {
		t.Fatalf("replay status = %d", w2.Code)
	}
	if strings.Contains(w2.Body.String(), "event:") {
		t.Fatalf("replay must not stream:\n%s", w2.Body.String())
	}
	if !strings.Contains(w2.Body.String(), `"replayed":true`) || !strings.Contains(w2.Body.String(), "m-final") {
		t.Fatalf("unexpected replay body: %s", w2.Body.String())
	}
	if idem.puts != 1 {
		t.Fatalf("replay must not re-record: puts=%d", idem.puts)
	}

	// A different key runs the assistant again.
	w3 := postMessage(r, token, "c1", `{"message":"how much?"}`, map[string]string{idempotencyKeyHeader: "retry-2"})
	if w3.Code != http.StatusOK || idem.puts != 2 {
		t.Fatalf("new key: status=%d puts=%d", w3.Code, idem.puts)
	}
}

func TestPostMessage_AnonymousSkipsIdempotency(t *testing.T) {
	idem := &fakeIdemStore{records: map[string]*repo.Idempotency{}}
	r, _ := messageRouter(t, streamingAssistant(), idem)

	w := postMessage(r, "", "c1", `{"message":"hi"}`, map[string]string{idempotencyKeyHeader: "k"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if idem.puts != 0 {
		t.Fatalf("anonymous requests must not be recorded: puts=%d", idem.puts)
	}
}
