package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/persona-echo/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/persona-echo/backend/internal/service/chat"
	"github.com/zhouzirui/persona-echo/backend/internal/service/session"
)

const sample = "1/2/24, 10:00 AM - Alice: hi\n1/2/24, 10:01 AM - Bob: hello\nthere"

type stubBackend struct {
	reply string
	err   error
}

func (s *stubBackend) Complete(context.Context, ai.Prompt) (string, error) {
	return s.reply, s.err
}

func (s *stubBackend) Stream(ctx context.Context, p ai.Prompt, onDelta func(string) error) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if err := onDelta(s.reply); err != nil {
		return "", err
	}
	return s.reply, nil
}

func setupRouter(backend *stubBackend) *chi.Mux {
	svc := chatservice.NewService(session.NewStore(nil), backend, chatservice.Options{})
	r := chi.NewRouter()
	New(svc, nil).RegisterRoutes(r)
	return r
}

func upload(t *testing.T, r http.Handler, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "chat.txt")
	if err != nil {
		t.Fatalf("CreateFormFile err: %v", err)
	}
	part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload_chat_history/", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func uploadSession(t *testing.T, r http.Handler) UploadResponse {
	t.Helper()
	resp := upload(t, r, []byte(sample))
	if resp.Code != http.StatusOK {
		t.Fatalf("upload expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return out
}

func errorDetail(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["detail"]
}

func TestUploadCreatesSession(t *testing.T) {
	r := setupRouter(&stubBackend{reply: "ok"})
	out := uploadSession(t, r)

	if out.SessionID == "" {
		t.Fatal("expected session id")
	}
	if len(out.Participants) != 2 || out.Participants[0] != "Alice" || out.Participants[1] != "Bob" {
		t.Fatalf("unexpected participants: %v", out.Participants)
	}
	if !strings.Contains(out.Message, "File not stored on server") {
		t.Fatalf("unexpected message: %q", out.Message)
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	r := setupRouter(&stubBackend{})

	cases := map[string][]byte{
		"invalid utf8":    {0xff, 0xfe, 0x00, 0x41},
		"one participant": []byte("1/2/24, 10:00 AM - Alice: hi\n1/2/24, 10:01 AM - Alice: hey"),
		"no header lines": []byte("just some text"),
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			resp := upload(t, r, content)
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.Code)
			}
		})
	}
}

func TestUploadMissingFile(t *testing.T) {
	r := setupRouter(&stubBackend{})
	req := httptest.NewRequest(http.MethodPost, "/upload_chat_history/", strings.NewReader(""))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestGetHistory(t *testing.T) {
	r := setupRouter(&stubBackend{})
	out := uploadSession(t, r)

	req := httptest.NewRequest(http.MethodGet, "/get_chat_history/"+out.SessionID+"?persona=Bob", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body struct {
		Messages []struct {
			Timestamp string `json:"timestamp"`
			Sender    string `json:"sender"`
			Message   string `json:"message"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Messages) != 2 || body.Messages[1].Message != "hello\nthere" {
		t.Fatalf("unexpected messages: %#v", body.Messages)
	}
}

func TestGetHistoryErrors(t *testing.T) {
	r := setupRouter(&stubBackend{})
	out := uploadSession(t, r)

	cases := []struct {
		name   string
		path   string
		status int
	}{
		{name: "unknown session", path: "/get_chat_history/nope?persona=Bob", status: http.StatusNotFound},
		{name: "unknown persona", path: "/get_chat_history/" + out.SessionID + "?persona=Carol", status: http.StatusBadRequest},
		{name: "missing persona", path: "/get_chat_history/" + out.SessionID, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
		})
	}
}

func postChat(r http.Handler, sessionID, persona, message string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(map[string]string{"message": message})
	req := httptest.NewRequest(http.MethodPost, "/chat/"+sessionID+"?persona="+persona, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func historyLen(t *testing.T, r http.Handler, sessionID, persona string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/get_chat_history/"+sessionID+"?persona="+persona, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	var body struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return len(body.Messages)
}

func TestChatReplies(t *testing.T) {
	r := setupRouter(&stubBackend{reply: "sure, see you"})
	out := uploadSession(t, r)

	resp := postChat(r, out.SessionID, "Bob", "are we still on?")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["response"] != "sure, see you" {
		t.Fatalf("unexpected response: %v", body)
	}
	if n := historyLen(t, r, out.SessionID, "Bob"); n != 4 {
		t.Fatalf("expected 4 messages after reply, got %d", n)
	}
}

func TestChatBackendFailureRollsBack(t *testing.T) {
	r := setupRouter(&stubBackend{err: errors.New("connection refused")})
	out := uploadSession(t, r)

	resp := postChat(r, out.SessionID, "Bob", "hello?")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if detail := errorDetail(t, resp); !strings.HasPrefix(detail, "Error generating response:") {
		t.Fatalf("unexpected detail: %q", detail)
	}
	if n := historyLen(t, r, out.SessionID, "Bob"); n != 2 {
		t.Fatalf("expected history unchanged, got %d messages", n)
	}
}

func TestChatValidation(t *testing.T) {
	r := setupRouter(&stubBackend{reply: "x"})
	out := uploadSession(t, r)

	if resp := postChat(r, "missing", "Bob", "hi"); resp.Code != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", resp.Code)
	}
	resp := postChat(r, out.SessionID, "Carol", "hi")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unknown persona: expected 400, got %d", resp.Code)
	}
	if detail := errorDetail(t, resp); detail != "Persona 'Carol' not found in this chat." {
		t.Fatalf("unexpected detail: %q", detail)
	}
	if resp := postChat(r, out.SessionID, "Bob", "   "); resp.Code != http.StatusBadRequest {
		t.Fatalf("blank message: expected 400, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/chat/"+out.SessionID+"?persona=Bob", strings.NewReader("{"))
	bad := httptest.NewRecorder()
	r.ServeHTTP(bad, req)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", bad.Code)
	}
}
