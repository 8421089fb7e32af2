package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/comments-service/internal/auth"
	"github.com/UkralStul/comments-service/internal/broadcast"
	"github.com/UkralStul/comments-service/internal/challenge"
	"github.com/UkralStul/comments-service/internal/comments"
	"github.com/UkralStul/comments-service/internal/files"
	"github.com/UkralStul/comments-service/internal/search"
	"github.com/UkralStul/comments-service/internal/storage/inmemory"
)

var secret = []byte("test-secret")

type testServer struct {
	*httptest.Server
	hub *broadcast.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := inmemory.New()
	fileStore := files.NewFSStoreOn(afero.NewMemMapFs())
	hub := broadcast.NewHub(8)
	searcher := search.NewService(nil, store)

	svc := comments.NewService(comments.Deps{
		Store:     store,
		Files:     fileStore,
		Gate:      challenge.NewMemoryGate(time.Minute),
		Publisher: hub,
		Indexer:   searcher,
		PageSize:  2,
	})
	router := NewRouter(Options{
		Comments:  svc,
		Search:    searcher,
		Events:    hub,
		Files:     fileStore,
		Store:     store,
		JWTSecret: secret,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, hub: hub}
}

func token(t *testing.T, staff bool) string {
	t.Helper()
	tok, err := auth.IssueToken(secret, auth.Identity{UserID: "u1", Name: "member", Email: "member@example.com", IsStaff: staff}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok, contentType string, body io.Reader) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, body)
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *testServer) postJSON(t *testing.T, path, tok string, payload any) (int, map[string]any) {
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return s.do(t, http.MethodPost, path, tok, "application/json", bytes.NewReader(raw))
}

// solved запрашивает CAPTCHA и возвращает поля с правильным ответом.
func (s *testServer) solved(t *testing.T) map[string]any {
	t.Helper()
	status, body := s.do(t, http.MethodGet, "/api/comments/captcha", "", "", nil)
	require.Equal(t, http.StatusOK, status)
	parts := strings.Fields(body["question"].(string))
	a, _ := strconv.Atoi(parts[0])
	b, _ := strconv.Atoi(parts[2])
	answer := a + b
	if parts[1] == "-" {
		answer = a - b
	}
	return map[string]any{"captcha_key": body["key"], "captcha_value": strconv.Itoa(answer)}
}

func (s *testServer) createAnonymous(t *testing.T, name, text string) map[string]any {
	t.Helper()
	payload := s.solved(t)
	payload["user_name"] = name
	payload["email"] = name + "@example.com"
	payload["text"] = text
	status, body := s.postJSON(t, "/api/comments/", "", payload)
	require.Equal(t, http.StatusCreated, status, body)
	return body
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, files map[string]string) (string, io.Reader) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile(fileField, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return mw.FormDataContentType(), &buf
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	status, body := srv.do(t, http.MethodGet, "/api/health", "", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])
}

func TestCreateAndListComments(t *testing.T) {
	srv := newTestServer(t)

	root := srv.createAnonymous(t, "alice", "first [i]post[/i]")
	reply := srv.solved(t)
	reply["user_name"], reply["email"], reply["text"], reply["parent"] = "bob", "bob@example.com", "reply", root["id"]
	status, _ := srv.postJSON(t, "/api/comments/", "", reply)
	require.Equal(t, http.StatusCreated, status)

	status, page := srv.do(t, http.MethodGet, "/api/comments/?ordering=-created_at", "", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), page["count"])
	results := page["results"].([]any)
	require.Len(t, results, 1)
	top := results[0].(map[string]any)
	assert.Equal(t, "first [i]post[/i]", top["text"])
	require.Len(t, top["children"].([]any), 1)

	status, got := srv.do(t, http.MethodGet, "/api/comments/"+root["id"].(string), "", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, root["id"], got["id"])

	status, _ = srv.do(t, http.MethodGet, "/api/comments/?page=5", "", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = srv.do(t, http.MethodGet, "/api/comments/?page=abc", "", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = srv.do(t, http.MethodGet, "/api/comments/missing", "", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCreateComment_ValidationError(t *testing.T) {
	srv := newTestServer(t)

	payload := srv.solved(t)
	payload["user_name"] = "alice"
	payload["email"] = "nope"
	payload["text"] = "<script>"
	status, body := srv.postJSON(t, "/api/comments/", "", payload)
	require.Equal(t, http.StatusBadRequest, status)

	problem := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", problem["code"])
	details := problem["details"].(map[string]any)
	assert.Contains(t, details, "email")

	status, _ = srv.do(t, http.MethodPost, "/api/comments/", "", "application/json", strings.NewReader("{"))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestCreateComment_MultipartWithFiles(t *testing.T) {
	srv := newTestServer(t)

	fields := map[string]string{"user_name": "alice", "email": "alice@example.com", "text": "with file"}
	for k, v := range srv.solved(t) {
		fields[k] = v.(string)
	}
	ct, body := multipartBody(t, fields, "files", map[string]string{"notes.txt": "hello notes"})
	status, created := srv.do(t, http.MethodPost, "/api/comments/", "", ct, body)
	require.Equal(t, http.StatusCreated, status, created)

	attachments := created["attachments"].([]any)
	require.Len(t, attachments, 1)
	file := attachments[0].(map[string]any)["file"].(string)

	resp, err := http.Get(srv.URL + "/media/" + file)
	require.NoError(t, err)
	defer resp.Body.Close()
	content, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello notes", string(content))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestUploadThenBind(t *testing.T) {
	srv := newTestServer(t)
	member := token(t, false)

	ct, body := multipartBody(t, nil, "file", map[string]string{"a.txt": "aaa"})
	status, _ := srv.do(t, http.MethodPost, "/api/comments/upload", "", ct, body)
	require.Equal(t, http.StatusUnauthorized, status)

	ct, body = multipartBody(t, nil, "file", map[string]string{"a.txt": "aaa"})
	status, first := srv.do(t, http.MethodPost, "/api/comments/upload", member, ct, body)
	require.Equal(t, http.StatusCreated, status, first)
	key := first["upload_key"].(string)
	assert.NotEmpty(t, first["uploaded_at"])
	assert.NotEmpty(t, first["file"])

	ct, body = multipartBody(t, map[string]string{"upload_key": key}, "file", map[string]string{"b.txt": "bbb"})
	status, second := srv.do(t, http.MethodPost, "/api/comments/upload", member, ct, body)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, key, second["upload_key"])

	status, conflict := srv.postJSON(t, "/api/comments/", member, map[string]any{
		"text":           "bad ids",
		"upload_key":     key,
		"attachment_ids": []string{first["id"].(string), "unknown"},
	})
	require.Equal(t, http.StatusConflict, status)
	details := conflict["error"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, []any{"unknown"}, details["attachment_ids"])

	ct, body = multipartBody(t, map[string]string{
		"text":           "bound",
		"upload_key":     key,
		"attachment_ids": first["id"].(string) + "," + second["id"].(string),
	}, "files", nil)
	status, created := srv.do(t, http.MethodPost, "/api/comments/", member, ct, body)
	require.Equal(t, http.StatusCreated, status, created)
	assert.Equal(t, "member", created["user_name"])
	assert.Len(t, created["attachments"].([]any), 2)

	ct, body = multipartBody(t, nil, "file", map[string]string{"late.txt": "late"})
	status, late := srv.do(t, http.MethodPost, "/api/comments/"+created["id"].(string)+"/upload", member, ct, body)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, created["id"], late["comment"])
}

func TestDeleteComment_StaffOnly(t *testing.T) {
	srv := newTestServer(t)
	created := srv.createAnonymous(t, "alice", "to be removed")
	path := "/api/comments/admin/comments/" + created["id"].(string)

	status, _ := srv.do(t, http.MethodDelete, path, "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := srv.do(t, http.MethodDelete, path, token(t, false), "", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", body["error"].(map[string]any)["code"])

	status, _ = srv.do(t, http.MethodDelete, path, token(t, true), "", nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = srv.do(t, http.MethodGet, "/api/comments/"+created["id"].(string), "", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestInvalidToken(t *testing.T) {
	srv := newTestServer(t)
	status, body := srv.do(t, http.MethodGet, "/api/comments/", "garbage", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])
}

func TestSearchComments(t *testing.T) {
	srv := newTestServer(t)
	srv.createAnonymous(t, "alice", "golang rocks")
	srv.createAnonymous(t, "bob", "python too")

	status, _ := srv.do(t, http.MethodGet, "/api/search/comments?q=", "", "", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := srv.do(t, http.MethodGet, "/api/search/comments?q=golang", "", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "golang", body["query"])
	assert.Equal(t, float64(1), body["count"])
}

func TestWebsocketReceivesCreatedComment(t *testing.T) {
	srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/comments"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.hub.Count() == 1 }, time.Second, 5*time.Millisecond)

	created := srv.createAnonymous(t, "alice", "live")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Kind    string         `json:"kind"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, broadcast.KindCommentCreated, msg.Kind)
	assert.Equal(t, created["id"], msg.Payload["id"])
}

func TestMediaNotFound(t *testing.T) {
	srv := newTestServer(t)
	status, _ := srv.do(t, http.MethodGet, "/media/attachments/none.txt", "", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
