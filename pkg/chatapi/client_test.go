package chatapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatwire/internal/errors"
	"chatwire/pkg/circuitbreaker"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewClient(ClientConfig{
		BaseURL:   server.URL,
		AuthToken: "secret-token",
		Timeout:   time.Second,
	}, logger)
}

func TestEditMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/edit-message/42/", r.URL.Path)
		assert.Equal(t, "Token secret-token", r.Header.Get("Authorization"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "updated text", payload["content"])

		json.NewEncoder(w).Encode(EditResponse{
			Success:    true,
			Message:    "Message updated successfully",
			NewContent: "updated text",
			EditedAt:   "2026-08-31T10:00:00Z",
		})
	})

	resp, err := client.EditMessage(context.Background(), 42, "updated text")
	require.NoError(t, err)
	assert.Equal(t, "updated text", resp.NewContent)
	assert.Equal(t, "2026-08-31T10:00:00Z", resp.EditedAt)
}

func TestEditMessageRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(EditResponse{
			Success: false,
			Error:   "not the author",
		})
	})

	resp, err := client.EditMessage(context.Background(), 42, "updated text")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, errors.ErrCodePersistenceAPI, errors.GetCode(err))
}

func TestDeleteMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/delete-message/7/", r.URL.Path)
		json.NewEncoder(w).Encode(DeleteResponse{Success: true, Message: "Message deleted"})
	})

	resp, err := client.DeleteMessage(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestDeleteConversation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/delete-conversation/3/", r.URL.Path)
		json.NewEncoder(w).Encode(DeleteResponse{Success: true})
	})

	resp, err := client.DeleteConversation(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, resp.Success)
}

func TestSearchUsers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/search-users/", r.URL.Path)
		assert.Equal(t, "al ice", r.URL.Query().Get("q"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"users": []UserResult{
				{ID: 1, Username: "alice", DisplayName: "Alice", IsOnline: true},
				{ID: 2, Username: "albert", DisplayName: "Albert"},
			},
		})
	})

	users, err := client.SearchUsers(context.Background(), "al ice")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.True(t, users[0].IsOnline)
	assert.Equal(t, int64(2), users[1].ID)
}

func TestStartConversation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/start-conversation/", r.URL.Path)

		var payload map[string]int64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, int64(9), payload["user_id"])

		json.NewEncoder(w).Encode(StartConversationResponse{
			Success:        true,
			ConversationID: 15,
			RedirectURL:    "/chat/15/",
		})
	})

	resp, err := client.StartConversation(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, int64(15), resp.ConversationID)
	assert.Equal(t, "/chat/15/", resp.RedirectURL)
}

func TestUploadFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/upload-file/", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "look at this", r.FormValue("content"))
		assert.Equal(t, "15", r.FormValue("conversation_id"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "photo.png", header.Filename)

		json.NewEncoder(w).Encode(UploadResponse{
			Success:   true,
			MessageID: 99,
			FileName:  "photo.png",
			FileURL:   "/media/chat_files/photo.png",
			FileSize:  "2.4 KB",
			IsImage:   true,
		})
	})

	resp, err := client.UploadFile(context.Background(), 15, "photo.png",
		strings.NewReader("PNGDATA"), "look at this")
	require.NoError(t, err)
	assert.Equal(t, int64(99), resp.MessageID)
	assert.Equal(t, "/media/chat_files/photo.png", resp.FileURL)
	assert.True(t, resp.IsImage)
}

func TestUploadFileRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(UploadResponse{
			Success: false,
			Error:   "file too large",
		})
	})

	resp, err := client.UploadFile(context.Background(), 15, "big.bin",
		strings.NewReader("x"), "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, errors.ErrCodePersistenceAPI, errors.GetCode(err))
}

func TestServerErrorIsRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.DeleteMessage(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, errors.IsRetryable(err))
}

func TestClientErrorIsNotRetryable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := client.EditMessage(context.Background(), 7, "x")
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err))
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	client := NewClient(ClientConfig{
		BaseURL:            server.URL,
		Timeout:            time.Second,
		BreakerMaxFailures: 2,
		BreakerResetAfter:  time.Minute,
	}, logger)

	ctx := context.Background()
	_, err := client.DeleteMessage(ctx, 1)
	require.Error(t, err)
	_, err = client.DeleteMessage(ctx, 1)
	require.Error(t, err)

	_, err = client.DeleteMessage(ctx, 1)
	require.Error(t, err)
	assert.True(t, circuitbreaker.IsCircuitBreakerError(err))
}

func TestHealthCheck(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, client.HealthCheck(context.Background()))
}
