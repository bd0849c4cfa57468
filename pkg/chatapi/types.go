package chatapi

import (
	"context"
	"io"
)

// Client is the HTTP interface to the chat persistence service. Edits
// and deletions go through HTTP first so the server is the source of
// truth; the websocket frame that follows fans the change out to other
// participants. File uploads also go through HTTP, the returned message
// metadata is then announced over the channel as a file_message frame.
type Client interface {
	EditMessage(ctx context.Context, messageID int64, content string) (*EditResponse, error)
	DeleteMessage(ctx context.Context, messageID int64) (*DeleteResponse, error)
	DeleteConversation(ctx context.Context, conversationID int64) (*DeleteResponse, error)
	SearchUsers(ctx context.Context, query string) ([]UserResult, error)
	StartConversation(ctx context.Context, userID int64) (*StartConversationResponse, error)
	UploadFile(ctx context.Context, conversationID int64, fileName string, file io.Reader, content string) (*UploadResponse, error)
	HealthCheck(ctx context.Context) error
}

// EditResponse is the server's reply to an edit request.
type EditResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	NewContent string `json:"new_content,omitempty"`
	EditedAt   string `json:"edited_at,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DeleteResponse is the server's reply to a message or conversation
// deletion.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// UserResult is one hit from a user search.
type UserResult struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	IsOnline    bool   `json:"is_online"`
}

// StartConversationResponse is the server's reply to starting a
// conversation. An existing conversation with the same participant is
// reused server-side.
type StartConversationResponse struct {
	Success        bool   `json:"success"`
	ConversationID int64  `json:"conversation_id"`
	RedirectURL    string `json:"redirect_url,omitempty"`
	Error          string `json:"error,omitempty"`
}

// UploadResponse is the server's reply to a file upload. The metadata is
// echoed into the file_message frame announcing the upload.
type UploadResponse struct {
	Success   bool   `json:"success"`
	MessageID int64  `json:"message_id"`
	FileName  string `json:"file_name"`
	FileURL   string `json:"file_url"`
	FileSize  string `json:"file_size"`
	IsImage   bool   `json:"is_image"`
	Error     string `json:"error,omitempty"`
}
