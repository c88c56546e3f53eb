package models

// FileAccessScope identifies the conversation message a batch of files
// belongs to. UserID is resolved from the verified caller identity, never
// from the request payload.
type FileAccessScope struct {
	UseCaseID      string
	UserID         string
	ConversationID string
	MessageID      string
}

func (s FileAccessScope) FileKey() string {
	return BuildFileKey(s.UseCaseID, s.UserID, s.ConversationID, s.MessageID)
}

type FileUploadRequest struct {
	Scope     FileAccessScope
	FileNames []string
}

type FileDeleteRequest struct {
	Scope     FileAccessScope
	FileNames []string
}

type FileGetRequest struct {
	Scope    FileAccessScope
	FileName string
}

// FileUploadResult is one entry of the upload response, index-aligned with
// the requested file names. Error is null on success.
type FileUploadResult struct {
	UploadURL  string            `json:"uploadUrl"`
	FormFields map[string]string `json:"formFields"`
	FileName   string            `json:"fileName"`
	ExpiresIn  int64             `json:"expiresIn"` // seconds
	CreatedAt  string            `json:"createdAt"` // RFC 3339
	Error      *string           `json:"error"`
}

type FileUploadResponse struct {
	Uploads []FileUploadResult `json:"uploads"`
}

type DeletionResult struct {
	Success  bool   `json:"success"`
	FileName string `json:"fileName"`
	Error    string `json:"error,omitempty"`
}

type FileDeleteResponse struct {
	Deletions     []DeletionResult `json:"deletions"`
	AllSuccessful bool             `json:"allSuccessful"`
	FailureCount  int              `json:"failureCount"`
}

type FileDownloadResponse struct {
	DownloadURL string `json:"downloadUrl"`
}

// UploadGrant carries a presigned POST: the form target plus every field the
// browser must echo back for the policy to hold.
type UploadGrant struct {
	URL        string
	FormFields map[string]string
	ExpiresIn  int64
	CreatedAt  string
}
