package models

import "time"

// Upload status values. The pipeline owns every transition after "pending".
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// UploadedFile represents one user-submitted document in the user_uploads
// collection. It is the only durable progress indicator for a parse run.
type UploadedFile struct {
	ID           string                 `firestore:"-"`
	UserID       string                 `firestore:"userId,omitempty"`
	FileName     string                 `firestore:"fileName,omitempty"`
	FileType     string                 `firestore:"fileType,omitempty"`
	MimeType     string                 `firestore:"mimeType,omitempty"`
	StoragePath  string                 `firestore:"storagePath,omitempty"`
	Status       string                 `firestore:"status,omitempty"`
	ErrorMessage string                 `firestore:"errorMessage,omitempty"`
	PageCount    int                    `firestore:"pageCount,omitempty"`
	ParsedData   map[string]interface{} `firestore:"parsedData,omitempty"`
	CreatedAt    time.Time              `firestore:"createdAt,omitempty"`
}

// InlineContent returns previously cached text content from a prior parse, if
// any. It takes priority over a storage download when resolving file bytes.
func (u *UploadedFile) InlineContent() (string, bool) {
	if u.ParsedData == nil {
		return "", false
	}
	content, ok := u.ParsedData["content"].(string)
	if !ok || content == "" {
		return "", false
	}
	return content, true
}
