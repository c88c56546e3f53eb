package models

import (
	"fmt"
	"strings"
	"time"
)

type FileStatus string

const (
	FileStatusPending  FileStatus = "pending"
	FileStatusUploaded FileStatus = "uploaded"
	FileStatusDeleted  FileStatus = "deleted"
	FileStatusInvalid  FileStatus = "invalid"
)

func ParseFileStatus(s string) (FileStatus, error) {
	switch FileStatus(s) {
	case FileStatusPending, FileStatusUploaded, FileStatusDeleted, FileStatusInvalid:
		return FileStatus(s), nil
	}
	return "", fmt.Errorf("unknown file status %q", s)
}

// FileRecord is one row of the multimodal metadata table.
type FileRecord struct {
	FileKey         string     `dynamodbav:"fileKey"`         // {useCaseId}/{userId}/{conversationId}/{messageId}
	FileName        string     `dynamodbav:"fileName"`        // user-facing name, unique per fileKey
	FileUuid        string     `dynamodbav:"fileUuid"`        // object name under the key prefix
	FileExtension   string     `dynamodbav:"fileExtension"`   // lowercased, no dot
	FileContentType string     `dynamodbav:"fileContentType"` // MIME type enforced on upload
	FileSize        int64      `dynamodbav:"fileSize"`        // bytes, recorded once the upload lands
	FileStatus      FileStatus `dynamodbav:"fileStatus"`      // pending | uploaded | deleted | invalid
	CreatedAt       time.Time  `dynamodbav:"createdAt"`
	UpdatedAt       time.Time  `dynamodbav:"updatedAt"`
	TTL             int64      `dynamodbav:"ttl"` // epoch seconds, table TTL attribute
}

// ObjectKey rebuilds the S3 key the record's bytes live under.
func (r FileRecord) ObjectKey() string {
	return BuildObjectKey(r.FileKey, r.FileUuid, r.FileExtension)
}

const (
	// Records of live files expire well after any upload grant does;
	// deleted and invalid records only need to outlast in-flight readers.
	ActiveRecordTTL   = 48 * time.Hour
	InactiveRecordTTL = 1 * time.Hour

	UploadGrantTTL   = 1 * time.Hour
	DownloadGrantTTL = 5 * time.Minute
)

// Size ceilings per file category, from the model providers' multimodal
// input limits.
const (
	MaxImageSizeBytes    = 3_750_000
	MaxDocumentSizeBytes = 4_500_000

	MaxFilesPerBatch  = 25
	MaxFileNameLength = 255
)

func BuildFileKey(useCaseID, userID, conversationID, messageID string) string {
	return strings.Join([]string{useCaseID, userID, conversationID, messageID}, "/")
}

func BuildObjectKey(fileKey, fileUuid, extension string) string {
	return fmt.Sprintf("%s/%s.%s", fileKey, fileUuid, extension)
}

var contentTypeByExtension = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"pdf":  "application/pdf",
	"csv":  "text/csv",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xls":  "application/vnd.ms-excel",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"html": "text/html",
	"txt":  "text/plain",
	"md":   "text/markdown",
}

var imageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"webp": {},
}

// FileExtension extracts the lowercased extension of fileName without the
// dot; names without an extension yield "".
func FileExtension(fileName string) string {
	idx := strings.LastIndex(fileName, ".")
	if idx < 0 || idx == len(fileName)-1 {
		return ""
	}
	return strings.ToLower(fileName[idx+1:])
}

// ContentTypeForExtension reports the MIME type for an allow-listed
// extension; ok is false for anything outside the allow-list.
func ContentTypeForExtension(extension string) (string, bool) {
	contentType, ok := contentTypeByExtension[strings.ToLower(extension)]
	return contentType, ok
}

func IsImageExtension(extension string) bool {
	_, ok := imageExtensions[strings.ToLower(extension)]
	return ok
}

// MaxSizeForExtension returns the upload ceiling in bytes for an
// allow-listed extension.
func MaxSizeForExtension(extension string) int64 {
	if IsImageExtension(extension) {
		return MaxImageSizeBytes
	}
	return MaxDocumentSizeBytes
}
