package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/errors"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/models"
)

// batchBody is the shared payload of the upload and delete routes.
type batchBody struct {
	FileNames      []string `json:"fileNames"`
	ConversationID string   `json:"conversationId"`
	MessageID      string   `json:"messageId"`
}

// BuildUploadRequest validates the transport request before any per-file
// work starts. Upload additionally pins every name to the extension
// allow-list so no grant is ever issued for an unsupported type.
func BuildUploadRequest(c *gin.Context, userID string) (*models.FileUploadRequest, error) {
	scope, fileNames, err := batchFromRequest(c, userID)
	if err != nil {
		return nil, err
	}

	for _, name := range fileNames {
		if _, ok := models.ContentTypeForExtension(models.FileExtension(name)); !ok {
			return nil, apperrors.Newf(apperrors.KindValidation, "File extension of %s is not supported.", name)
		}
	}

	return &models.FileUploadRequest{Scope: *scope, FileNames: fileNames}, nil
}

func BuildDeleteRequest(c *gin.Context, userID string) (*models.FileDeleteRequest, error) {
	scope, fileNames, err := batchFromRequest(c, userID)
	if err != nil {
		return nil, err
	}
	return &models.FileDeleteRequest{Scope: *scope, FileNames: fileNames}, nil
}

func BuildGetRequest(c *gin.Context, userID string) (*models.FileGetRequest, error) {
	scope, err := scopeFromParts(c.Param("useCaseId"), userID, c.Query("conversationId"), c.Query("messageId"))
	if err != nil {
		return nil, err
	}

	fileName := c.Query("fileName")
	if err := validateFileName(fileName); err != nil {
		return nil, err
	}

	return &models.FileGetRequest{Scope: *scope, FileName: fileName}, nil
}

func batchFromRequest(c *gin.Context, userID string) (*models.FileAccessScope, []string, error) {
	var body batchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		return nil, nil, apperrors.New(apperrors.KindValidation, "Request body is not valid JSON.")
	}

	scope, err := scopeFromParts(c.Param("useCaseId"), userID, body.ConversationID, body.MessageID)
	if err != nil {
		return nil, nil, err
	}

	if len(body.FileNames) == 0 {
		return nil, nil, apperrors.New(apperrors.KindValidation, "At least one file name is required.")
	}
	if len(body.FileNames) > models.MaxFilesPerBatch {
		return nil, nil, apperrors.Newf(apperrors.KindValidation,
			"Cannot process more than %d files in a single request.", models.MaxFilesPerBatch)
	}

	seen := make(map[string]struct{}, len(body.FileNames))
	for _, name := range body.FileNames {
		if err := validateFileName(name); err != nil {
			return nil, nil, err
		}
		if _, dup := seen[name]; dup {
			return nil, nil, apperrors.Newf(apperrors.KindValidation, "Duplicate file name %s in request.", name)
		}
		seen[name] = struct{}{}
	}

	return scope, body.FileNames, nil
}

// scopeFromParts rejects identifiers that would distort the slash-delimited
// file key layout.
func scopeFromParts(useCaseID, userID, conversationID, messageID string) (*models.FileAccessScope, error) {
	if err := validateIdentifier("useCaseId", useCaseID); err != nil {
		return nil, err
	}
	if err := validateIdentifier("conversationId", conversationID); err != nil {
		return nil, err
	}
	if err := validateIdentifier("messageId", messageID); err != nil {
		return nil, err
	}

	return &models.FileAccessScope{
		UseCaseID:      useCaseID,
		UserID:         userID,
		ConversationID: conversationID,
		MessageID:      messageID,
	}, nil
}

func validateIdentifier(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.Newf(apperrors.KindValidation, "%s is required.", field)
	}
	if strings.ContainsAny(value, "/\\") {
		return apperrors.Newf(apperrors.KindValidation, "%s is not valid.", field)
	}
	return nil
}

func validateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.New(apperrors.KindValidation, "File name cannot be empty.")
	}
	if len(name) > models.MaxFileNameLength {
		return apperrors.Newf(apperrors.KindValidation,
			"File name exceeds the maximum length of %d characters.", models.MaxFileNameLength)
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return apperrors.Newf(apperrors.KindValidation, "File name %s is not valid.", name)
	}
	return nil
}
