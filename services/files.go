package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	apperrors "github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/errors"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/metrics"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/models"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/store"
)

const (
	opUpload   = "upload"
	opDelete   = "delete"
	opDownload = "download"
)

// FileService is the command surface for the multimodal file lifecycle.
// Every operation validates the use case's capability before touching
// storage and reports per-file outcomes instead of short-circuiting.
type FileService interface {
	Upload(ctx context.Context, req models.FileUploadRequest) (*models.FileUploadResponse, error)
	Delete(ctx context.Context, req models.FileDeleteRequest) (*models.FileDeleteResponse, error)
	Download(ctx context.Context, req models.FileGetRequest) (*models.FileDownloadResponse, error)
}

type FileServiceImpl struct {
	validator CapabilityValidator
	metadata  store.FileMetadataStore
	objects   store.ObjectStorage
	logger    *zap.SugaredLogger

	now     func() time.Time
	newUuid func() string
}

func NewFileServiceImpl(
	validator CapabilityValidator,
	metadata store.FileMetadataStore,
	objects store.ObjectStorage,
	logger *zap.SugaredLogger,
) *FileServiceImpl {
	return &FileServiceImpl{
		validator: validator,
		metadata:  metadata,
		objects:   objects,
		logger:    logger,
		now:       time.Now,
		newUuid:   uuid.NewString,
	}
}

// instrument is the shared wrapper around every command: one span, one
// duration sample, one outcome counter, and panics downgraded to the
// generic failure error.
func (svc *FileServiceImpl) instrument(ctx context.Context, operation string, fn func(context.Context) error) (err error) {
	ctx, span := otel.Tracer("files").Start(ctx, "files."+operation)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			svc.logger.Errorw("file operation panicked", "operation", operation, "panic", r)
			err = apperrors.New(apperrors.KindUnexpected, apperrors.MsgUnexpectedFailure)
		}

		metrics.FileOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

		outcome := metrics.OutcomeSuccess
		if err != nil {
			outcome = metrics.OutcomeFailure
			span.RecordError(err)
		}
		metrics.FileOperationsTotal.WithLabelValues(operation, outcome).Inc()

		span.End()
	}()

	return fn(ctx)
}

func (svc *FileServiceImpl) Upload(ctx context.Context, req models.FileUploadRequest) (*models.FileUploadResponse, error) {
	var resp *models.FileUploadResponse

	err := svc.instrument(ctx, opUpload, func(ctx context.Context) error {
		if err := svc.validator.Validate(ctx, req.Scope.UseCaseID); err != nil {
			return err
		}

		uploads := make([]models.FileUploadResult, len(req.FileNames))

		var wg sync.WaitGroup
		for i, name := range req.FileNames {
			wg.Add(1)
			go func(idx int, fileName string) {
				defer wg.Done()
				uploads[idx] = svc.prepareUpload(ctx, req.Scope, fileName)
			}(i, name)
		}
		wg.Wait()

		for _, entry := range uploads {
			outcome := metrics.OutcomeSuccess
			if entry.Error != nil {
				outcome = metrics.OutcomeFailure
			}
			metrics.BatchEntriesTotal.WithLabelValues(opUpload, outcome).Inc()
		}

		resp = &models.FileUploadResponse{Uploads: uploads}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// prepareUpload runs the two-step pipeline for one file: issue the upload
// grant, then claim the name with a pending metadata record. Failures stay
// inside this entry's result.
func (svc *FileServiceImpl) prepareUpload(ctx context.Context, scope models.FileAccessScope, fileName string) (result models.FileUploadResult) {
	defer func() {
		if r := recover(); r != nil {
			svc.logger.Errorw("upload preparation panicked", "fileKey", scope.FileKey(), "fileName", fileName, "panic", r)
			result = failedUpload(fileName, apperrors.MsgUnexpectedFailure)
		}
	}()

	extension := models.FileExtension(fileName)
	contentType, ok := models.ContentTypeForExtension(extension)
	if !ok {
		return failedUpload(fileName, "File extension is not supported.")
	}

	fileUuid := svc.newUuid()
	now := svc.now().UTC()

	grant, err := svc.objects.CreateFileUploadPresignedPost(ctx, store.UploadGrantParams{
		Scope:       scope,
		FileName:    fileName,
		FileUuid:    fileUuid,
		Extension:   extension,
		ContentType: contentType,
		CreatedAt:   now,
	})
	if err != nil {
		return failedUpload(fileName, userFacingMessage(err))
	}

	record := models.FileRecord{
		FileKey:         scope.FileKey(),
		FileName:        fileName,
		FileUuid:        fileUuid,
		FileExtension:   extension,
		FileContentType: contentType,
		FileStatus:      models.FileStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
		TTL:             now.Add(models.ActiveRecordTTL).Unix(),
	}
	if err := svc.metadata.CreateFileMetadata(ctx, record); err != nil {
		var ae *apperrors.AppError
		if !errors.As(err, &ae) {
			svc.logger.Errorw("failed to create file metadata", "fileKey", record.FileKey, "fileName", fileName, "error", err)
		}
		return failedUpload(fileName, userFacingMessage(err))
	}

	return models.FileUploadResult{
		UploadURL:  grant.URL,
		FormFields: grant.FormFields,
		FileName:   fileName,
		ExpiresIn:  grant.ExpiresIn,
		CreatedAt:  grant.CreatedAt,
	}
}

func (svc *FileServiceImpl) Delete(ctx context.Context, req models.FileDeleteRequest) (*models.FileDeleteResponse, error) {
	var resp *models.FileDeleteResponse

	err := svc.instrument(ctx, opDelete, func(ctx context.Context) error {
		if err := svc.validator.Validate(ctx, req.Scope.UseCaseID); err != nil {
			return err
		}

		deletions := svc.metadata.DeleteMultipleFiles(ctx, req.Scope.FileKey(), req.FileNames)

		failures := 0
		for _, deletion := range deletions {
			outcome := metrics.OutcomeSuccess
			if !deletion.Success {
				outcome = metrics.OutcomeFailure
				failures++
			}
			metrics.BatchEntriesTotal.WithLabelValues(opDelete, outcome).Inc()
		}

		resp = &models.FileDeleteResponse{
			Deletions:     deletions,
			AllSuccessful: failures == 0,
			FailureCount:  failures,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func (svc *FileServiceImpl) Download(ctx context.Context, req models.FileGetRequest) (*models.FileDownloadResponse, error) {
	var resp *models.FileDownloadResponse

	err := svc.instrument(ctx, opDownload, func(ctx context.Context) error {
		if err := svc.validator.Validate(ctx, req.Scope.UseCaseID); err != nil {
			return err
		}

		record, err := svc.metadata.GetExistingMetadataRecord(ctx, req.Scope.FileKey(), req.FileName)
		if err != nil {
			svc.logger.Errorw("failed to read metadata record", "fileKey", req.Scope.FileKey(), "fileName", req.FileName, "error", err)
			return apperrors.Wrap(apperrors.KindUnexpected, apperrors.MsgUnexpectedFailure, err)
		}
		if record == nil || record.FileStatus == models.FileStatusDeleted {
			return apperrors.Newf(apperrors.KindNotFound, "File %s not found.", req.FileName)
		}
		if record.FileStatus != models.FileStatusUploaded {
			return apperrors.Newf(apperrors.KindValidation, "File %s is not available for download (status: %s).", req.FileName, record.FileStatus)
		}

		url, err := svc.objects.GenerateDownloadUrl(ctx, record.ObjectKey(), record.FileName, record.FileContentType)
		if err != nil {
			return err
		}

		resp = &models.FileDownloadResponse{DownloadURL: url}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

func failedUpload(fileName, message string) models.FileUploadResult {
	return models.FileUploadResult{FileName: fileName, Error: &message}
}

// userFacingMessage keeps internal causes out of batch entries.
func userFacingMessage(err error) string {
	var ae *apperrors.AppError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	return apperrors.MsgUnexpectedFailure
}
