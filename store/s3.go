package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	apperrors "github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/errors"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/health"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/models"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/retries"
)

// ProvenanceSourceTag marks every uploaded object as originating from this
// API so bucket notifications can ignore foreign writes.
const ProvenanceSourceTag = "gaab-files-api"

// S3API is the slice of the S3 client the object storage calls.
type S3API interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

type S3PresignAPI interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPostObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignPostOptions)) (*s3.PresignedPostRequest, error)
}

// UploadGrantParams carries everything a presigned POST policy binds: the
// object location plus the metadata fields the uploading client must echo.
type UploadGrantParams struct {
	Scope       models.FileAccessScope
	FileName    string
	FileUuid    string
	Extension   string
	ContentType string
	CreatedAt   time.Time
}

type ObjectInfo struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

type ObjectStorage interface {
	CreateFileUploadPresignedPost(ctx context.Context, params UploadGrantParams) (*models.UploadGrant, error)
	GenerateDownloadUrl(ctx context.Context, objectKey, fileName, contentType string) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
	HeadObjectInfo(ctx context.Context, objectKey string) (*ObjectInfo, error)

	health.ReadinessCheck
}

type S3ObjectStorageImpl struct {
	client     S3API
	presigner  S3PresignAPI
	bucketName string

	logger *zap.SugaredLogger
}

func NewS3ObjectStorageImpl(client S3API, presigner S3PresignAPI, bucketName string, logger *zap.SugaredLogger) *S3ObjectStorageImpl {
	return &S3ObjectStorageImpl{
		client:     client,
		presigner:  presigner,
		bucketName: bucketName,
		logger:     logger,
	}
}

func (s *S3ObjectStorageImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucketName),
	})

	return err
}

func (s *S3ObjectStorageImpl) Name() string {
	return "ObjectStorage[" + s.bucketName + "]"
}

// CreateFileUploadPresignedPost issues a POST grant locked to one object
// key, a size range for the file's category, its exact content type, and
// the caller's identity metadata. The policy conditions and the returned
// form fields must agree, so the metadata is written into both.
func (s *S3ObjectStorageImpl) CreateFileUploadPresignedPost(ctx context.Context, params UploadGrantParams) (*models.UploadGrant, error) {
	objectKey := models.BuildObjectKey(params.Scope.FileKey(), params.FileUuid, params.Extension)

	metadata := map[string]string{
		"x-amz-meta-userid":         params.Scope.UserID,
		"x-amz-meta-filename":       params.FileName,
		"x-amz-meta-fileextension":  params.Extension,
		"x-amz-meta-usecaseid":      params.Scope.UseCaseID,
		"x-amz-meta-conversationid": params.Scope.ConversationID,
		"x-amz-meta-messageid":      params.Scope.MessageID,
		"x-amz-meta-source":         ProvenanceSourceTag,
	}

	conditions := []interface{}{
		[]interface{}{"content-length-range", int64(1), models.MaxSizeForExtension(params.Extension)},
		[]interface{}{"eq", "$Content-Type", params.ContentType},
	}
	for field, value := range metadata {
		conditions = append(conditions, []interface{}{"eq", "$" + field, value})
	}

	presigned, err := s.presigner.PresignPostObject(ctx,
		&s3.PutObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(objectKey),
		},
		func(opts *s3.PresignPostOptions) {
			opts.Expires = models.UploadGrantTTL
			opts.Conditions = conditions
		},
	)
	if err != nil {
		s.logger.Errorw("failed to presign upload post", "objectKey", objectKey, "error", err)
		return nil, apperrors.Wrap(apperrors.KindUnexpected, apperrors.MsgUnexpectedFailure, err)
	}

	fields := make(map[string]string, len(presigned.Values)+len(metadata)+1)
	for key, value := range presigned.Values {
		fields[key] = value
	}
	fields["Content-Type"] = params.ContentType
	for field, value := range metadata {
		fields[field] = value
	}

	return &models.UploadGrant{
		URL:        presigned.URL,
		FormFields: fields,
		ExpiresIn:  int64(models.UploadGrantTTL.Seconds()),
		CreatedAt:  params.CreatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// GenerateDownloadUrl issues a GET grant that forces an attachment
// disposition under the original file name and the stored content type.
func (s *S3ObjectStorageImpl) GenerateDownloadUrl(ctx context.Context, objectKey, fileName, contentType string) (string, error) {
	var url string

	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			presigned, err := s.presigner.PresignGetObject(ctx,
				&s3.GetObjectInput{
					Bucket:                     aws.String(s.bucketName),
					Key:                        aws.String(objectKey),
					ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", fileName)),
					ResponseContentType:        aws.String(contentType),
				},
				s3.WithPresignExpires(models.DownloadGrantTTL),
			)
			if err != nil {
				return err
			}

			url = presigned.URL
			return nil
		},
		retries.IsRetriableS3Error,
	)
	if err != nil {
		s.logger.Errorw("failed to presign download", "objectKey", objectKey, "error", err)
		return "", apperrors.Wrap(apperrors.KindUnexpected, apperrors.MsgUnexpectedFailure, err)
	}

	return url, nil
}

// DeleteObject removes the object; a key that is already gone counts as
// success so dirty-state deletions stay retry-safe.
func (s *S3ObjectStorageImpl) DeleteObject(ctx context.Context, objectKey string) error {
	if objectKey == "" {
		return fmt.Errorf("objectKey cannot be empty")
	}

	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucketName),
				Key:    aws.String(objectKey),
			})
			return err
		},
		retries.IsRetriableS3Error,
	)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "NoSuchKey", "NotFound":
				return nil
			}
		}
		return err
	}

	return nil
}

// HeadObjectInfo probes an object; a missing key yields (nil, nil).
func (s *S3ObjectStorageImpl) HeadObjectInfo(ctx context.Context, objectKey string) (*ObjectInfo, error) {
	if objectKey == "" {
		return nil, fmt.Errorf("objectKey cannot be empty")
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
			return nil, nil
		}
		return nil, err
	}

	info := &ObjectInfo{Metadata: out.Metadata}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}

	return info, nil
}
