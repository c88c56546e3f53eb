package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	apperrors "github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/errors"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/health"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/models"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/retries"
)

// DynamoDBAPI is the slice of the DynamoDB client the stores call.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type FileMetadataStore interface {
	CreateFileMetadata(ctx context.Context, record models.FileRecord) error
	GetExistingMetadataRecord(ctx context.Context, fileKey, fileName string) (*models.FileRecord, error)
	DeleteMultipleFiles(ctx context.Context, fileKey string, fileNames []string) []models.DeletionResult
	MarkFileUploaded(ctx context.Context, fileKey, fileName string, size int64) error
	MarkFileInvalid(ctx context.Context, fileKey, fileName string) error

	health.ReadinessCheck
}

type FileMetadataStoreImpl struct {
	client    DynamoDBAPI
	tableName string
	objects   ObjectStorage
	logger    *zap.SugaredLogger

	now func() time.Time
}

func NewFileMetadataStoreImpl(client DynamoDBAPI, tableName string, objects ObjectStorage, logger *zap.SugaredLogger) *FileMetadataStoreImpl {
	return &FileMetadataStoreImpl{
		client:    client,
		tableName: tableName,
		objects:   objects,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *FileMetadataStoreImpl) IsReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	return retries.Retry(
		ctx,
		retries.HealthAttempts,
		retries.HealthBaseDelay,
		func() error {
			_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
				TableName: aws.String(s.tableName),
			})

			return err
		},
		retries.IsRetriableDbError,
	)
}

func (s *FileMetadataStoreImpl) Name() string {
	return "MetadataStore[" + s.tableName + "]"
}

// CreateFileMetadata inserts a pending record. The condition admits a fresh
// key or a record whose previous life ended in deleted/invalid; anything
// else is an active upload and the write fails as a conflict.
func (s *FileMetadataStoreImpl) CreateFileMetadata(ctx context.Context, record models.FileRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return err
	}

	err = retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
				TableName:           aws.String(s.tableName),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(fileKey) OR fileStatus IN (:deleted, :invalid)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":deleted": &types.AttributeValueMemberS{Value: string(models.FileStatusDeleted)},
					":invalid": &types.AttributeValueMemberS{Value: string(models.FileStatusInvalid)},
				},
			})
			return err
		},
		retries.IsRetriableDbError,
	)

	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return apperrors.New(apperrors.KindConflict, apperrors.MsgDuplicateUpload)
	}

	return err
}

// GetExistingMetadataRecord returns nil without error when no record exists.
func (s *FileMetadataStoreImpl) GetExistingMetadataRecord(ctx context.Context, fileKey, fileName string) (*models.FileRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       recordKey(fileKey, fileName),
	})
	if err != nil {
		return nil, err
	}

	if out.Item == nil {
		return nil, nil
	}

	var record models.FileRecord
	if err = attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return nil, err
	}

	return &record, nil
}

// DeleteMultipleFiles runs one deletion task per file name and always joins
// all of them. Results are index-aligned with fileNames.
func (s *FileMetadataStoreImpl) DeleteMultipleFiles(ctx context.Context, fileKey string, fileNames []string) []models.DeletionResult {
	results := make([]models.DeletionResult, len(fileNames))

	var wg sync.WaitGroup
	for i, name := range fileNames {
		wg.Add(1)
		go func(idx int, fileName string) {
			defer wg.Done()
			results[idx] = s.deleteSingleFile(ctx, fileKey, fileName)
		}(i, name)
	}
	wg.Wait()

	return results
}

func (s *FileMetadataStoreImpl) deleteSingleFile(ctx context.Context, fileKey, fileName string) (result models.DeletionResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("file deletion task panicked", "fileKey", fileKey, "fileName", fileName, "panic", r)
			result = models.DeletionResult{FileName: fileName, Error: apperrors.MsgUnexpectedFailure}
		}
	}()

	record, err := s.GetExistingMetadataRecord(ctx, fileKey, fileName)
	if err != nil {
		s.logger.Errorw("failed to read metadata record for deletion", "fileKey", fileKey, "fileName", fileName, "error", err)
		return models.DeletionResult{FileName: fileName, Error: apperrors.MsgUnexpectedFailure}
	}
	if record == nil || record.FileStatus == models.FileStatusDeleted {
		return models.DeletionResult{FileName: fileName, Error: apperrors.MsgFileNotFoundForDeletion}
	}

	// Storage first. A record is never marked deleted while its bytes may
	// still exist, so a crash here leaves a retryable state behind.
	if err := s.objects.DeleteObject(ctx, record.ObjectKey()); err != nil {
		s.logger.Errorw("failed to delete storage object", "fileKey", fileKey, "fileName", fileName, "objectKey", record.ObjectKey(), "error", err)
		return models.DeletionResult{FileName: fileName, Error: apperrors.MsgUnexpectedFailure}
	}

	if err := s.markFileDeleted(ctx, fileKey, fileName); err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return models.DeletionResult{FileName: fileName, Error: apperrors.MsgRecordModified}
		}

		s.logger.Errorw("failed to mark record deleted", "fileKey", fileKey, "fileName", fileName, "error", err)
		return models.DeletionResult{FileName: fileName, Error: apperrors.MsgUnexpectedFailure}
	}

	return models.DeletionResult{Success: true, FileName: fileName}
}

func (s *FileMetadataStoreImpl) markFileDeleted(ctx context.Context, fileKey, fileName string) error {
	now := s.now()

	return retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName:           aws.String(s.tableName),
				Key:                 recordKey(fileKey, fileName),
				UpdateExpression:    aws.String("SET fileStatus = :deleted, updatedAt = :now, #ttl = :ttl"),
				ConditionExpression: aws.String("fileStatus IN (:pending, :uploaded, :invalid)"),
				ExpressionAttributeNames: map[string]string{
					"#ttl": "ttl",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":deleted":  &types.AttributeValueMemberS{Value: string(models.FileStatusDeleted)},
					":pending":  &types.AttributeValueMemberS{Value: string(models.FileStatusPending)},
					":uploaded": &types.AttributeValueMemberS{Value: string(models.FileStatusUploaded)},
					":invalid":  &types.AttributeValueMemberS{Value: string(models.FileStatusInvalid)},
					":now":      timeAttr(now),
					":ttl":      epochAttr(now.Add(models.InactiveRecordTTL)),
				},
			})
			return err
		},
		retries.IsRetriableDbError,
	)
}

// MarkFileUploaded moves a pending record to uploaded once the object has
// landed, recording the observed size.
func (s *FileMetadataStoreImpl) MarkFileUploaded(ctx context.Context, fileKey, fileName string, size int64) error {
	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName:           aws.String(s.tableName),
				Key:                 recordKey(fileKey, fileName),
				UpdateExpression:    aws.String("SET fileStatus = :uploaded, fileSize = :size, updatedAt = :now"),
				ConditionExpression: aws.String("fileStatus = :pending"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":uploaded": &types.AttributeValueMemberS{Value: string(models.FileStatusUploaded)},
					":pending":  &types.AttributeValueMemberS{Value: string(models.FileStatusPending)},
					":size":     numberAttr(size),
					":now":      timeAttr(s.now()),
				},
			})
			return err
		},
		retries.IsRetriableDbError,
	)

	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return apperrors.Wrap(apperrors.KindConflict, "record is not pending", err)
	}

	return err
}

// MarkFileInvalid moves a pending record to invalid and shortens its TTL so
// the rejected upload ages out quickly.
func (s *FileMetadataStoreImpl) MarkFileInvalid(ctx context.Context, fileKey, fileName string) error {
	now := s.now()

	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName:           aws.String(s.tableName),
				Key:                 recordKey(fileKey, fileName),
				UpdateExpression:    aws.String("SET fileStatus = :invalid, updatedAt = :now, #ttl = :ttl"),
				ConditionExpression: aws.String("fileStatus = :pending"),
				ExpressionAttributeNames: map[string]string{
					"#ttl": "ttl",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":invalid": &types.AttributeValueMemberS{Value: string(models.FileStatusInvalid)},
					":pending": &types.AttributeValueMemberS{Value: string(models.FileStatusPending)},
					":now":     timeAttr(now),
					":ttl":     epochAttr(now.Add(models.InactiveRecordTTL)),
				},
			})
			return err
		},
		retries.IsRetriableDbError,
	)

	var conditionFailed *types.ConditionalCheckFailedException
	if errors.As(err, &conditionFailed) {
		return apperrors.Wrap(apperrors.KindConflict, "record is not pending", err)
	}

	return err
}

func recordKey(fileKey, fileName string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"fileKey":  &types.AttributeValueMemberS{Value: fileKey},
		"fileName": &types.AttributeValueMemberS{Value: fileName},
	}
}

func timeAttr(t time.Time) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
}

func numberAttr(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func epochAttr(t time.Time) types.AttributeValue {
	return numberAttr(t.Unix())
}
