package store

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/errors"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/logging"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/models"
)

type fakeDynamoClient struct {
	mu           sync.Mutex
	getItemFn    func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error)
	putItemFn    func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error)
	updateItemFn func(*dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)

	gets, puts, updates int
}

func (f *fakeDynamoClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	f.gets++
	fn := f.getItemFn
	f.mu.Unlock()

	if fn == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return fn(in)
}

func (f *fakeDynamoClient) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	f.puts++
	fn := f.putItemFn
	f.mu.Unlock()

	if fn == nil {
		return &dynamodb.PutItemOutput{}, nil
	}
	return fn(in)
}

func (f *fakeDynamoClient) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	f.updates++
	fn := f.updateItemFn
	f.mu.Unlock()

	if fn == nil {
		return &dynamodb.UpdateItemOutput{}, nil
	}
	return fn(in)
}

func (f *fakeDynamoClient) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func (f *fakeDynamoClient) callCounts() (gets, puts, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.puts, f.updates
}

type fakeObjectStorage struct {
	mu          sync.Mutex
	deleteErrs  map[string]error
	deleteCalls []string
	panicOnKey  string
}

func (f *fakeObjectStorage) CreateFileUploadPresignedPost(context.Context, UploadGrantParams) (*models.UploadGrant, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeObjectStorage) GenerateDownloadUrl(context.Context, string, string, string) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeObjectStorage) DeleteObject(_ context.Context, objectKey string) error {
	f.mu.Lock()
	f.deleteCalls = append(f.deleteCalls, objectKey)
	f.mu.Unlock()

	if f.panicOnKey != "" && f.panicOnKey == objectKey {
		panic("storage client blew up")
	}
	return f.deleteErrs[objectKey]
}

func (f *fakeObjectStorage) HeadObjectInfo(context.Context, string) (*ObjectInfo, error) {
	return nil, nil
}

func (f *fakeObjectStorage) IsReady(context.Context) error { return nil }

func (f *fakeObjectStorage) Name() string { return "FakeObjectStorage" }

func (f *fakeObjectStorage) deletedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleteCalls...)
}

func testRecord(fileKey, fileName string, status models.FileStatus) models.FileRecord {
	return models.FileRecord{
		FileKey:         fileKey,
		FileName:        fileName,
		FileUuid:        "uuid-" + fileName,
		FileExtension:   "png",
		FileContentType: "image/png",
		FileStatus:      status,
		CreatedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		TTL:             time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC).Unix(),
	}
}

func itemFor(t *testing.T, record models.FileRecord) map[string]types.AttributeValue {
	t.Helper()
	item, err := attributevalue.MarshalMap(record)
	require.NoError(t, err)
	return item
}

func newMetadataStore(db *fakeDynamoClient, objects *fakeObjectStorage) *FileMetadataStoreImpl {
	return NewFileMetadataStoreImpl(db, "multimodal-metadata", objects, logging.NewNopLogger())
}

func TestCreateFileMetadataCarriesReuseCondition(t *testing.T) {
	db := &fakeDynamoClient{}
	var captured *dynamodb.PutItemInput
	db.putItemFn = func(in *dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		captured = in
		return &dynamodb.PutItemOutput{}, nil
	}

	store := newMetadataStore(db, &fakeObjectStorage{})
	err := store.CreateFileMetadata(context.Background(), testRecord("uc/u/c/m", "a.png", models.FileStatusPending))

	require.NoError(t, err)
	require.Equal(t, "attribute_not_exists(fileKey) OR fileStatus IN (:deleted, :invalid)", *captured.ConditionExpression)
	require.Equal(t, "multimodal-metadata", *captured.TableName)
	require.Contains(t, captured.ExpressionAttributeValues, ":deleted")
	require.Contains(t, captured.ExpressionAttributeValues, ":invalid")
}

func TestCreateFileMetadataMapsConditionFailureToConflict(t *testing.T) {
	db := &fakeDynamoClient{}
	db.putItemFn = func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		return nil, &types.ConditionalCheckFailedException{}
	}

	store := newMetadataStore(db, &fakeObjectStorage{})
	err := store.CreateFileMetadata(context.Background(), testRecord("uc/u/c/m", "a.png", models.FileStatusPending))

	require.Error(t, err)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
	require.EqualError(t, err, apperrors.MsgDuplicateUpload)

	_, puts, _ := db.callCounts()
	require.Equal(t, 1, puts, "conditional failures must not be retried")
}

func TestCreateFileMetadataRetriesThrottling(t *testing.T) {
	db := &fakeDynamoClient{}
	attempt := 0
	db.putItemFn = func(*dynamodb.PutItemInput) (*dynamodb.PutItemOutput, error) {
		attempt++
		if attempt < 3 {
			return nil, &smithy.GenericAPIError{Code: "ThrottlingException"}
		}
		return &dynamodb.PutItemOutput{}, nil
	}

	store := newMetadataStore(db, &fakeObjectStorage{})
	err := store.CreateFileMetadata(context.Background(), testRecord("uc/u/c/m", "a.png", models.FileStatusPending))

	require.NoError(t, err)
	require.Equal(t, 3, attempt)
}

func TestGetExistingMetadataRecordAbsent(t *testing.T) {
	db := &fakeDynamoClient{}
	db.getItemFn = func(*dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		return &dynamodb.GetItemOutput{}, nil
	}

	store := newMetadataStore(db, &fakeObjectStorage{})
	record, err := store.GetExistingMetadataRecord(context.Background(), "uc/u/c/m", "a.png")

	require.NoError(t, err)
	require.Nil(t, record)
}

func TestGetExistingMetadataRecordRoundTrips(t *testing.T) {
	want := testRecord("uc/u/c/m", "a.png", models.FileStatusUploaded)

	db := &fakeDynamoClient{}
	db.getItemFn = func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		require.Equal(t, "uc/u/c/m", in.Key["fileKey"].(*types.AttributeValueMemberS).Value)
		require.Equal(t, "a.png", in.Key["fileName"].(*types.AttributeValueMemberS).Value)
		return &dynamodb.GetItemOutput{Item: itemFor(t, want)}, nil
	}

	store := newMetadataStore(db, &fakeObjectStorage{})
	record, err := store.GetExistingMetadataRecord(context.Background(), "uc/u/c/m", "a.png")

	require.NoError(t, err)
	require.Equal(t, want.FileUuid, record.FileUuid)
	require.Equal(t, models.FileStatusUploaded, record.FileStatus)
}

func deletionFixture(t *testing.T, records map[string]models.FileRecord) *fakeDynamoClient {
	t.Helper()

	db := &fakeDynamoClient{}
	db.getItemFn = func(in *dynamodb.GetItemInput) (*dynamodb.GetItemOutput, error) {
		name := in.Key["fileName"].(*types.AttributeValueMemberS).Value
		record, ok := records[name]
		if !ok {
			return &dynamodb.GetItemOutput{}, nil
		}
		return &dynamodb.GetItemOutput{Item: itemFor(t, record)}, nil
	}

	return db
}

func TestDeleteMultipleFilesPreservesOrderAndJoinsAll(t *testing.T) {
	records := map[string]models.FileRecord{
		"a.png": testRecord("uc/u/c/m", "a.png", models.FileStatusUploaded),
		"c.png": testRecord("uc/u/c/m", "c.png", models.FileStatusPending),
	}
	db := deletionFixture(t, records)
	db.updateItemFn = func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		if in.Key["fileName"].(*types.AttributeValueMemberS).Value == "c.png" {
			return nil, &types.ConditionalCheckFailedException{}
		}
		return &dynamodb.UpdateItemOutput{}, nil
	}

	store := newMetadataStore(db, &fakeObjectStorage{})
	results := store.DeleteMultipleFiles(context.Background(), "uc/u/c/m", []string{"a.png", "b.png", "c.png"})

	require.Len(t, results, 3)
	require.Equal(t, "a.png", results[0].FileName)
	require.True(t, results[0].Success)
	require.Empty(t, results[0].Error)

	require.Equal(t, "b.png", results[1].FileName)
	require.False(t, results[1].Success)
	require.Equal(t, apperrors.MsgFileNotFoundForDeletion, results[1].Error)

	require.Equal(t, "c.png", results[2].FileName)
	require.False(t, results[2].Success)
	require.Equal(t, apperrors.MsgRecordModified, results[2].Error)
}

func TestDeleteAlreadyDeletedRecordReportsNotFound(t *testing.T) {
	records := map[string]models.FileRecord{
		"a.png": testRecord("uc/u/c/m", "a.png", models.FileStatusDeleted),
	}
	objects := &fakeObjectStorage{}

	store := newMetadataStore(deletionFixture(t, records), objects)
	results := store.DeleteMultipleFiles(context.Background(), "uc/u/c/m", []string{"a.png"})

	require.Equal(t, apperrors.MsgFileNotFoundForDeletion, results[0].Error)
	require.Empty(t, objects.deletedKeys(), "storage must not be touched for deleted records")
}

func TestDeleteStorageFailureLeavesMetadataUntouched(t *testing.T) {
	record := testRecord("uc/u/c/m", "a.png", models.FileStatusUploaded)
	records := map[string]models.FileRecord{"a.png": record}

	objects := &fakeObjectStorage{
		deleteErrs: map[string]error{record.ObjectKey(): errors.New("storage outage")},
	}
	db := deletionFixture(t, records)

	store := newMetadataStore(db, objects)
	results := store.DeleteMultipleFiles(context.Background(), "uc/u/c/m", []string{"a.png"})

	require.False(t, results[0].Success)
	require.Equal(t, apperrors.MsgUnexpectedFailure, results[0].Error)

	_, _, updates := db.callCounts()
	require.Equal(t, 0, updates)
}

func TestDeleteRecoversDirtyStateDespiteMissingObject(t *testing.T) {
	// Record says pending but the object is already gone from a previous
	// half-finished deletion. The storage no-op lets the retry complete.
	records := map[string]models.FileRecord{
		"a.png": testRecord("uc/u/c/m", "a.png", models.FileStatusPending),
	}

	store := newMetadataStore(deletionFixture(t, records), &fakeObjectStorage{})
	results := store.DeleteMultipleFiles(context.Background(), "uc/u/c/m", []string{"a.png"})

	require.True(t, results[0].Success)
}

func TestDeleteTaskPanicBecomesFailureResult(t *testing.T) {
	record := testRecord("uc/u/c/m", "a.png", models.FileStatusUploaded)
	records := map[string]models.FileRecord{
		"a.png": record,
		"b.png": testRecord("uc/u/c/m", "b.png", models.FileStatusUploaded),
	}
	objects := &fakeObjectStorage{panicOnKey: record.ObjectKey()}

	store := newMetadataStore(deletionFixture(t, records), objects)
	results := store.DeleteMultipleFiles(context.Background(), "uc/u/c/m", []string{"a.png", "b.png"})

	require.False(t, results[0].Success)
	require.Equal(t, apperrors.MsgUnexpectedFailure, results[0].Error)
	require.True(t, results[1].Success, "sibling tasks keep running")
}

func TestMarkFileDeletedUpdateShape(t *testing.T) {
	records := map[string]models.FileRecord{
		"a.png": testRecord("uc/u/c/m", "a.png", models.FileStatusUploaded),
	}
	db := deletionFixture(t, records)

	var captured *dynamodb.UpdateItemInput
	db.updateItemFn = func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		captured = in
		return &dynamodb.UpdateItemOutput{}, nil
	}

	store := newMetadataStore(db, &fakeObjectStorage{})
	store.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	results := store.DeleteMultipleFiles(context.Background(), "uc/u/c/m", []string{"a.png"})

	require.True(t, results[0].Success)
	require.Equal(t, "fileStatus IN (:pending, :uploaded, :invalid)", *captured.ConditionExpression)
	require.Equal(t, "SET fileStatus = :deleted, updatedAt = :now, #ttl = :ttl", *captured.UpdateExpression)
	require.Equal(t, "ttl", captured.ExpressionAttributeNames["#ttl"])

	wantTTL := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC).Unix()
	require.Equal(t, strconv.FormatInt(wantTTL, 10), captured.ExpressionAttributeValues[":ttl"].(*types.AttributeValueMemberN).Value)
}

func TestMarkFileUploadedRequiresPendingStatus(t *testing.T) {
	db := &fakeDynamoClient{}
	db.updateItemFn = func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		require.Equal(t, "fileStatus = :pending", *in.ConditionExpression)
		return nil, &types.ConditionalCheckFailedException{}
	}

	store := newMetadataStore(db, &fakeObjectStorage{})
	err := store.MarkFileUploaded(context.Background(), "uc/u/c/m", "a.png", 1024)

	require.Error(t, err)
	require.Equal(t, apperrors.KindConflict, apperrors.KindOf(err))
}

func TestMarkFileInvalidShortensTTL(t *testing.T) {
	db := &fakeDynamoClient{}
	var captured *dynamodb.UpdateItemInput
	db.updateItemFn = func(in *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		captured = in
		return &dynamodb.UpdateItemOutput{}, nil
	}

	store := newMetadataStore(db, &fakeObjectStorage{})
	store.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	err := store.MarkFileInvalid(context.Background(), "uc/u/c/m", "a.png")

	require.NoError(t, err)
	require.Contains(t, *captured.UpdateExpression, "#ttl = :ttl")

	wantTTL := time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC).Unix()
	require.Equal(t, strconv.FormatInt(wantTTL, 10), captured.ExpressionAttributeValues[":ttl"].(*types.AttributeValueMemberN).Value)
}
