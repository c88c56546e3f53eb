package queues

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	apperrors "github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/errors"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/metrics"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/models"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/store"
)

// SQSAPI is the slice of the SQS client the receiver uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type UploadsNotifyReceiver interface {
	pollLoop() error
}

// UploadsNotifyReceiverImpl consumes the bucket's ObjectCreated
// notifications and settles pending metadata records: objects that match
// their record move to uploaded, objects that do not are marked invalid.
type UploadsNotifyReceiverImpl struct {
	client   SQSAPI
	metadata store.FileMetadataStore
	objects  store.ObjectStorage
	queueUrl string
	logger   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewUploadsNotifyReceiverImpl(
	parent context.Context,
	client SQSAPI,
	metadata store.FileMetadataStore,
	objects store.ObjectStorage,
	queueUrl string,
	logger *zap.SugaredLogger,
) *UploadsNotifyReceiverImpl {

	ctx, cancel := context.WithCancel(parent)

	return &UploadsNotifyReceiverImpl{
		client:   client,
		metadata: metadata,
		objects:  objects,
		queueUrl: queueUrl,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (r *UploadsNotifyReceiverImpl) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = r.pollLoop()
	}()
}

func (r *UploadsNotifyReceiverImpl) pollLoop() error {
	for {
		select {
		case <-r.ctx.Done():
			return r.ctx.Err()
		default:
		}

		out, err := r.client.ReceiveMessage(r.ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(r.queueUrl),
			MaxNumberOfMessages: 1,
			WaitTimeSeconds:     20, // long poll
			VisibilityTimeout:   30,
		})
		if err != nil {
			if r.ctx.Err() != nil {
				return r.ctx.Err()
			}
			r.logger.Warnw("receiving from uploads queue failed", "queueUrl", r.queueUrl, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range out.Messages {
			r.handleMessage(r.ctx, msg)
		}
	}
}

func (rc *UploadsNotifyReceiverImpl) deleteMessage(ctx context.Context, msg types.Message) error {
	_, err := rc.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(rc.queueUrl),
		ReceiptHandle: msg.ReceiptHandle,
	})
	return err
}

func (rc *UploadsNotifyReceiverImpl) handleMessage(ctx context.Context, msg types.Message) {

	if msg.Body == nil {
		rc.deleteMessage(ctx, msg)
		return
	}

	var evt models.S3EventNotification
	if err := json.Unmarshal([]byte(*msg.Body), &evt); err != nil {
		// poison message → delete or DLQ
		metrics.UploadNotificationsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		rc.deleteMessage(ctx, msg)
		return
	}

	// Test events and lifecycle notifications carry no records and fall
	// straight through to the delete.
	retain := false
	for _, record := range evt.Records {
		if !strings.HasPrefix(record.EventName, "ObjectCreated") {
			continue
		}
		if err := rc.processObjectCreated(ctx, record); err != nil {
			retain = true
		}
	}
	if retain {
		return // leave the message for redelivery
	}

	rc.deleteMessage(ctx, msg)
}

// processObjectCreated settles one uploaded object against its metadata
// record. A nil return means the record is settled (or unsalvageable) and
// the message may be deleted; an error means a dependency failed and the
// message should be redelivered.
func (rc *UploadsNotifyReceiverImpl) processObjectCreated(ctx context.Context, record models.S3EventRecord) error {
	objectKey, err := url.QueryUnescape(record.S3.Object.Key)
	if err != nil {
		rc.logger.Warnw("dropping notification with undecodable object key", "rawKey", record.S3.Object.Key, "error", err)
		return nil
	}

	fileKey, ok := fileKeyFromObjectKey(objectKey)
	if !ok {
		rc.logger.Warnw("dropping notification for object outside the files layout", "objectKey", objectKey)
		return nil
	}

	info, err := rc.objects.HeadObjectInfo(ctx, objectKey)
	if err != nil {
		return err
	}
	if info == nil {
		// a concurrent delete won the race, nothing left to settle
		rc.logger.Infow("uploaded object vanished before validation", "objectKey", objectKey)
		return nil
	}

	fileName := info.Metadata["filename"]
	if fileName == "" {
		rc.logger.Warnw("uploaded object carries no filename metadata", "objectKey", objectKey)
		metrics.UploadNotificationsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil
	}

	rec, err := rc.metadata.GetExistingMetadataRecord(ctx, fileKey, fileName)
	if err != nil {
		return err
	}
	if rec == nil {
		rc.logger.Warnw("no metadata record for uploaded object", "fileKey", fileKey, "fileName", fileName)
		metrics.UploadNotificationsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil
	}

	if reason := validateUploadedObject(*rec, objectKey, info); reason != "" {
		rc.logger.Warnw("uploaded object failed validation",
			"fileKey", fileKey, "fileName", fileName, "objectKey", objectKey, "reason", reason)
		if err := rc.metadata.MarkFileInvalid(ctx, fileKey, fileName); err != nil {
			if apperrors.KindOf(err) == apperrors.KindConflict {
				return nil // the record moved on without us
			}
			return err
		}
		metrics.UploadNotificationsTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return nil
	}

	if err := rc.metadata.MarkFileUploaded(ctx, fileKey, fileName, info.Size); err != nil {
		if apperrors.KindOf(err) == apperrors.KindConflict {
			// duplicate delivery, the record is already settled
			return nil
		}
		return err
	}

	metrics.UploadNotificationsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return nil
}

// validateUploadedObject compares what actually landed in the bucket with
// the record the grant was issued for. An empty reason means the object is
// acceptable.
func validateUploadedObject(rec models.FileRecord, objectKey string, info *store.ObjectInfo) string {
	if objectKey != rec.ObjectKey() {
		return "object key does not match the issued grant"
	}
	if info.Size <= 0 {
		return "object is empty"
	}
	if info.Size > models.MaxSizeForExtension(rec.FileExtension) {
		return "object exceeds the size ceiling"
	}
	if info.ContentType != "" && info.ContentType != rec.FileContentType {
		return "content type does not match the record"
	}
	return ""
}

// fileKeyFromObjectKey strips the object name from
// {useCaseId}/{userId}/{conversationId}/{messageId}/{uuid}.{ext}.
func fileKeyFromObjectKey(objectKey string) (string, bool) {
	parts := strings.Split(objectKey, "/")
	if len(parts) != 5 {
		return "", false
	}
	for _, part := range parts {
		if part == "" {
			return "", false
		}
	}
	return strings.Join(parts[:4], "/"), true
}

func (r *UploadsNotifyReceiverImpl) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
