package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/caching"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/handlers"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/queues"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/services"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/store"
)

type Stores struct {
	metadata store.FileMetadataStore
	objects  store.ObjectStorage
	useCases store.UseCaseConfigStore
}

type Services struct {
	Files   services.FileService
	Uploads *queues.UploadsNotifyReceiverImpl

	Stores  *Stores
	Handler *handlers.HTTPHandler

	logger *zap.SugaredLogger
}

type Shutdowner interface {
	Shutdown(context.Context) error
}

func BuildServices(app *App) *Services {

	objectStore := store.NewS3ObjectStorageImpl(
		app.S3, app.S3Presigner, app.Config.StorageConfig.BucketName, app.Logger)
	metadataStore := store.NewFileMetadataStoreImpl(
		app.DynamoDB, app.Config.DynamoDBConfig.MetadataTableName, objectStore, app.Logger)
	useCaseStore := store.NewUseCaseConfigStoreImpl(
		app.DynamoDB,
		app.Config.DynamoDBConfig.UseCasesTableName,
		app.Config.DynamoDBConfig.UseCaseConfigTableName,
		app.Logger,
	)

	capabilityCache := caching.NewCapabilityCacheImpl(caching.DefaultCapabilityTTL)
	validator := services.NewCapabilityValidatorImpl(
		capabilityCache, useCaseStore, app.Config.ServiceConfig.MultimodalOverride, app.Logger)

	fileSvc := services.NewFileServiceImpl(validator, metadataStore, objectStore, app.Logger)

	var uploadsReceiver *queues.UploadsNotifyReceiverImpl
	if queueUrl := app.Config.StorageConfig.UploadsNotificationsQueueURL; queueUrl != "" {
		uploadsReceiver = queues.NewUploadsNotifyReceiverImpl(
			context.Background(), app.Sqs, metadataStore, objectStore, queueUrl, app.Logger)
		uploadsReceiver.Start()
	} else {
		app.Logger.Infow("uploads notifications queue not configured, worker disabled")
	}

	handler := handlers.NewHTTPHandler(fileSvc, app.Logger, metadataStore, objectStore)

	return &Services{
		Files:   fileSvc,
		Uploads: uploadsReceiver,

		Stores: &Stores{
			metadata: metadataStore,
			objects:  objectStore,
			useCases: useCaseStore,
		},

		Handler: handler,
		logger:  app.Logger,
	}
}

func (s *Services) Shutdown(ctx context.Context) error {
	s.logger.Infow("shutting down services")

	if s.Uploads != nil {
		if err := s.Uploads.Shutdown(ctx); err != nil {
			s.logger.Errorw("uploads receiver shutdown error", "error", err)
		}
	}

	if s.Stores != nil {
		if err := s.Stores.Shutdown(ctx, s.logger); err != nil {
			s.logger.Errorw("stores shutdown error", "error", err)
		}
	}

	s.logger.Infow("services shutdown complete")
	return nil
}

func (s *Stores) Shutdown(ctx context.Context, logger *zap.SugaredLogger) error {
	shutdownIfPossible := func(name string, v any) {
		if sh, ok := v.(Shutdowner); ok {
			if err := sh.Shutdown(ctx); err != nil {
				logger.Errorw("store shutdown error", "store", name, "error", err)
			}
		}
	}

	shutdownIfPossible("metadata", s.metadata)
	shutdownIfPossible("objects", s.objects)
	shutdownIfPossible("useCases", s.useCases)

	return nil
}
