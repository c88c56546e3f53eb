package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/config"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/logging"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/tracing"
)

const serviceName = "files-api"

type App struct {
	Server *http.Server

	DynamoDB    *dynamodb.Client
	S3          *s3.Client
	S3Presigner *s3.PresignClient
	Sqs         *sqs.Client

	Config    config.Config
	AwsConfig aws.Config

	Services       *Services
	TracerProvider *sdktrace.TracerProvider
	Logger         *zap.SugaredLogger
}

func SetupApp() (*App, error) {
	cfg := config.LoadConfig()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	awsCfg, err := initAWS(*cfg.AWSConfig)
	if err != nil {
		return nil, err
	}

	appLogger, err := logging.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	s3Client := initS3(awsCfg, *cfg.AWSConfig)

	app := &App{
		DynamoDB:    initDynamo(awsCfg, *cfg.AWSConfig),
		S3:          s3Client,
		S3Presigner: s3.NewPresignClient(s3Client),
		Sqs:         initSqs(awsCfg, *cfg.AWSConfig),

		Config:    cfg,
		AwsConfig: awsCfg,
		Logger:    appLogger,
	}

	if app.Config.ServiceConfig.Tracing {
		tp, err := tracing.InitTracer(context.Background(), serviceName, cfg.ServiceConfig.TracingAddr)
		if err != nil {
			return nil, fmt.Errorf("start tracing: %w", err)
		}
		appLogger.Infow("tracing in progress", "addr", cfg.ServiceConfig.TracingAddr)

		app.TracerProvider = tp
	}

	app.Services = BuildServices(app)

	return app, nil
}

func (a *App) Run() error {
	router := gin.New()
	router.Use(gin.Recovery())
	if a.TracerProvider != nil {
		router.Use(otelgin.Middleware(serviceName))
	}

	a.Services.Handler.RegisterRoutes(router)

	a.Server = &http.Server{
		Addr:    a.Config.ServiceConfig.HTTPAddr,
		Handler: router,
	}

	a.Logger.Infow("http server listening", "addr", a.Config.ServiceConfig.HTTPAddr)

	if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func initAWS(cfg config.AWSConfig) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(cfg.Region),
	)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func initDynamo(awsCfg aws.Config, cfg config.AWSConfig) *dynamodb.Client {
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})
}

func initS3(awsCfg aws.Config, cfg config.AWSConfig) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true // localstack and minio have no per-bucket DNS
		}
	})
}

func initSqs(awsCfg aws.Config, cfg config.AWSConfig) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
	})
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Infow("starting graceful shutdown")

	if a.Server != nil {
		if err := a.Server.Shutdown(ctx); err != nil {
			a.Logger.Errorw("http server shutdown error", "error", err)
		}
	}

	if a.Services != nil {
		if err := a.Services.Shutdown(ctx); err != nil {
			a.Logger.Errorw("services shutdown error", "error", err)
		}
	}

	if a.TracerProvider != nil {
		if err := a.TracerProvider.Shutdown(ctx); err != nil {
			a.Logger.Errorw("tracer shutdown error", "error", err)
		}
	}

	a.Logger.Infow("graceful shutdown complete")
	return nil
}
