package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	apperrors "github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/errors"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/retries"
)

// UseCaseConfigStore resolves whether multimodal is enabled for a deployed
// use case. The answer lives behind two dependent reads: the use-case
// registry names the config record, the config record carries the flag.
type UseCaseConfigStore interface {
	GetMultimodalEnabled(ctx context.Context, useCaseID string) (bool, error)
}

type UseCaseConfigStoreImpl struct {
	client        DynamoDBAPI
	useCasesTable string
	configTable   string
	logger        *zap.SugaredLogger
}

func NewUseCaseConfigStoreImpl(client DynamoDBAPI, useCasesTable, configTable string, logger *zap.SugaredLogger) *UseCaseConfigStoreImpl {
	return &UseCaseConfigStoreImpl{
		client:        client,
		useCasesTable: useCasesTable,
		configTable:   configTable,
		logger:        logger,
	}
}

type useCaseRegistryRow struct {
	UseCaseId              string `dynamodbav:"UseCaseId"`
	UseCaseConfigRecordKey string `dynamodbav:"UseCaseConfigRecordKey"`
}

type useCaseConfigRecord struct {
	Key    string        `dynamodbav:"key"`
	Config useCaseConfig `dynamodbav:"config"`
}

type useCaseConfig struct {
	LlmParams llmParams `dynamodbav:"LlmParams"`
}

type llmParams struct {
	MultimodalParams multimodalParams `dynamodbav:"MultimodalParams"`
}

type multimodalParams struct {
	MultimodalEnabled bool `dynamodbav:"MultimodalEnabled"`
}

func (s *UseCaseConfigStoreImpl) GetMultimodalEnabled(ctx context.Context, useCaseID string) (bool, error) {
	configKey, err := s.getConfigRecordKey(ctx, useCaseID)
	if err != nil {
		return false, err
	}

	return s.getMultimodalFlag(ctx, configKey)
}

func (s *UseCaseConfigStoreImpl) getConfigRecordKey(ctx context.Context, useCaseID string) (string, error) {
	var item map[string]types.AttributeValue

	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
				TableName: aws.String(s.useCasesTable),
				Key: map[string]types.AttributeValue{
					"UseCaseId": &types.AttributeValueMemberS{Value: useCaseID},
				},
				ProjectionExpression: aws.String("UseCaseId, UseCaseConfigRecordKey"),
			})
			if err != nil {
				return err
			}

			item = out.Item
			return nil
		},
		retries.IsRetriableDbError,
	)
	if err != nil {
		return "", err
	}

	if item == nil {
		return "", apperrors.Newf(apperrors.KindConfiguration, "use case %s is not registered", useCaseID)
	}

	var row useCaseRegistryRow
	if err := attributevalue.UnmarshalMap(item, &row); err != nil {
		return "", err
	}
	if row.UseCaseConfigRecordKey == "" {
		return "", apperrors.Newf(apperrors.KindConfiguration, "use case %s has no config record key", useCaseID)
	}

	return row.UseCaseConfigRecordKey, nil
}

// getMultimodalFlag reads the config record. An absent nested
// MultimodalParams block resolves to an explicit false, not an error; only
// a missing record is a configuration fault.
func (s *UseCaseConfigStoreImpl) getMultimodalFlag(ctx context.Context, configKey string) (bool, error) {
	var item map[string]types.AttributeValue

	err := retries.Retry(
		ctx,
		retries.DefaultAttempts,
		retries.DefaultBaseDelay,
		func() error {
			out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
				TableName: aws.String(s.configTable),
				Key: map[string]types.AttributeValue{
					"key": &types.AttributeValueMemberS{Value: configKey},
				},
			})
			if err != nil {
				return err
			}

			item = out.Item
			return nil
		},
		retries.IsRetriableDbError,
	)
	if err != nil {
		return false, err
	}

	if item == nil {
		return false, apperrors.Newf(apperrors.KindConfiguration, "config record %s does not exist", configKey)
	}

	var record useCaseConfigRecord
	if err := attributevalue.UnmarshalMap(item, &record); err != nil {
		return false, err
	}

	return record.Config.LlmParams.MultimodalParams.MultimodalEnabled, nil
}
