package config

import (
	"fmt"
	"os"
	"strings"
)

type AWSConfig struct {
	Region      string
	EndpointURL string // local development override, empty against real AWS
}

type DynamoDBConfig struct {
	MetadataTableName      string
	UseCasesTableName      string
	UseCaseConfigTableName string
}

type StorageConfig struct {
	BucketName                   string
	UploadsNotificationsQueueURL string // empty disables the uploads worker
}

type ServiceConfig struct {
	HTTPAddr           string
	MultimodalOverride string // "true"/"false" short-circuits the config lookup
	Tracing            bool
	TracingAddr        string
}

type Config struct {
	AWSConfig      *AWSConfig
	DynamoDBConfig *DynamoDBConfig
	StorageConfig  *StorageConfig
	ServiceConfig  *ServiceConfig
}

func LoadConfig() Config {
	return Config{
		AWSConfig: &AWSConfig{
			Region:      getEnv("AWS_REGION", "us-east-1"),
			EndpointURL: os.Getenv("AWS_ENDPOINT_URL"),
		},
		DynamoDBConfig: &DynamoDBConfig{
			MetadataTableName:      os.Getenv("MULTIMODAL_METADATA_TABLE_NAME"),
			UseCasesTableName:      os.Getenv("USE_CASES_TABLE_NAME"),
			UseCaseConfigTableName: os.Getenv("USE_CASE_CONFIG_TABLE_NAME"),
		},
		StorageConfig: &StorageConfig{
			BucketName:                   os.Getenv("MULTIMODAL_DATA_BUCKET"),
			UploadsNotificationsQueueURL: os.Getenv("UPLOADS_NOTIFICATIONS_QUEUE_URL"),
		},
		ServiceConfig: &ServiceConfig{
			HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
			MultimodalOverride: strings.ToLower(strings.TrimSpace(os.Getenv("MULTIMODAL_ENABLED"))),
			Tracing:            strings.EqualFold(os.Getenv("TRACING_ENABLED"), "true"),
			TracingAddr:        getEnv("TRACING_ADDR", "localhost:4317"),
		},
	}
}

// Validate reports every missing required variable at once.
func (c *Config) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"AWS_REGION", c.AWSConfig.Region},
		{"MULTIMODAL_METADATA_TABLE_NAME", c.DynamoDBConfig.MetadataTableName},
		{"USE_CASES_TABLE_NAME", c.DynamoDBConfig.UseCasesTableName},
		{"USE_CASE_CONFIG_TABLE_NAME", c.DynamoDBConfig.UseCaseConfigTableName},
		{"MULTIMODAL_DATA_BUCKET", c.StorageConfig.BucketName},
	}

	var missing []string
	for _, entry := range required {
		if entry.value == "" {
			missing = append(missing, entry.name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
