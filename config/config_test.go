package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("AWS_REGION", "eu-central-1")
	t.Setenv("MULTIMODAL_METADATA_TABLE_NAME", "multimodal-metadata")
	t.Setenv("USE_CASES_TABLE_NAME", "use-cases")
	t.Setenv("USE_CASE_CONFIG_TABLE_NAME", "use-case-config")
	t.Setenv("MULTIMODAL_DATA_BUCKET", "multimodal-data")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("MULTIMODAL_ENABLED", "")
	t.Setenv("TRACING_ENABLED", "")

	cfg := LoadConfig()

	require.Equal(t, "eu-central-1", cfg.AWSConfig.Region)
	require.Equal(t, ":8080", cfg.ServiceConfig.HTTPAddr)
	require.Empty(t, cfg.ServiceConfig.MultimodalOverride)
	require.False(t, cfg.ServiceConfig.Tracing)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigNormalizesOverride(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MULTIMODAL_ENABLED", "  TRUE ")

	cfg := LoadConfig()
	require.Equal(t, "true", cfg.ServiceConfig.MultimodalOverride)
}

func TestValidateListsEveryMissingVariable(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MULTIMODAL_METADATA_TABLE_NAME", "")
	t.Setenv("MULTIMODAL_DATA_BUCKET", "")

	cfg := LoadConfig()
	err := cfg.Validate()

	require.Error(t, err)
	require.Contains(t, err.Error(), "MULTIMODAL_METADATA_TABLE_NAME")
	require.Contains(t, err.Error(), "MULTIMODAL_DATA_BUCKET")
	require.NotContains(t, err.Error(), "USE_CASES_TABLE_NAME")
}
