package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/caching"
	apperrors "github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/errors"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/metrics"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/store"
)

// CapabilityValidator gates every file operation on whether the use case
// has multimodal enabled.
type CapabilityValidator interface {
	Validate(ctx context.Context, useCaseID string) error
}

type CapabilityValidatorImpl struct {
	cache    caching.CapabilityCache
	configs  store.UseCaseConfigStore
	override string // env-level "true"/"false", "" falls through to the tables
	logger   *zap.SugaredLogger
}

func NewCapabilityValidatorImpl(cache caching.CapabilityCache, configs store.UseCaseConfigStore, override string, logger *zap.SugaredLogger) *CapabilityValidatorImpl {
	return &CapabilityValidatorImpl{
		cache:    cache,
		configs:  configs,
		override: override,
		logger:   logger,
	}
}

func (v *CapabilityValidatorImpl) Validate(ctx context.Context, useCaseID string) error {
	if enabled, ok := v.cache.Get(useCaseID); ok {
		metrics.CapabilityCacheLookupsTotal.WithLabelValues("hit").Inc()
		if !enabled {
			metrics.MultimodalDisabledTotal.Inc()
			return apperrors.ErrMultimodalDisabled
		}
		return nil
	}
	metrics.CapabilityCacheLookupsTotal.WithLabelValues("miss").Inc()

	// a miss is the cheap moment to sweep out other stale entries
	if removed := v.cache.CleanupExpired(); removed > 0 {
		v.logger.Debugw("swept expired capability entries", "removed", removed)
	}

	enabled, err := v.resolve(ctx, useCaseID)
	if err != nil {
		v.logger.Errorw("could not resolve multimodal capability", "useCaseId", useCaseID, "error", err)
		return apperrors.ErrMultimodalConfiguration
	}

	v.cache.Set(useCaseID, enabled)

	if !enabled {
		metrics.MultimodalDisabledTotal.Inc()
		return apperrors.ErrMultimodalDisabled
	}

	return nil
}

func (v *CapabilityValidatorImpl) resolve(ctx context.Context, useCaseID string) (bool, error) {
	switch v.override {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}

	if v.configs == nil {
		return false, apperrors.New(apperrors.KindConfiguration, "no multimodal capability source is configured")
	}

	return v.configs.GetMultimodalEnabled(ctx, useCaseID)
}
