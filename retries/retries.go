package retries

import (
	"context"
	"errors"
	"math"
	"net"
	"time"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	apperrors "github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/errors"
)

const (
	DefaultAttempts    = 3
	DefaultBaseDelay   = 100 * time.Millisecond
	DefaultBackoffRate = 2.0

	HealthAttempts  = 2
	HealthBaseDelay = 50 * time.Millisecond
)

// Retry runs op up to attempts times with geometric backoff starting at
// baseDelay. The last error is returned unchanged so callers can keep
// matching sentinels with errors.Is.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, op func() error, retriable func(error) bool) error {
	return RetryWithBackoff(ctx, attempts, baseDelay, DefaultBackoffRate, op, retriable)
}

func RetryWithBackoff(ctx context.Context, attempts int, baseDelay time.Duration, backoffRate float64, op func() error, retriable func(error) bool) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !retriable(err) || attempt == attempts-1 {
			return err
		}

		delay := time.Duration(float64(baseDelay) * math.Pow(backoffRate, float64(attempt)))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return err
		}
	}

	return err
}

var retriableDbCodes = map[string]struct{}{
	"ProvisionedThroughputExceededException": {},
	"ThrottlingException":                    {},
	"RequestLimitExceeded":                   {},
	"LimitExceededException":                 {},
	"TransactionConflictException":           {},
	"InternalServerError":                    {},
	"ServiceUnavailable":                     {},
}

var retriableS3Codes = map[string]struct{}{
	"SlowDown":           {},
	"RequestTimeout":     {},
	"InternalError":      {},
	"ServiceUnavailable": {},
	"OperationAborted":   {},
}

func IsRetriableDbError(err error) bool {
	return isRetriableAwsError(err, retriableDbCodes)
}

func IsRetriableS3Error(err error) bool {
	return isRetriableAwsError(err, retriableS3Codes)
}

func isRetriableAwsError(err error, codes map[string]struct{}) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var domain *apperrors.AppError
	if errors.As(err, &domain) {
		return domain.Kind() == apperrors.KindTransient
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if _, ok := codes[apiErr.ErrorCode()]; ok {
			return true
		}
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() >= 500
	}

	// Requests that never produced a response: DNS, connection resets, TLS.
	var sendErr *smithyhttp.RequestSendError
	if errors.As(err, &sendErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
