package provider

import (
	"fmt"
	"testing"
	"time"

	"github.com/rickgao/quote-gateway/internal/model"
)

func TestErrorPredicates(t *testing.T) {
	notFound := &NotFoundError{Source: model.SourceCrypto, Input: "dogecoinz"}
	rateLimited := &RateLimitedError{Source: model.SourceCrypto, RetryAfter: 30 * time.Second}
	transient := &TransientError{Source: model.SourceStock, Op: "GET /quote", Err: fmt.Errorf("timeout")}
	validation := &ValidationError{Source: model.SourceEvents, Field: "outcomePrices", Reason: "empty"}

	if !IsNotFound(notFound) || IsNotFound(transient) {
		t.Error("IsNotFound misclassified")
	}
	if IsTransient(notFound) || !IsTransient(transient) {
		t.Error("IsTransient misclassified")
	}
	if !IsValidation(validation) || IsValidation(rateLimited) {
		t.Error("IsValidation misclassified")
	}

	hint, ok := IsRateLimited(rateLimited)
	if !ok || hint != 30*time.Second {
		t.Errorf("IsRateLimited = %v, %v; want 30s, true", hint, ok)
	}
	if _, ok := IsRateLimited(notFound); ok {
		t.Error("IsRateLimited misclassified NotFound")
	}
}

func TestPredicates_SeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("fetch quote: %w", &NotFoundError{Source: model.SourceStock, Input: "ZZZZ"})
	if !IsNotFound(err) {
		t.Error("IsNotFound should unwrap")
	}

	err = fmt.Errorf("fetch quote: %w", &TransientError{Source: model.SourceStock, Op: "dial", Err: fmt.Errorf("refused")})
	if !IsTransient(err) {
		t.Error("IsTransient should unwrap")
	}
}
