package collector

import (
	"fmt"
	"time"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
)

// Kind is the error taxonomy a collector raises (§4.2, §7). Only
// RateLimited and Transient are retried.
type Kind string

const (
	KindAuth       Kind = "auth"
	KindPermission Kind = "permission"
	KindRateLimited Kind = "rate_limited"
	KindTransient   Kind = "transient"
	KindFatal       Kind = "fatal"
)

// Error is the typed error a sub-method or adapter raises. It carries
// enough context for the orchestrator to categorize without knowing
// platform specifics (§9: "only the adapter knows how to map a platform
// code to a category").
type Error struct {
	Kind         Kind
	SourceMethod SourceMethod
	RetryAfter   time.Duration // meaningful only for KindRateLimited
	Scope        string        // meaningful only for KindPermission
	Err          error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.SourceMethod, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.SourceMethod, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Category maps a collector error's Kind onto the client-facing §7
// taxonomy used by the Discovery Orchestrator and DiscoveryRun.
func (e *Error) Category() models.ErrorCategory {
	switch e.Kind {
	case KindAuth:
		return models.ErrorAuthentication
	case KindPermission:
		return models.ErrorPermission
	case KindRateLimited:
		return models.ErrorRateLimit
	case KindTransient:
		return models.ErrorNetwork
	default:
		return models.ErrorInternal
	}
}

// Retryable reports whether the §7 retry policy applies to this error.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}
