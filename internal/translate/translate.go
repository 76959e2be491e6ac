// Package translate turns backend-native failures and foreign-bridge results
// into domain values and the domain error taxonomy.
package translate

import (
	"encoding/json"
	"errors"
	"strings"

	"iap-bridge/internal/domain"
)

// codeKinds maps vendor and bridge codes onto error kinds.
var codeKinds = map[string]domain.ErrorKind{
	"unsupportedPlatform":  domain.KindUnsupportedPlatform,
	"requiresBundle":       domain.KindEnvironmentInvalid,
	"windowError":          domain.KindSessionUnavailable,
	"storeNotInitialized":  domain.KindSessionUnavailable,
	"internalError":        domain.KindSessionUnavailable,
	"storeQueryFailed":     domain.KindQueryFailed,
	"productNotFound":      domain.KindProductNotFound,
	"purchaseNotCompleted": domain.KindPurchaseIncomplete,
	"networkError":         domain.KindNetworkError,
	"serverError":          domain.KindServerError,
	"purchaseFailed":       domain.KindPurchaseFailed,
	"invalidArgument":      domain.KindInvocationRejected,
}

// KindForCode returns the kind registered for code, or KindUnrecognized.
func KindForCode(code string) domain.ErrorKind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return domain.KindUnrecognized
}

// FromInvoke converts a failure returned through the normal error channel of
// a vendor call. Domain errors pass through untouched; anything else becomes
// invocation-rejected carrying the vendor message.
func FromInvoke(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) && coded.Code() != "" {
		return domain.Wrap(KindForCode(coded.Code()), coded.Code(), err.Error(), err)
	}
	return domain.Wrap(domain.KindInvocationRejected, "", err.Error(), err)
}

type errorPayload struct {
	Code    *string `json:"code"`
	Message *string `json:"message"`
}

// FromForeignMessage converts a failure string reported by a foreign bridge.
// A JSON object with code/message is decoded; any other text is kept verbatim
// as the message.
func FromForeignMessage(msg string) *domain.Error {
	trimmed := strings.TrimSpace(msg)
	if strings.HasPrefix(trimmed, "{") {
		var p errorPayload
		if err := json.Unmarshal([]byte(trimmed), &p); err == nil && (p.Code != nil || p.Message != nil) {
			kind := domain.KindInvocationRejected
			if p.Code != nil {
				kind = KindForCode(*p.Code)
			}
			return &domain.Error{Kind: kind, Code: p.Code, Message: p.Message}
		}
	}
	return domain.NewError(domain.KindInvocationRejected, "", msg)
}

// Parse decodes a foreign bridge result: on failure err carries the foreign
// message, otherwise payload is the JSON encoding of T.
func Parse[T any](payload string, err error) (T, error) {
	var out T
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return out, err
		}
		return out, FromForeignMessage(err.Error())
	}
	if decodeErr := json.Unmarshal([]byte(payload), &out); decodeErr != nil {
		return out, domain.Wrap(domain.KindDeserializationError, "", decodeErr.Error(), decodeErr)
	}
	return out, nil
}
