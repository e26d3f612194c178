package errors

import crdb "github.com/cockroachdb/errors"

// Kind tags an error with the broker's error taxonomy (spec §7) so that
// callers can classify it with KindOf without string-matching messages.
// The MCP dispatcher records the Kind in the audit log's ErrorCode for
// rate-limit and auth rejections and for errors a handler returns; tool
// error results sent to the caller carry only the error message text, not
// a JSON-RPC error code or a `data` payload with the Kind.
type Kind string

const (
	KindConnection      Kind = "ConnectionError"
	KindTimeout         Kind = "TimeoutError"
	KindCircuitOpen     Kind = "CircuitOpenError"
	KindAuth            Kind = "AuthError"
	KindRateLimit       Kind = "RateLimitError"
	KindValidation      Kind = "ValidationError"
	KindUnknownMethod   Kind = "UnknownMethodError"
	KindUnknownComponent Kind = "UnknownComponentError"
	KindUnknownControl  Kind = "UnknownControlError"
	KindUnknownGroup    Kind = "UnknownGroupError"
	KindPersistence     Kind = "PersistenceError"
	KindState           Kind = "StateError"
	KindInternal        Kind = "InternalError"
)

// kindDomainPrefix namespaces the cockroachdb "domain" mechanism so a Kind can ride
// along on the error without a bespoke wrapper type.
const kindDomainPrefix = "broker-kind:"

// WithKind tags err with a Kind. Retrieve it later with KindOf.
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	return crdb.WithDomain(err, crdb.Domain(kindDomainPrefix+string(kind)))
}

// KindOf returns the Kind attached to err via WithKind, or KindInternal if
// none was attached — every user-visible error must resolve to some kind,
// and InternalError is the catch-all per spec §7.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	domain := crdb.GetDomain(err)
	s := string(domain)
	if len(s) > len(kindDomainPrefix) && s[:len(kindDomainPrefix)] == kindDomainPrefix {
		return Kind(s[len(kindDomainPrefix):])
	}
	return KindInternal
}

// NewKind constructs a Kinded error in one call.
func NewKind(kind Kind, msg string) error {
	return WithKind(New(msg), kind)
}

// Newfk formats a message and attaches a Kind in one call.
func Newfk(kind Kind, format string, args ...interface{}) error {
	return WithKind(Newf(format, args...), kind)
}

// WrapKind wraps err with msg and attaches a Kind in one call.
func WrapKind(err error, kind Kind, msg string) error {
	return WithKind(Wrap(err, msg), kind)
}
