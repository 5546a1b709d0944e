package dto

import "fmt"

// Code classifies a Status the way the original K2 status taxonomy does:
// ranges of small integers grouped by class, mirroring HTTP-style 2xx/4xx
// conventions without actually being HTTP.
type Code int

const (
	// 2xx: success.
	CodeOK Code = 200

	// 4xx: application-level errors the caller can interpret and sometimes
	// recover from locally.
	CodeKeyNotFound      Code = 404
	CodeBadParameter     Code = 400
	CodeRefreshCollection Code = 410 // Stale/unknown partition map; see IsRetryableRouting.

	// 4xx, transaction-specific.
	CodeAbortConflict      Code = 409
	CodeAbortRequestTooOld Code = 408
	CodeTransactionNotFound Code = 451
	CodeAborted            Code = 452

	// 5xx: transport/timeout errors the CPO client may retry.
	CodeTimeout       Code = 503
	CodeChannelClosed Code = 504
	CodeDialFailed    Code = 505

	// Distinct fatal class: programmer-contract violations. Never produced
	// by a server response; only constructed locally.
	CodeInvalidUseOfHandle Code = 1000
	CodeInvalidURL         Code = 1001
	CodeProgrammerError    Code = 1002

	// Local-only: deadline expired before a request could be sent or
	// completed.
	CodeDeadlineExceeded Code = 1003
)

// Status is the (code, message) pair that accompanies every asynchronous
// result in the client. A Status is sufficient on its own to discriminate
// success from every failure kind; values accompanying a non-2xx Status
// must not be consulted (spec §7).
type Status struct {
	Code    Code
	Message string
}

func (s Status) Error() string {
	if s.Message == "" {
		return fmt.Sprintf("status %d", s.Code)
	}
	return fmt.Sprintf("status %d: %s", s.Code, s.Message)
}

// Is2xxOK reports whether the status is an unqualified success.
func (s Status) Is2xxOK() bool { return s.Code == CodeOK }

// Is4xxApplication reports whether the status is an application-level
// error in the 400-499 range (as opposed to a transaction, transport, or
// fatal error).
func (s Status) Is4xxApplication() bool {
	return s.Code >= 400 && s.Code < 500 &&
		!s.IsAbortConflict() && !s.IsAbortRequestTooOld() &&
		!s.IsTransactionNotFound() && !s.IsAborted()
}

func (s Status) IsAbortConflict() bool       { return s.Code == CodeAbortConflict }
func (s Status) IsAbortRequestTooOld() bool  { return s.Code == CodeAbortRequestTooOld }
func (s Status) IsTransactionNotFound() bool { return s.Code == CodeTransactionNotFound }
func (s Status) IsAborted() bool             { return s.Code == CodeAborted }

// IsFailureTransition reports whether status is one of the handle
// state-transitioning failures (spec §4.6): a heartbeat or RPC response
// carrying any of these moves the handle from Active to Failed.
func (s Status) IsFailureTransition() bool {
	return s.IsAbortConflict() || s.IsAbortRequestTooOld() || s.IsTransactionNotFound() || s.IsAborted()
}

// IsStalePartitionMap / IsUnknownPartition / IsRetryableRouting classify the
// transient routing errors of spec §7 that the CPO client recovers from
// locally by refreshing the partition map and retrying.
func (s Status) IsStalePartitionMap() bool  { return s.Code == CodeRefreshCollection }
func (s Status) IsUnknownPartition() bool   { return s.Code == CodeRefreshCollection }
func (s Status) IsRetryableRouting() bool   { return s.Code == CodeRefreshCollection }

// IsTransportError reports a channel/dial/timeout failure the CPO client
// may retry once against the same partition.
func (s Status) IsTransportError() bool {
	return s.Code == CodeTimeout || s.Code == CodeChannelClosed || s.Code == CodeDialFailed
}

func (s Status) IsDeadlineExceeded() bool { return s.Code == CodeDeadlineExceeded }

// Ready-made statuses for common local conditions.
var (
	StatusOK                = Status{Code: CodeOK, Message: "ok"}
	StatusDeadlineExceeded  = Status{Code: CodeDeadlineExceeded, Message: "deadline exceeded"}
	StatusInvalidUseOfHandle = Status{Code: CodeInvalidUseOfHandle, Message: "invalid use of transaction handle"}
	StatusInvalidURL        = Status{Code: CodeInvalidURL, Message: "invalid endpoint url"}
)

func NewStatus(code Code, format string, args ...any) Status {
	return Status{Code: code, Message: fmt.Sprintf(format, args...)}
}
