package ldap

import (
	"errors"
	"fmt"
	"strings"

	ldaplib "github.com/go-ldap/ldap/v3"
)

// Sentinel search outcomes callers branch on with errors.Is.
var (
	// ErrNotFound reports that a search matched no entry.
	ErrNotFound = errors.New("no matching directory entry")

	// ErrMultipleMatches reports that a search matched more than one
	// entry. Ambiguous matches are never resolved by picking one.
	ErrMultipleMatches = errors.New("multiple matching directory entries")

	// ErrUnexpectedEntryType reports that the matched entry is not a user
	// entry under the endpoint's dialect.
	ErrUnexpectedEntryType = errors.New("matched entry is not a user entry")
)

// ErrorCategory classifies directory operation failures.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryConflict       ErrorCategory = "conflict"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// DirectoryError carries structured context for a failed directory
// operation.
type DirectoryError struct {
	Operation string        // the operation that failed
	Category  ErrorCategory // error category
	Code      uint16        // LDAP result code, 0 when unavailable
	Message   string        // human-readable message
	DN        string        // DN involved, if applicable
	Retryable bool          // whether a retry may succeed
	Cause     error         // underlying error
}

func (e *DirectoryError) Error() string {
	var parts []string

	if e.Code > 0 {
		parts = append(parts, fmt.Sprintf("directory %s failed (code %d)", e.Operation, e.Code))
	} else {
		parts = append(parts, fmt.Sprintf("directory %s failed", e.Operation))
	}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}

	if e.DN != "" {
		parts = append(parts, fmt.Sprintf("DN: %s", e.DN))
	}

	return strings.Join(parts, " - ")
}

func (e *DirectoryError) Unwrap() error {
	return e.Cause
}

func (e *DirectoryError) IsRetryable() bool {
	return e.Retryable
}

// NewDirectoryError wraps an error from the wire with operation context.
// Already-wrapped errors pass through with the operation filled in.
func NewDirectoryError(operation string, err error) *DirectoryError {
	if err == nil {
		return nil
	}

	var wrapped *DirectoryError
	if errors.As(err, &wrapped) {
		if wrapped.Operation == "" {
			wrapped.Operation = operation
		}
		return wrapped
	}

	dirErr := &DirectoryError{
		Operation: operation,
		Cause:     err,
	}

	var ldapErr *ldaplib.Error
	if errors.As(err, &ldapErr) {
		dirErr.Code = ldapErr.ResultCode
		dirErr.Category = categorizeCode(ldapErr.ResultCode)
		dirErr.Retryable = isCodeRetryable(ldapErr.ResultCode)
		dirErr.Message = ldaplib.LDAPResultCodeMap[ldapErr.ResultCode]
		if dirErr.Message == "" {
			dirErr.Message = ldapErr.Err.Error()
		}
	} else {
		dirErr.Category = categorizeGenericError(err)
		dirErr.Retryable = isGenericErrorRetryable(err)
		dirErr.Message = err.Error()
	}

	return dirErr
}

// categorizeCode maps an LDAP result code to an error category.
func categorizeCode(code uint16) ErrorCategory {
	switch code {
	case ldaplib.LDAPResultInvalidCredentials,
		ldaplib.LDAPResultInappropriateAuthentication,
		ldaplib.LDAPResultStrongAuthRequired:
		return ErrorCategoryAuthentication

	case ldaplib.LDAPResultInsufficientAccessRights,
		ldaplib.LDAPResultUnwillingToPerform:
		return ErrorCategoryPermission

	case ldaplib.LDAPResultNoSuchObject,
		ldaplib.LDAPResultNoSuchAttribute,
		ldaplib.LDAPResultUndefinedAttributeType:
		return ErrorCategoryNotFound

	case ldaplib.LDAPResultEntryAlreadyExists,
		ldaplib.LDAPResultAttributeOrValueExists,
		ldaplib.LDAPResultObjectClassViolation,
		ldaplib.LDAPResultNotAllowedOnNonLeaf:
		return ErrorCategoryConflict

	case ldaplib.LDAPResultInvalidAttributeSyntax,
		ldaplib.LDAPResultConstraintViolation,
		ldaplib.LDAPResultInvalidDNSyntax,
		ldaplib.LDAPResultNamingViolation:
		return ErrorCategoryValidation

	case ldaplib.LDAPResultServerDown,
		ldaplib.LDAPResultUnavailable,
		ldaplib.LDAPResultBusy,
		ldaplib.LDAPResultTimeLimitExceeded,
		ldaplib.LDAPResultAdminLimitExceeded:
		return ErrorCategoryServer

	case ldaplib.LDAPResultConnectError,
		ldaplib.LDAPResultProtocolError:
		return ErrorCategoryConnection

	default:
		return ErrorCategoryUnknown
	}
}

// categorizeGenericError categorizes non-LDAP errors by message.
func categorizeGenericError(err error) ErrorCategory {
	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset") {
		return ErrorCategoryConnection
	}

	if strings.Contains(errStr, "authentication") ||
		strings.Contains(errStr, "credentials") ||
		strings.Contains(errStr, "password") {
		return ErrorCategoryAuthentication
	}

	if strings.Contains(errStr, "permission") ||
		strings.Contains(errStr, "access") ||
		strings.Contains(errStr, "denied") {
		return ErrorCategoryPermission
	}

	return ErrorCategoryUnknown
}

// isCodeRetryable reports whether an LDAP result code indicates a
// transient condition.
func isCodeRetryable(code uint16) bool {
	switch code {
	case ldaplib.LDAPResultBusy,
		ldaplib.LDAPResultUnavailable,
		ldaplib.LDAPResultServerDown,
		ldaplib.LDAPResultTimeLimitExceeded,
		ldaplib.LDAPResultConnectError:
		return true
	default:
		return false
	}
}

// isGenericErrorRetryable reports whether a non-LDAP error is retryable.
func isGenericErrorRetryable(err error) bool {
	errStr := strings.ToLower(err.Error())

	retryablePatterns := []string{
		"connection",
		"timeout",
		"network",
		"broken pipe",
		"connection reset",
		"temporary failure",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsRetryable reports whether a retry of the failed operation may
// succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var dirErr *DirectoryError
	if errors.As(err, &dirErr) {
		return dirErr.IsRetryable()
	}

	var ldapErr *ldaplib.Error
	if errors.As(err, &ldapErr) {
		return isCodeRetryable(ldapErr.ResultCode)
	}

	return isGenericErrorRetryable(err)
}

// Category returns the category of an error.
func Category(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var dirErr *DirectoryError
	if errors.As(err, &dirErr) {
		return dirErr.Category
	}

	var ldapErr *ldaplib.Error
	if errors.As(err, &ldapErr) {
		return categorizeCode(ldapErr.ResultCode)
	}

	return categorizeGenericError(err)
}

// IsNotFound reports a "no such entry" condition, either the search
// sentinel or the server result code.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || Category(err) == ErrorCategoryNotFound
}

// IsAlreadyExists reports that the server refused a create because the
// entry exists.
func IsAlreadyExists(err error) bool {
	var dirErr *DirectoryError
	if errors.As(err, &dirErr) {
		return dirErr.Code == ldaplib.LDAPResultEntryAlreadyExists
	}
	return ldaplib.IsErrorWithCode(err, ldaplib.LDAPResultEntryAlreadyExists)
}

// IsSizeLimitExceeded reports that the server cut a search short because
// more entries matched than the requested size limit.
func IsSizeLimitExceeded(err error) bool {
	var dirErr *DirectoryError
	if errors.As(err, &dirErr) {
		return dirErr.Code == ldaplib.LDAPResultSizeLimitExceeded
	}
	return ldaplib.IsErrorWithCode(err, ldaplib.LDAPResultSizeLimitExceeded)
}

// IsInvalidCredentials reports a failed bind due to bad credentials.
func IsInvalidCredentials(err error) bool {
	var dirErr *DirectoryError
	if errors.As(err, &dirErr) {
		return dirErr.Code == ldaplib.LDAPResultInvalidCredentials
	}
	return ldaplib.IsErrorWithCode(err, ldaplib.LDAPResultInvalidCredentials)
}

// IsConnectionError reports a transport-level failure.
func IsConnectionError(err error) bool {
	cat := Category(err)
	return cat == ErrorCategoryConnection || cat == ErrorCategoryServer
}
