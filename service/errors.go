package service

import (
	"context"
	"errors"
	"fmt"
	neturl "net/url"
	"syscall"

	"google.golang.org/api/googleapi"
)

type errTmpIf interface{ Temporary() bool }
type errTmp struct{ error }

func (t errTmp) Temporary() bool { return true }
func (t *errTmp) Unwrap() error  { return t.error }

// MakeTemporary marks the error as transient: the caller may retry the operation
func MakeTemporary(err error) error { return &errTmp{err} }

type errFatalIf interface{ Fatal() bool }
type errFatal struct{ error }

func (t errFatal) Fatal() bool    { return true }
func (t *errFatal) Unwrap() error { return t.error }

// MakeFatal marks the error as fatal: retrying is pointless
func MakeFatal(err error) error { return &errFatal{err} }

// ErrUnauthorized is returned when the remote service rejects the credentials.
// It is always fatal.
type ErrUnauthorized struct {
	Provider string
}

func (e ErrUnauthorized) Error() string {
	return fmt.Sprintf("%s: credentials rejected", e.Provider)
}

// Fatal implements errFatalIf
func (e ErrUnauthorized) Fatal() bool { return true }

// Temporary inspects the error trace and returns whether the error is transient
func Temporary(err error) bool {
	var uerr *neturl.Error
	if errors.As(err, &uerr) {
		err = uerr.Err
	}

	// Override some default syscall temporary statuses
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.EIO, syscall.EBUSY, syscall.ECANCELED, syscall.ECONNABORTED, syscall.ECONNRESET, syscall.ENOMEM, syscall.EPIPE:
			return true
		}
	}

	// Explicitly marked errors take precedence
	var tmp errTmpIf
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	var gapiError *googleapi.Error
	if errors.As(err, &gapiError) {
		return TemporaryStatusCode(gapiError.Code)
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Fatal inspects the error and returns whether it's a fatal error
func Fatal(err error) bool {
	var ftl errFatalIf
	if errors.As(err, &ftl) {
		return ftl.Fatal()
	}
	return false
}

// TemporaryStatusCode returns whether an HTTP status code denotes a transient failure
func TemporaryStatusCode(code int) bool {
	switch code {
	case 408, 429, 500, 501, 502, 503, 504:
		return true
	}
	return false
}

// UnauthorizedStatusCode returns whether an HTTP status code denotes rejected credentials
func UnauthorizedStatusCode(code int) bool {
	return code == 401 || code == 403
}

// MergeErrors, appending texts
// if priorityToErr is true, priority to the fatal error then to the temporary
// else, priority to no error, then to the temporary and finally to the fatal error.
func MergeErrors(priorityToError bool, err error, newErrs ...error) error {
	if len(newErrs) == 0 {
		return err
	}
	newErr := newErrs[0]

	if newErr == nil {
		if !priorityToError {
			return nil
		}
	} else if err == nil {
		err = newErr
	} else if priorityToError != Temporary(err) {
		err = fmt.Errorf("%w\n %v", err, newErr)
	} else {
		err = fmt.Errorf("%w\n %v", newErr, err)
	}
	return MergeErrors(priorityToError, err, newErrs[1:]...)
}
