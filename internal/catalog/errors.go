// Copyright (c) 2025, the danmusync contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalog

import (
	"errors"
	"fmt"
)

// TransportError covers network failures, non-2xx responses and JSON decode
// failures against the remote catalog. It is the primary retryable failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NotFoundError signals the absence of a title, source or episode match.
// Non-fatal per attempt; retrying will not conjure a missing catalog entry.
type NotFoundError struct {
	Kind  string
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("catalog: no %s found for %q", e.Kind, e.Query)
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
