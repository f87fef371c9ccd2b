// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

// Package dtlserrors centralizes the connector's static error values and
// their classification (fatal vs. warning) and, for handshake failures, the
// alert that should accompany termination [rfc5246:7.2].
package dtlserrors

import (
	"fmt"

	"github.com/coredtls/dtls12/record"
)

// Error is a static, allocation-free connector error carrying its severity
// and, optionally, the alert a fatal failure should be reported with.
type Error struct {
	fatal   bool
	alert   record.AlertDescription
	hasAlert bool
	text    string
}

func (e *Error) Error() string {
	if e.fatal {
		return fmt.Sprintf("dtls12 (fatal): %s", e.text)
	}
	return fmt.Sprintf("dtls12 (warning): %s", e.text)
}

func (e *Error) Alert() (record.AlertDescription, bool) { return e.alert, e.hasAlert }

func newWarning(text string) *Error { return &Error{text: text} }

func newFatal(text string, alert record.AlertDescription) *Error {
	return &Error{fatal: true, text: text, alert: alert, hasAlert: true}
}

// IsFatal reports whether err (if it is one of our *Error values) is fatal.
// Any other error is treated as an internal runtime error, which is fatal
// per §7's "inbound runtime error" handling.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(*Error); ok {
		return e.fatal
	}
	return true
}

// AsAlert extracts the alert a fatal *Error carries, if err is one. Any
// other error (including a nil alert-less *Error) reports ok == false, so
// the connector's generic error path can fall back to alert_internal_error.
func AsAlert(err error) (record.AlertDescription, bool) {
	if e, ok := err.(*Error); ok {
		return e.Alert()
	}
	return 0, false
}

// Record-parse / decrypt failures — silently dropped, logged at FINE.
var WarnRecordHeaderParse = newWarning("record header failed to parse")
var WarnRecordBodyTruncated = newWarning("record body shorter than declared length")
var WarnUnknownContentType = newWarning("unknown record content type")
var WarnDecryptFailed = newWarning("record failed to decrypt or authenticate")
var WarnNoMatchingSession = newWarning("record epoch matches neither established nor ongoing-handshake session")

// Replay / epoch mismatch — record dropped.
var WarnReplayed = newWarning("sequence number already seen or below replay window")
var WarnEpochMismatch = newWarning("record epoch does not match any live session")

// Fragment reassembly.
var WarnFragmentConflict = newWarning("fragment declares a different total length or handshake type than previously buffered")
var WarnFragmentBufferFull = newWarning("fragment buffer exceeded maximum tracked fragments for this message")

// Cookie verification.
var WarnCookieMismatch = newWarning("client hello cookie does not match expected value")
var WarnCookieMacKeyUnavailable = newWarning("cookie mac key not yet initialized")

// Handshake-message structural failures the connector itself inspects.
var WarnClientHelloParse = newWarning("client hello failed to parse")
var WarnHandshakeHeaderParse = newWarning("handshake message header failed to parse")

// Outbound boundary failures.
var ErrOutboundQueueFull = newWarning("outbound queue full, message dropped")
var ErrPayloadTooLarge = newWarning("application payload exceeds maximum message size")
var ErrNoConnectionForResumption = newWarning("no cached session for requested resumption")

// Fatal, alert-carrying failures.
var FatalInternalError = newFatal("internal error processing inbound datagram", record.AlertInternalError)
var FatalHandshakeFailure = newFatal("handshake failed", record.AlertHandshakeFailure)
var FatalBadRecordMAC = newFatal("record authentication failed under an established session", record.AlertBadRecordMAC)
var FatalDecodeError = newFatal("peer sent an undecodable handshake message", record.AlertDecodeError)
var FatalUnexpectedMessage = newFatal("peer sent a message not valid for the current state", record.AlertUnexpectedMessage)
