// Copyright (c) 2026 DTLS12 Connector Contributors
// Licensed under the MIT License. See LICENSE for details.

package record

import "errors"

// AlertLevel is the first byte of an Alert body [rfc5246:7.2].
type AlertLevel byte

const (
	AlertLevelWarning AlertLevel = 1
	AlertLevelFatal   AlertLevel = 2
)

// AlertDescription is the second byte of an Alert body.
type AlertDescription byte

const (
	AlertCloseNotify            AlertDescription = 0
	AlertUnexpectedMessage      AlertDescription = 10
	AlertBadRecordMAC           AlertDescription = 20
	AlertHandshakeFailure       AlertDescription = 40
	AlertBadCertificate         AlertDescription = 42
	AlertIllegalParameter       AlertDescription = 47
	AlertDecodeError            AlertDescription = 50
	AlertDecryptError           AlertDescription = 51
	AlertProtocolVersion        AlertDescription = 70
	AlertInsufficientSecurity   AlertDescription = 71
	AlertInternalError          AlertDescription = 80
	AlertUserCanceled           AlertDescription = 90
	AlertNoRenegotiation        AlertDescription = 100
	AlertUnsupportedExtension   AlertDescription = 110
)

// Alert is the 2-byte body of a content-type-Alert record.
type Alert struct {
	Level       AlertLevel
	Description AlertDescription
}

var ErrAlertTooShort = errors.New("dtls12: alert body too short")

func ParseAlert(body []byte) (Alert, error) {
	if len(body) < 2 {
		return Alert{}, ErrAlertTooShort
	}
	return Alert{Level: AlertLevel(body[0]), Description: AlertDescription(body[1])}, nil
}

func (a Alert) Append(dst []byte) []byte {
	return append(dst, byte(a.Level), byte(a.Description))
}

func (a Alert) IsFatal() bool { return a.Level == AlertLevelFatal }

func (a Alert) IsCloseNotify() bool { return a.Description == AlertCloseNotify }
