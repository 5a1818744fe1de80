package link

import (
	"sensorbridge-go/errcode"
)

// Reason is a station disconnect reason code, numbered as the ESP-IDF
// wifi_err_reason_t values the field radios report.
type Reason int32

const (
	ReasonUnspecified      Reason = 0
	ReasonAuthExpire       Reason = 2
	Reason4WayTimeout      Reason = 15
	ReasonBeaconTimeout    Reason = 200
	ReasonNoAPFound        Reason = 201
	ReasonAuthFail         Reason = 202
	ReasonAssocFail        Reason = 203
	ReasonHandshakeTimeout Reason = 204
	ReasonConnectionFail   Reason = 205
)

// ReasonText maps a disconnect reason to its stable code.
func ReasonText(r Reason) errcode.Code {
	switch r {
	case ReasonAuthExpire:
		return errcode.LinkAuthExpired
	case ReasonAuthFail:
		return errcode.LinkAuthFailed
	case ReasonAssocFail:
		return errcode.LinkAssocFailed
	case ReasonHandshakeTimeout, Reason4WayTimeout:
		return errcode.LinkHandshakeTimeout
	case ReasonBeaconTimeout:
		return errcode.LinkBeaconTimeout
	case ReasonNoAPFound:
		return errcode.LinkAPNotFound
	case ReasonConnectionFail:
		return errcode.LinkConnectFailed
	default:
		return errcode.LinkDisconnected
	}
}
