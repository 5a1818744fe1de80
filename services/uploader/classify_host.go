//go:build !(rp2040 || rp2350)

package uploader

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
)

func classifyNet(err error) int {
	var (
		ne      net.Error
		dnsErr  *net.DNSError
		opErr   *net.OpError
		certErr *tls.CertificateVerificationError
		recErr  tls.RecordHeaderError
		authErr x509.UnknownAuthorityError
		hostErr x509.HostnameError
		invErr  x509.CertificateInvalidError
	)
	switch {
	case errors.As(err, &ne) && ne.Timeout():
		return CodeReadTimeout
	case errors.As(err, &dnsErr):
		return CodeNotConnected
	case errors.As(err, &certErr), errors.As(err, &recErr), errors.As(err, &authErr),
		errors.As(err, &hostErr), errors.As(err, &invErr):
		return CodeTLS
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return CodeRefused
	}
	return CodeLost
}
