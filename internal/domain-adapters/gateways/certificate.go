package gateways

import (
	"crypto/x509"
	"fmt"
	"time"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/ochairo/tagship/internal/domain/entities"
)

// CertificateInfo describes the leaf certificate of a signing bundle
type CertificateInfo struct {
	Subject  string
	NotAfter time.Time
}

// InspectCertificateBundle decodes a PKCS#12 bundle with password and checks
// that its leaf certificate is valid at now. Failures wrap ErrSigningFailed.
func InspectCertificateBundle(bundle []byte, password string, now time.Time) (*CertificateInfo, error) {
	if len(bundle) == 0 {
		return nil, fmt.Errorf("%w: empty certificate bundle", entities.ErrSigningFailed)
	}

	// DecodeChain reads both legacy RC2/3DES and PBES2 (OpenSSL 3 default)
	// bundles; the leaf is the certificate matching the private key.
	_, leaf, _, err := pkcs12.DecodeChain(bundle, password)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot decode certificate bundle: %w", entities.ErrSigningFailed, err)
	}

	return checkCertificate(leaf, now)
}

// checkCertificate checks the validity window of the signing certificate
func checkCertificate(leaf *x509.Certificate, now time.Time) (*CertificateInfo, error) {
	if leaf == nil {
		return nil, fmt.Errorf("%w: certificate bundle has no leaf certificate", entities.ErrSigningFailed)
	}

	info := &CertificateInfo{Subject: leaf.Subject.CommonName, NotAfter: leaf.NotAfter}
	if now.After(leaf.NotAfter) {
		return info, fmt.Errorf("%w: certificate %q expired on %s",
			entities.ErrSigningFailed, info.Subject, leaf.NotAfter.Format(time.DateOnly))
	}
	if now.Before(leaf.NotBefore) {
		return info, fmt.Errorf("%w: certificate %q is not valid before %s",
			entities.ErrSigningFailed, info.Subject, leaf.NotBefore.Format(time.DateOnly))
	}
	return info, nil
}
