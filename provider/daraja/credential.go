package daraja

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// EncryptInitiatorPassword produces the SecurityCredential required by the
// B2C API: the initiator password encrypted with PKCS#1 v1.5 under the
// operator's public certificate, base64 encoded. Certificates pasted into
// environment files often carry literal "\n" sequences; those are normalized
// before parsing.
func EncryptInitiatorPassword(password, certificatePEM string) (string, error) {
	normalized := strings.TrimSpace(strings.ReplaceAll(certificatePEM, `\n`, "\n"))
	block, _ := pem.Decode([]byte(normalized))
	if block == nil {
		return "", errors.New("daraja: certificate is not valid PEM")
	}

	var key *rsa.PublicKey
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("daraja: parse certificate: %w", err)
		}
		rsaKey, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return "", errors.New("daraja: certificate does not carry an RSA public key")
		}
		key = rsaKey
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return "", fmt.Errorf("daraja: parse public key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return "", errors.New("daraja: public key is not RSA")
		}
		key = rsaKey
	default:
		return "", fmt.Errorf("daraja: unsupported PEM block %q", block.Type)
	}

	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, key, []byte(password))
	if err != nil {
		return "", fmt.Errorf("daraja: encrypt initiator password: %w", err)
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}
