package attest

import (
	"crypto/x509"
	_ "embed"
	"fmt"
	"sync"
)

// AWSNitroRootPEM is the AWS Nitro Enclaves root certificate (CN=aws.nitro-enclaves, valid until 2049).
// SHA-256 fingerprint: 64:1A:03:21:A3:E2:44:EF:E4:56:46:31:95:D6:06:31:7E:D7:CD:CC:3C:17:56:E0:98:93:F3:C6:8F:79:BB:5B
//
//go:embed aws_nitro_root.pem
var AWSNitroRootPEM []byte

var awsNitroRoot = sync.OnceValues(func() (*x509.Certificate, error) {
	cert, err := ParsePEMCertificate(AWSNitroRootPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS Nitro root certificate: %w", err)
	}
	return cert, nil
})

// AWSNitroRoot returns the parsed embedded root certificate.
func AWSNitroRoot() (*x509.Certificate, error) {
	return awsNitroRoot()
}
