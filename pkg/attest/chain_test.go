package attest_test

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"

	"github.com/DIMO-Network/enclave-attest/pkg/attest"
	"github.com/DIMO-Network/enclave-attest/pkg/attest/attesttest"
	"github.com/stretchr/testify/require"
)

func requireChainError(t *testing.T, err error, index int) {
	t.Helper()
	require.ErrorIs(t, err, attest.ErrInvalidChain)
	var chainErr *attest.ChainError
	require.True(t, errors.As(err, &chainErr), "expected a *attest.ChainError, got %T", err)
	require.Equal(t, index, chainErr.Index)
}

func TestDERToPEM(t *testing.T) {
	t.Parallel()
	auth := attesttest.NewAuthority(t, 1)

	for _, cert := range []*x509.Certificate{auth.Root, auth.Intermediates[0], auth.Leaf} {
		pemBytes := attest.DERToPEM(cert.Raw)
		require.True(t, bytes.HasPrefix(pemBytes, []byte("-----BEGIN CERTIFICATE-----\n")))
		require.True(t, bytes.HasSuffix(pemBytes, []byte("-----END CERTIFICATE-----\n")))
		for _, line := range strings.Split(strings.TrimSpace(string(pemBytes)), "\n") {
			require.LessOrEqual(t, len(line), 64)
		}

		parsed, err := attest.ParsePEMCertificate(pemBytes)
		require.NoError(t, err)
		require.Equal(t, cert.RawSubject, parsed.RawSubject)
		require.Equal(t, cert.RawIssuer, parsed.RawIssuer)
		require.Equal(t, cert.RawSubjectPublicKeyInfo, parsed.RawSubjectPublicKeyInfo)
		require.True(t, cert.Equal(parsed))
	}
}

func TestParsePEMCertificate(t *testing.T) {
	t.Parallel()

	_, err := attest.ParsePEMCertificate([]byte("not a pem"))
	require.Error(t, err)

	_, err = attest.ParsePEMCertificate(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{0x01}}))
	require.Error(t, err)

	_, err = attest.ParsePEMCertificate(attest.DERToPEM([]byte{0x30, 0x03, 0x02, 0x01, 0x01}))
	require.Error(t, err)
}

func TestBuildChain(t *testing.T) {
	t.Parallel()
	auth := attesttest.NewAuthority(t, 3)
	other := attesttest.NewAuthority(t, 3)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		chain, err := attest.BuildChain(auth.Root, auth.CABundle(), auth.Leaf.Raw)
		require.NoError(t, err)
		require.Len(t, chain, 5)
		require.Same(t, auth.Root, chain[0])
		for i, cert := range auth.Intermediates {
			require.True(t, cert.Equal(chain[i+1]))
		}
		require.True(t, auth.Leaf.Equal(chain.Leaf()))
	})

	t.Run("caller bundle is not modified", func(t *testing.T) {
		t.Parallel()
		bundle := make([][]byte, 0, 8)
		bundle = append(bundle, auth.CABundle()...)
		_, err := attest.BuildChain(auth.Root, bundle, auth.Leaf.Raw)
		require.NoError(t, err)
		require.Len(t, bundle, 3)
		require.Nil(t, bundle[:4][3])
	})

	t.Run("first intermediate from another root", func(t *testing.T) {
		t.Parallel()
		bundle := auth.CABundle()
		bundle[0] = other.Intermediates[0].Raw
		_, err := attest.BuildChain(auth.Root, bundle, auth.Leaf.Raw)
		requireChainError(t, err, 1)
	})

	t.Run("inner intermediate from another issuer", func(t *testing.T) {
		t.Parallel()
		bundle := auth.CABundle()
		bundle[1] = other.Intermediates[1].Raw
		_, err := attest.BuildChain(auth.Root, bundle, auth.Leaf.Raw)
		requireChainError(t, err, 2)
	})

	t.Run("last intermediate from another issuer", func(t *testing.T) {
		t.Parallel()
		bundle := auth.CABundle()
		bundle[2] = other.Intermediates[2].Raw
		_, err := attest.BuildChain(auth.Root, bundle, auth.Leaf.Raw)
		requireChainError(t, err, 3)
	})

	t.Run("leaf signature is not checked", func(t *testing.T) {
		t.Parallel()
		chain, err := attest.BuildChain(auth.Root, auth.CABundle(), other.Leaf.Raw)
		require.NoError(t, err)
		require.True(t, other.Leaf.Equal(chain.Leaf()))
	})

	t.Run("unparsable intermediate", func(t *testing.T) {
		t.Parallel()
		bundle := auth.CABundle()
		bundle[1] = []byte{0x30, 0x00}
		_, err := attest.BuildChain(auth.Root, bundle, auth.Leaf.Raw)
		requireChainError(t, err, 2)
	})

	t.Run("unparsable leaf", func(t *testing.T) {
		t.Parallel()
		_, err := attest.BuildChain(auth.Root, auth.CABundle(), []byte("leaf"))
		requireChainError(t, err, 4)
	})

	t.Run("untrusted root", func(t *testing.T) {
		t.Parallel()
		_, err := attest.BuildChain(other.Root, auth.CABundle(), auth.Leaf.Raw)
		requireChainError(t, err, 1)
	})

	t.Run("no root", func(t *testing.T) {
		t.Parallel()
		_, err := attest.BuildChain(nil, auth.CABundle(), auth.Leaf.Raw)
		requireChainError(t, err, 0)
		require.ErrorIs(t, err, attest.ErrNoTrustedRoot)
	})
}
