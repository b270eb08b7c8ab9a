package providers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguard/internal/proof"
	"rentguard/internal/verification/providers"
	"rentguard/internal/verification/providers/local"
)

func TestProviderRegistry(t *testing.T) {
	signer, err := proof.DeriveEd25519Signer([]byte("registry-test"), "providers")
	require.NoError(t, err)

	reg := providers.NewProviderRegistry()
	require.NoError(t, reg.Register(local.NewEscrow("escrow-b", signer, 0)))
	require.NoError(t, reg.Register(local.NewEscrow("escrow-a", signer, 0)))
	require.NoError(t, reg.Register(local.NewIdentity("identity-a", signer, nil)))

	err = reg.Register(local.NewEscrow("escrow-a", signer, 0))
	assert.ErrorContains(t, err, "already registered")

	escrows := reg.ForKind(proof.KindEscrow)
	require.Len(t, escrows, 2)
	assert.Equal(t, "escrow-a", escrows[0].ID())
	assert.Equal(t, "escrow-b", escrows[1].ID())

	assert.Empty(t, reg.ForKind(proof.KindResolution))
}
