package signing

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chipbridge/chain"
)

// Well-known anvil test key, never used outside tests
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

const testPlayer = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"

func TestNewSigner(t *testing.T) {
	signer, err := NewSigner(testKey)
	require.NoError(t, err)
	assert.Equal(t, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", signer.Address())

	// A 0x prefix on the key is accepted
	prefixed, err := NewSigner("0x" + testKey)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), prefixed.Address())

	_, err = NewSigner("not-a-key")
	assert.Error(t, err)
}

func TestSignWithdrawal_Deterministic(t *testing.T) {
	signer, err := NewSigner(testKey)
	require.NoError(t, err)

	amount := decimal.NewFromInt(250)
	finalBalance := decimal.NewFromInt(750)

	sig1, err := signer.SignWithdrawal(testPlayer, amount, finalBalance, 4)
	require.NoError(t, err)
	sig2, err := signer.SignWithdrawal(testPlayer, amount, finalBalance, 4)
	require.NoError(t, err)

	assert.Equal(t, sig1, sig2)

	raw, err := hexutil.Decode(sig1)
	require.NoError(t, err)
	assert.Len(t, raw, crypto.SignatureLength)

	// Recovery id carries the legacy 27/28 adjustment
	assert.GreaterOrEqual(t, raw[64], byte(27))
}

func TestSignWithdrawal_VerifiesAgainstSignerAddress(t *testing.T) {
	signer, err := NewSigner(testKey)
	require.NoError(t, err)

	amount := decimal.NewFromInt(100)
	finalBalance := decimal.NewFromInt(400)

	sig, err := signer.SignWithdrawal(testPlayer, amount, finalBalance, 7)
	require.NoError(t, err)

	ok, err := VerifyWithdrawal(signer.Address(), testPlayer, chain.ToWei(amount), chain.ToWei(finalBalance), 7, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	// A different expected signer fails verification
	ok, err = VerifyWithdrawal(testPlayer, testPlayer, chain.ToWei(amount), chain.ToWei(finalBalance), 7, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignWithdrawal_SignatureBoundToPayload(t *testing.T) {
	signer, err := NewSigner(testKey)
	require.NoError(t, err)

	amount := decimal.NewFromInt(100)
	finalBalance := decimal.NewFromInt(400)

	sig, err := signer.SignWithdrawal(testPlayer, amount, finalBalance, 7)
	require.NoError(t, err)

	// Replaying with the next nonce fails
	ok, err := VerifyWithdrawal(signer.Address(), testPlayer, chain.ToWei(amount), chain.ToWei(finalBalance), 8, sig)
	require.NoError(t, err)
	assert.False(t, ok)

	// Tampering with the amount fails
	ok, err = VerifyWithdrawal(signer.Address(), testPlayer, chain.ToWei(decimal.NewFromInt(101)), chain.ToWei(finalBalance), 7, sig)
	require.NoError(t, err)
	assert.False(t, ok)

	// A different player fails
	ok, err = VerifyWithdrawal(signer.Address(), "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc", chain.ToWei(amount), chain.ToWei(finalBalance), 7, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyWithdrawal_RejectsMalformedSignatures(t *testing.T) {
	amount := chain.ToWei(decimal.NewFromInt(1))

	_, err := VerifyWithdrawal(testPlayer, testPlayer, amount, amount, 0, "zzz")
	assert.Error(t, err)

	_, err = VerifyWithdrawal(testPlayer, testPlayer, amount, amount, 0, "0xdead")
	assert.Error(t, err)
}

func TestVerifyPersonalSign(t *testing.T) {
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()

	message := "Sign in to chipbridge as " + testPlayer
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)))

	raw, err := crypto.Sign(hash.Bytes(), key)
	require.NoError(t, err)
	raw[64] += 27
	signature := hexutil.Encode(raw)

	ok, err := VerifyPersonalSign(address, message, signature)
	require.NoError(t, err)
	assert.True(t, ok)

	// Wallets that return a 0/1 recovery id verify too
	raw[64] -= 27
	ok, err = VerifyPersonalSign(address, message, hexutil.Encode(raw))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPersonalSign(testPlayer, message, signature)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifyPersonalSign(address, message+" tampered", signature)
	require.NoError(t, err)
	assert.False(t, ok)
}
