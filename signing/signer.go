package signing

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"chipbridge/chain"
)

// Signer holds the backend withdrawal signing key. The withdrawal contract
// knows the corresponding address and accepts only authorizations signed
// here. Key custody beyond the process environment is out of scope.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner creates a signer from a hex-encoded secp256k1 private key
func NewSigner(privateKeyHex string) (*Signer, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}
	return &Signer{key: key}, nil
}

// Address returns the signer's public address, the one the withdrawal
// contract verifies against
func (s *Signer) Address() string {
	return strings.ToLower(crypto.PubkeyToAddress(s.key.PublicKey).Hex())
}

// SignWithdrawal signs the packed (player, amount, finalBalance, nonce)
// payload. Amounts are converted to the contract's integer units before
// packing so the signature matches what the contract recomputes on-chain.
func (s *Signer) SignWithdrawal(address string, amount, finalBalance decimal.Decimal, nonce uint64) (string, error) {
	digest := WithdrawalDigest(address, chain.ToWei(amount), chain.ToWei(finalBalance), nonce)

	signature, err := crypto.Sign(prefixedHash(digest).Bytes(), s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign withdrawal digest: %w", err)
	}

	// Solidity ecrecover expects the legacy 27/28 recovery id
	signature[64] += 27

	return hexutil.Encode(signature), nil
}

// WithdrawalDigest computes keccak256 over the tightly packed withdrawal
// payload: 20-byte address followed by three 32-byte big-endian integers.
func WithdrawalDigest(address string, amountWei, finalBalanceWei *big.Int, nonce uint64) common.Hash {
	packed := make([]byte, 0, 20+32*3)
	packed = append(packed, common.HexToAddress(address).Bytes()...)
	packed = append(packed, common.LeftPadBytes(amountWei.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(finalBalanceWei.Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(new(big.Int).SetUint64(nonce).Bytes(), 32)...)
	return crypto.Keccak256Hash(packed)
}

// VerifyWithdrawal recovers the signer of a withdrawal authorization and
// compares it against the expected address
func VerifyWithdrawal(expectedSigner, address string, amountWei, finalBalanceWei *big.Int, nonce uint64, signature string) (bool, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("malformed signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	// Undo the 27/28 adjustment applied at signing time
	recoverable := make([]byte, len(sig))
	copy(recoverable, sig)
	if recoverable[64] >= 27 {
		recoverable[64] -= 27
	}

	digest := WithdrawalDigest(address, amountWei, finalBalanceWei, nonce)
	pubkey, err := crypto.SigToPub(prefixedHash(digest).Bytes(), recoverable)
	if err != nil {
		return false, fmt.Errorf("failed to recover signer: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pubkey)
	return recovered == common.HexToAddress(expectedSigner), nil
}

// prefixedHash applies the EIP-191 personal-message prefix over a 32-byte
// digest, matching the contract's verification scheme
func prefixedHash(digest common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte("\x19Ethereum Signed Message:\n32"), digest.Bytes())
}

// VerifyPersonalSign verifies a wallet's personal_sign signature over an
// arbitrary login message, used by the wallet authentication endpoint
func VerifyPersonalSign(address, message, signature string) (bool, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return false, fmt.Errorf("malformed signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return false, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}

	recoverable := make([]byte, len(sig))
	copy(recoverable, sig)
	if recoverable[64] >= 27 {
		recoverable[64] -= 27
	}

	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)))
	pubkey, err := crypto.SigToPub(hash.Bytes(), recoverable)
	if err != nil {
		return false, fmt.Errorf("failed to recover signer: %w", err)
	}

	recovered := crypto.PubkeyToAddress(*pubkey)
	return recovered == common.HexToAddress(address), nil
}
