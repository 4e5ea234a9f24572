package signer

import (
	"context"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hashicorp/vault/api"
)

// VaultSigner signs with a secp256k1 key held in a Vault transit engine.
// The private key never leaves Vault; only the transaction hash is sent.
type VaultSigner struct {
	vaultClient *api.Client
	transitPath string
	keyName     string
	address     common.Address
}

// NewVaultSigner resolves the address of keyName and returns a signer for it.
func NewVaultSigner(ctx context.Context, vaultClient *api.Client, transitPath, keyName string) (*VaultSigner, error) {
	s := &VaultSigner{
		vaultClient: vaultClient,
		transitPath: transitPath,
		keyName:     keyName,
	}

	address, err := s.addressForKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve address for vault key '%s': %w", keyName, err)
	}
	s.address = address
	return s, nil
}

// Address returns the account of the Vault key.
func (s *VaultSigner) Address() common.Address {
	return s.address
}

func (s *VaultSigner) addressForKey(ctx context.Context) (common.Address, error) {
	path := fmt.Sprintf("%s/keys/%s", s.transitPath, s.keyName)
	secret, err := s.vaultClient.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return common.Address{}, err
	}
	if secret == nil || secret.Data["keys"] == nil {
		return common.Address{}, fmt.Errorf("key '%s' not found in vault", s.keyName)
	}

	keysData, ok := secret.Data["keys"].(map[string]interface{})
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected format for key data")
	}

	latestVersion := "0"
	for v := range keysData {
		if len(v) > len(latestVersion) || (len(v) == len(latestVersion) && v > latestVersion) {
			latestVersion = v
		}
	}

	keyData, ok := keysData[latestVersion].(map[string]interface{})
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected format for key version data")
	}

	pubKeyPEM, ok := keyData["public_key"].(string)
	if !ok {
		return common.Address{}, fmt.Errorf("public key not found in key data")
	}
	return addressFromPEM(pubKeyPEM)
}

// subjectPublicKeyInfo mirrors the PKIX structure. crypto/x509 rejects the
// secp256k1 curve, so the point is extracted by hand.
type subjectPublicKeyInfo struct {
	Algorithm pkix.AlgorithmIdentifier
	PublicKey asn1.BitString
}

func addressFromPEM(pubKeyPEM string) (common.Address, error) {
	block, _ := pem.Decode([]byte(pubKeyPEM))
	if block == nil {
		return common.Address{}, fmt.Errorf("failed to parse PEM block containing the public key")
	}

	var spki subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(block.Bytes, &spki); err != nil {
		return common.Address{}, fmt.Errorf("failed to parse DER encoded public key: %w", err)
	}

	point := spki.PublicKey.RightAlign()
	switch len(point) {
	case 65:
		pub, err := crypto.UnmarshalPubkey(point)
		if err != nil {
			return common.Address{}, fmt.Errorf("key is not a secp256k1 public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pub), nil
	case 33:
		pub, err := crypto.DecompressPubkey(point)
		if err != nil {
			return common.Address{}, fmt.Errorf("key is not a secp256k1 public key: %w", err)
		}
		return crypto.PubkeyToAddress(*pub), nil
	default:
		return common.Address{}, fmt.Errorf("unexpected public key length %d", len(point))
	}
}

func (s *VaultSigner) signHash(ctx context.Context, hash []byte) ([]byte, error) {
	path := fmt.Sprintf("%s/sign/%s", s.transitPath, s.keyName)

	resp, err := s.vaultClient.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"input":     base64.StdEncoding.EncodeToString(hash),
		"prehashed": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign with vault: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response from vault")
	}

	signature, ok := resp.Data["signature"].(string)
	if !ok {
		return nil, fmt.Errorf("signature not found in vault response")
	}
	return parseVaultSignature(signature)
}

// parseVaultSignature decodes "vault:v<N>:<r>+<s>" into a 64 byte r||s.
func parseVaultSignature(signature string) ([]byte, error) {
	parts := strings.Split(signature, ":")
	if len(parts) < 3 {
		return nil, fmt.Errorf("invalid signature format from vault: %s", signature)
	}

	sigParts := strings.Split(parts[2], "+")
	if len(sigParts) != 2 {
		return nil, fmt.Errorf("invalid signature payload from vault: %s", parts[2])
	}
	r, err := base64.RawURLEncoding.DecodeString(sigParts[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode r part of signature: %w", err)
	}
	s, err := base64.RawURLEncoding.DecodeString(sigParts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to decode s part of signature: %w", err)
	}
	if len(r) > 32 || len(s) > 32 {
		return nil, fmt.Errorf("signature component too long")
	}

	rs := make([]byte, 64)
	copy(rs[32-len(r):32], r)
	normalizeS(rs[32:], s)
	return rs, nil
}

var (
	secp256k1N     = crypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// normalizeS writes s into dst, flipped to the lower half of the curve order.
// Nodes reject high-s signatures.
func normalizeS(dst, s []byte) {
	sv := new(big.Int).SetBytes(s)
	if sv.Cmp(secp256k1HalfN) > 0 {
		sv.Sub(secp256k1N, sv)
	}
	sv.FillBytes(dst)
}

// SignTx signs a transaction using the Vault key.
func (s *VaultSigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, fmt.Errorf("invalid chain id %v", chainID)
	}

	txSigner := types.LatestSignerForChainID(chainID)
	txHash := txSigner.Hash(tx)

	signature, err := s.signHash(ctx, txHash.Bytes())
	if err != nil {
		return nil, err
	}

	// Vault returns only r and s; v is whichever recovery id yields our address.
	v, err := recoverV(signature, txHash.Bytes(), s.address)
	if err != nil {
		return nil, err
	}
	return tx.WithSignature(txSigner, append(signature, v))
}

// recoverV finds the recovery id for an r||s signature over hash.
func recoverV(signature, hash []byte, expectedAddress common.Address) (byte, error) {
	for i := byte(0); i < 2; i++ {
		sigWithV := make([]byte, 0, 65)
		sigWithV = append(sigWithV, signature...)
		sigWithV = append(sigWithV, i)

		pubkey, err := crypto.SigToPub(hash, sigWithV)
		if err != nil {
			continue
		}
		if crypto.PubkeyToAddress(*pubkey) == expectedAddress {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: could not recover %s from signature", ErrAccountMismatch, expectedAddress.Hex())
}
