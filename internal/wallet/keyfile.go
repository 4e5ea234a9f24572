package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Create generates a new key and returns it encrypted as a key-store file.
func Create(passphrase string, scryptN, scryptP int) (common.Address, []byte, error) {
	if passphrase == "" {
		return common.Address{}, nil, fmt.Errorf("passphrase is required")
	}

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	keyStruct := &keystore.Key{
		Id:         uuid.New(),
		Address:    address,
		PrivateKey: privateKey,
	}
	keyJson, err := keystore.EncryptKey(keyStruct, passphrase, scryptN, scryptP)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}
	return address, keyJson, nil
}

// Save writes a key file with owner-only permissions.
func Save(path string, keyJson []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create key directory: %w", err)
		}
	}
	if err := os.WriteFile(path, keyJson, 0600); err != nil {
		return fmt.Errorf("failed to save encrypted key: %w", err)
	}
	return nil
}

// Details lists the non-secret fields of a key-store envelope.
type Details struct {
	Address    string            `json:"address"`
	ID         string            `json:"id"`
	Version    int               `json:"version"`
	Cipher     string            `json:"cipher"`
	KDF        string            `json:"kdf"`
	KDFParams  map[string]string `json:"kdfparams"`
	ParamOrder []string          `json:"-"`
}

type envelope struct {
	Address string          `json:"address"`
	ID      string          `json:"id"`
	Version int             `json:"version"`
	Crypto  json.RawMessage `json:"crypto"`
	// some wallets write the section capitalised
	CryptoAlt json.RawMessage `json:"Crypto"`
}

type cryptoSection struct {
	Cipher    string                     `json:"cipher"`
	KDF       string                     `json:"kdf"`
	KDFParams map[string]json.RawMessage `json:"kdfparams"`
}

// Inspect parses a key-store file without decrypting it.
func Inspect(fileContents []byte) (*Details, error) {
	var env envelope
	if err := json.Unmarshal(fileContents, &env); err != nil {
		return nil, fmt.Errorf("malformed key file: %w", err)
	}

	raw := env.Crypto
	if len(raw) == 0 {
		raw = env.CryptoAlt
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("malformed key file: missing crypto section")
	}

	var cs cryptoSection
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("malformed key file: %w", err)
	}

	d := &Details{
		ID:        env.ID,
		Version:   env.Version,
		Cipher:    cs.Cipher,
		KDF:       cs.KDF,
		KDFParams: make(map[string]string, len(cs.KDFParams)),
	}
	if env.Address != "" {
		d.Address = common.HexToAddress(env.Address).Hex()
	}
	for k, v := range cs.KDFParams {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			s = string(v)
		}
		d.KDFParams[k] = s
		d.ParamOrder = append(d.ParamOrder, k)
	}
	sort.Strings(d.ParamOrder)
	return d, nil
}
