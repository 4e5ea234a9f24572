package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/xueqianLu/ticketdesk/internal/signer"
)

// DecryptionError reports a key file that could not be opened with the given passphrase.
// The underlying cause is kept verbatim.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return "failed to decrypt wallet: " + e.Err.Error()
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// Session is the unlocked signing identity for the lifetime of the process.
type Session struct {
	Address common.Address
	Signer  signer.TxSigner
}

// NewSession builds a session around any signer.
func NewSession(s signer.TxSigner) *Session {
	return &Session{Address: s.Address(), Signer: s}
}

// Unlock decrypts a JSON key-store file. No retry is attempted on failure.
func Unlock(fileContents []byte, passphrase string) (*Session, error) {
	if !json.Valid(fileContents) {
		return nil, &DecryptionError{Err: errors.New("key file is not valid JSON")}
	}

	key, err := keystore.DecryptKey(fileContents, passphrase)
	if err != nil {
		return nil, &DecryptionError{Err: err}
	}

	return NewSession(signer.NewLocalSigner(key.PrivateKey)), nil
}

// Holder keeps at most one active session.
type Holder struct {
	mu      sync.RWMutex
	current *Session
}

// Replace installs s as the active session and returns the one it displaced, if any.
func (h *Holder) Replace(s *Session) (*Session, error) {
	if s == nil || s.Signer == nil {
		return nil, fmt.Errorf("cannot install an empty session")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.current
	h.current = s
	return prev, nil
}

// Current returns the active session or nil.
func (h *Holder) Current() *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Clear drops the active session.
func (h *Holder) Clear() {
	h.mu.Lock()
	h.current = nil
	h.mu.Unlock()
}
