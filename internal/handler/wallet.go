package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xueqianLu/ticketdesk/internal/wallet"
)

// UnlockHandler decrypts a key file and makes it the active session.
type UnlockHandler struct {
	desk Desk
}

// NewUnlockHandler creates a new UnlockHandler.
func NewUnlockHandler(d Desk) *UnlockHandler {
	return &UnlockHandler{desk: d}
}

// ServeHTTP implements the http.Handler interface.
func (h *UnlockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Keystore) == 0 {
		writeError(w, http.StatusBadRequest, "Keystore is required")
		return
	}

	session, err := h.desk.Unlock(keyFile(req.Keystore), req.Passphrase)
	if err != nil {
		var decErr *wallet.DecryptionError
		if errors.As(err, &decErr) {
			writeError(w, http.StatusUnauthorized, decErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, WalletResponse{Address: session.Address.Hex()})
}

// WalletHandler reports the active session.
type WalletHandler struct {
	desk Desk
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(d Desk) *WalletHandler {
	return &WalletHandler{desk: d}
}

// ServeHTTP implements the http.Handler interface.
func (h *WalletHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	session := h.desk.Session()
	if session == nil {
		writeError(w, http.StatusNotFound, "Please load your wallet first.")
		return
	}
	writeJSON(w, http.StatusOK, WalletResponse{Address: session.Address.Hex()})
}

// InspectHandler describes a key file without decrypting it.
type InspectHandler struct{}

// NewInspectHandler creates a new InspectHandler.
func NewInspectHandler() *InspectHandler {
	return &InspectHandler{}
}

// ServeHTTP implements the http.Handler interface.
func (h *InspectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req InspectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Keystore) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	details, err := wallet.Inspect(keyFile(req.Keystore))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, details)
}
