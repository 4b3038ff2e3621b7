package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/bytedance/sonic"
)

type handlers struct {
	lifecycle Lifecycle
	creds     Credentials
	tokens    TokenCache

	logger logger.Logger
}

type addAccountRequest struct {
	CharacterID   int64  `json:"character_id"`
	CharacterName string `json:"character_name"`
	RefreshToken  string `json:"refresh_token"`
	ChatID        int64  `json:"chat_id"`
}

type addAccountResponse struct {
	AccountID int64 `json:"account_id"`
	Restored  bool  `json:"restored"`
}

func (h *handlers) addAccount(w http.ResponseWriter, r *http.Request) {
	var req addAccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.CharacterID == 0 || req.RefreshToken == "" || req.ChatID == 0 {
		http.Error(w, "character_id, refresh_token and chat_id are required", http.StatusBadRequest)
		return
	}

	id, restored, err := h.lifecycle.AddOrRestore(r.Context(), model.Account{
		CharacterID:   req.CharacterID,
		CharacterName: req.CharacterName,
		RefreshToken:  req.RefreshToken,
		ChatID:        req.ChatID,
		Status:        model.AccountActive,
	}, time.Now().UTC())
	if err != nil {
		h.logger.Errorf("can't add account for character %d: %v", req.CharacterID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.respond(w, addAccountResponse{AccountID: id, Restored: restored})
}

type removeAccountResponse struct {
	DeletionScheduledAt time.Time `json:"deletion_scheduled_at"`
}

func (h *handlers) removeAccount(w http.ResponseWriter, r *http.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}

	deadline, err := h.lifecycle.RequestRemoval(r.Context(), account.ID, time.Now().UTC())
	if err != nil {
		h.logger.Errorf("can't schedule deletion for account %d: %v", account.ID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.respond(w, removeAccountResponse{DeletionScheduledAt: deadline})
}

type updateCredentialsRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *handlers) updateCredentials(w http.ResponseWriter, r *http.Request) {
	account, ok := h.account(w, r)
	if !ok {
		return
	}

	var req updateCredentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		http.Error(w, "refresh_token is required", http.StatusBadRequest)
		return
	}

	if err := h.creds.UpdateRefreshToken(r.Context(), account.ID, req.RefreshToken); err != nil {
		h.logger.Errorf("can't update credentials for account %d: %v", account.ID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	// Drop the cached access token; suspended streams resume on the next
	// successful fetch.
	h.tokens.Forget(account.ID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) account(w http.ResponseWriter, r *http.Request) (model.Account, bool) {
	characterID, err := strconv.ParseInt(r.PathValue("characterID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid character id", http.StatusBadRequest)
		return model.Account{}, false
	}

	account, found, err := h.creds.AccountByCharacter(r.Context(), characterID)
	if err != nil {
		h.logger.Errorf("can't look up character %d: %v", characterID, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return model.Account{}, false
	}
	if !found {
		http.Error(w, "unknown character", http.StatusNotFound)
		return model.Account{}, false
	}
	return account, true
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "can't read body", http.StatusBadRequest)
		return false
	}
	if err := sonic.Unmarshal(body, dst); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *handlers) respond(w http.ResponseWriter, payload interface{}) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		h.logger.Errorf("can't encode response: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
