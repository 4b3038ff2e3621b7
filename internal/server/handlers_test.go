package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
	"github.com/stretchr/testify/require"
)

type fakeLifecycle struct {
	added    []model.Account
	removed  []int64
	restored bool
}

func (f *fakeLifecycle) AddOrRestore(_ context.Context, a model.Account, _ time.Time) (int64, bool, error) {
	f.added = append(f.added, a)
	return 7, f.restored, nil
}

func (f *fakeLifecycle) RequestRemoval(_ context.Context, accountID int64, now time.Time) (time.Time, error) {
	f.removed = append(f.removed, accountID)
	return now.Add(time.Hour), nil
}

type fakeCreds struct {
	accounts map[int64]model.Account
	updated  map[int64]string
}

func (f *fakeCreds) AccountByCharacter(_ context.Context, characterID int64) (model.Account, bool, error) {
	a, ok := f.accounts[characterID]
	return a, ok, nil
}

func (f *fakeCreds) UpdateRefreshToken(_ context.Context, accountID int64, token string) error {
	f.updated[accountID] = token
	return nil
}

type fakeTokens struct {
	forgotten []int64
}

func (f *fakeTokens) Forget(accountID int64) {
	f.forgotten = append(f.forgotten, accountID)
}

func newTestMux(lc *fakeLifecycle, creds *fakeCreds, tokens *fakeTokens) http.Handler {
	h := &handlers{lifecycle: lc, creds: creds, tokens: tokens, logger: logger.Nop{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /accounts", h.addAccount)
	mux.HandleFunc("DELETE /accounts/{characterID}", h.removeAccount)
	mux.HandleFunc("PUT /accounts/{characterID}/credentials", h.updateCredentials)
	return mux
}

func TestAddAccount(t *testing.T) {
	lc := &fakeLifecycle{}
	mux := newTestMux(lc, &fakeCreds{}, &fakeTokens{})

	body := `{"character_id": 90000001, "character_name": "Trader", "refresh_token": "tok", "chat_id": 42}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, lc.added, 1)
	require.Equal(t, int64(90000001), lc.added[0].CharacterID)
	require.Equal(t, model.AccountActive, lc.added[0].Status)
	require.Contains(t, rec.Body.String(), `"account_id":7`)
}

func TestAddAccountRejectsMissingFields(t *testing.T) {
	mux := newTestMux(&fakeLifecycle{}, &fakeCreds{}, &fakeTokens{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(`{"character_id": 1}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveAccountSchedulesDeletion(t *testing.T) {
	lc := &fakeLifecycle{}
	creds := &fakeCreds{accounts: map[int64]model.Account{
		90000001: {ID: 7, CharacterID: 90000001},
	}}
	mux := newTestMux(lc, creds, &fakeTokens{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/accounts/90000001", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int64{7}, lc.removed)
	require.Contains(t, rec.Body.String(), "deletion_scheduled_at")
}

func TestRemoveUnknownAccount(t *testing.T) {
	mux := newTestMux(&fakeLifecycle{}, &fakeCreds{accounts: map[int64]model.Account{}}, &fakeTokens{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/accounts/123", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateCredentialsForgetsCachedToken(t *testing.T) {
	creds := &fakeCreds{
		accounts: map[int64]model.Account{90000001: {ID: 7, CharacterID: 90000001}},
		updated:  map[int64]string{},
	}
	tokens := &fakeTokens{}
	mux := newTestMux(&fakeLifecycle{}, creds, tokens)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/accounts/90000001/credentials",
		strings.NewReader(`{"refresh_token": "fresh"}`)))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "fresh", creds.updated[7])
	require.Equal(t, []int64{7}, tokens.forgotten)
}
