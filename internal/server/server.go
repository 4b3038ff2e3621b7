package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/bizkut/EveSalesNotification/internal/logger"
	"github.com/bizkut/EveSalesNotification/internal/model"
)

// Lifecycle is the account-management slice exposed over HTTP.
type Lifecycle interface {
	AddOrRestore(ctx context.Context, account model.Account, now time.Time) (int64, bool, error)
	RequestRemoval(ctx context.Context, accountID int64, now time.Time) (time.Time, error)
}

// Credentials persists a fresh refresh token for an account.
type Credentials interface {
	AccountByCharacter(ctx context.Context, characterID int64) (model.Account, bool, error)
	UpdateRefreshToken(ctx context.Context, accountID int64, token string) error
}

// TokenCache drops a cached access token after a credential change.
type TokenCache interface {
	Forget(accountID int64)
}

// Server exposes liveness plus the small account-management API.
type Server struct {
	s *http.Server
}

func New(ctx context.Context, port string, lifecycle Lifecycle, creds Credentials, tokens TokenCache, logger logger.Logger) *Server {
	h := &handlers{
		lifecycle: lifecycle,
		creds:     creds,
		tokens:    tokens,
		logger:    logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /accounts", h.addAccount)
	mux.HandleFunc("DELETE /accounts/{characterID}", h.removeAccount)
	mux.HandleFunc("PUT /accounts/{characterID}/credentials", h.updateCredentials)

	return &Server{
		s: &http.Server{
			Handler:           mux,
			Addr:              ":" + port,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext: func(listener net.Listener) context.Context {
				return ctx
			},
		},
	}
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error)
	go func() {
		errCh <- s.s.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.s.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
