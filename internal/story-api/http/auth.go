package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/story-api/auth"
	"github.com/radieske/story-bet-platform/pkg/contracts/api"
	"github.com/radieske/story-bet-platform/pkg/walletsig"
)

// nonce emite um nonce de uso único e a mensagem que a carteira deve assinar
func (a *API) nonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := walletsig.Address(r.URL.Query().Get("address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	n, err := a.Nonces.Issue(r.Context(), addr)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.NonceResponse{Address: addr, Nonce: n, Message: auth.SignInMessage(addr, n)})
}

// verify confere a assinatura do nonce pendente e devolve o token bearer
func (a *API) verify(w http.ResponseWriter, r *http.Request) {
	var req api.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	addr, ok := walletsig.Address(req.Address)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}

	// o nonce é consumido mesmo se a assinatura falhar
	n, err := a.Nonces.Consume(r.Context(), addr)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if n == "" || req.Message != auth.SignInMessage(addr, n) {
		writeError(w, http.StatusUnauthorized, "nonce expired or unknown")
		return
	}
	if err := walletsig.Verify(addr, req.Message, req.Signature); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	user, err := a.Users.UpsertUser(r.Context(), addr)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	token, err := a.Auth.Issue(addr)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.Log.Info("wallet authenticated", zap.String("address", addr))
	writeJSON(w, http.StatusOK, api.AuthResponse{Token: token, User: user})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	addr, _ := auth.Address(r.Context())
	u, err := a.Users.GetUser(r.Context(), addr)
	respond(a, w, r, u, err)
}
