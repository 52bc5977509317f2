// Package auth faz o login por assinatura de carteira e guarda as credenciais da sessão.
package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/client/rcache"
	"github.com/radieske/story-bet-platform/internal/client/reads"
	"github.com/radieske/story-bet-platform/internal/shared/logger"
	"github.com/radieske/story-bet-platform/pkg/contracts/api"
	"github.com/radieske/story-bet-platform/pkg/walletsig"
)

var ErrAddressMismatch = errors.New("auth: server authenticated a different address")

// Signer assina mensagens personal_sign em nome de um endereço
type Signer interface {
	Address() string
	SignMessage(message string) (string, error)
}

// KeySigner assina com uma chave privada local
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr string
}

// NewKeySigner aceita a chave em hex, com ou sem 0x
func NewKeySigner(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid private key: %w", err)
	}
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey).Hex()}, nil
}

func (s *KeySigner) Address() string { return s.addr }

func (s *KeySigner) SignMessage(message string) (string, error) {
	return walletsig.Sign(s.key, message)
}

// API é a parte do apiclient usada no login
type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path, token string, body, out any) error
}

type Session struct {
	api   API
	cache *rcache.Cache
	log   *zap.Logger
	now   func() time.Time

	mu      sync.RWMutex
	token   string
	address string
	expires time.Time
}

// NewSession: cache pode ser nil; quando presente, as leituras do usuário são
// descartadas a cada troca de identidade.
func NewSession(a API, cache *rcache.Cache, log *zap.Logger) *Session {
	return &Session{api: a, cache: cache, log: logger.OrNop(log).Named("auth"), now: time.Now}
}

// Login pede um nonce, assina a mensagem devolvida e troca a assinatura por um token.
func (s *Session) Login(ctx context.Context, signer Signer) (api.User, error) {
	addr := strings.ToLower(signer.Address())

	var nonce api.NonceResponse
	if err := s.api.Get(ctx, "/auth/nonce", url.Values{"address": {addr}}, &nonce); err != nil {
		return api.User{}, fmt.Errorf("auth: request nonce: %w", err)
	}
	sig, err := signer.SignMessage(nonce.Message)
	if err != nil {
		return api.User{}, fmt.Errorf("auth: sign message: %w", err)
	}

	var out api.AuthResponse
	req := api.VerifyRequest{Address: addr, Message: nonce.Message, Signature: sig}
	if err := s.api.Post(ctx, "/auth/verify", "", req, &out); err != nil {
		return api.User{}, fmt.Errorf("auth: verify signature: %w", err)
	}
	if !strings.EqualFold(out.User.Address, addr) {
		return api.User{}, ErrAddressMismatch
	}

	s.SetToken(out.Token, addr)
	s.log.Info("logged in", zap.String("address", addr))
	return out.User, nil
}

// SetToken instala um token obtido por outro meio (ex: variável de ambiente).
func (s *Session) SetToken(token, address string) {
	s.mu.Lock()
	prev := s.address
	s.token = token
	s.address = strings.ToLower(address)
	s.expires = tokenExpiry(token)
	s.mu.Unlock()

	if prev != "" && prev != strings.ToLower(address) {
		s.dropUserData()
	}
}

// Credentials devolve o token e o endereço; ok é false sem login ou com token expirado.
func (s *Session) Credentials() (token, address string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", "", false
	}
	if !s.expires.IsZero() && !s.now().Before(s.expires) {
		return "", "", false
	}
	return s.token, s.address, true
}

// Address é o endereço autenticado, ou "" (desabilita as leituras do usuário)
func (s *Session) Address() string {
	_, addr, _ := s.Credentials()
	return addr
}

func (s *Session) Logout() {
	s.mu.Lock()
	s.token, s.address, s.expires = "", "", time.Time{}
	s.mu.Unlock()
	s.dropUserData()
}

func (s *Session) dropUserData() {
	if s.cache != nil {
		s.cache.Remove(reads.PrefixUser)
	}
}

// tokenExpiry lê o exp sem validar a assinatura; quem valida é o servidor
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
