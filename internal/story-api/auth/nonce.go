package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NonceStore guarda um nonce de uso único por endereço
type NonceStore struct {
	R   *redis.Client
	TTL time.Duration
}

func NewNonceStore(r *redis.Client, ttl time.Duration) *NonceStore {
	return &NonceStore{R: r, TTL: ttl}
}

func nonceKey(address string) string { return "auth:nonce:" + address }

// Issue gera um nonce novo; um pedido posterior substitui o anterior
func (s *NonceStore) Issue(ctx context.Context, address string) (string, error) {
	n := uuid.NewString()
	if err := s.R.Set(ctx, nonceKey(address), n, s.TTL).Err(); err != nil {
		return "", fmt.Errorf("store nonce: %w", err)
	}
	return n, nil
}

// Consume devolve e apaga o nonce pendente; "" se não houver
func (s *NonceStore) Consume(ctx context.Context, address string) (string, error) {
	n, err := s.R.GetDel(ctx, nonceKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return n, err
}
