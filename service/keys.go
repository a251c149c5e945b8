package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Danny02/garagen-flohmarkt/core"
	"github.com/Danny02/garagen-flohmarkt/ports"
)

// Store key layout. The stand record carries the owner token as a field that
// is never serialized in public reads; everything else is keyed directly.
const (
	standKeyPrefix      = "stand:"
	challengeKeyPrefix  = "challenge:"
	credentialKeyPrefix = "credential:"
	sessionKeyPrefix    = "session:"
)

func standKey(id string) string      { return standKeyPrefix + id }
func challengeKey(id string) string  { return challengeKeyPrefix + id }
func credentialKey(id string) string { return credentialKeyPrefix + id }
func sessionKey(token string) string { return sessionKeyPrefix + token }

func getStand(ctx context.Context, store ports.Store, id string) (core.Stand, error) {
	raw, err := store.Get(ctx, standKey(id))
	if errors.Is(err, ports.ErrKeyNotFound) {
		return core.Stand{}, core.ErrNotFound
	}
	if err != nil {
		return core.Stand{}, fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}

	var stand core.Stand
	if err := json.Unmarshal([]byte(raw), &stand); err != nil {
		return core.Stand{}, fmt.Errorf("%w: corrupt stand record: %v", core.ErrStoreOperationFailed, err)
	}
	return stand, nil
}

func putJSON(ctx context.Context, store ports.Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	if err := store.Put(ctx, key, string(raw), 0); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreOperationFailed, err)
	}
	return nil
}
