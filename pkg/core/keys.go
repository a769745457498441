package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/pbkdf2"
)

// GetSigningKey derives the key used to sign webhook notifications.
func GetSigningKey(key string) (ed25519.PrivateKey, error) {
	return getKey(key, "webhook")
}

func getKey(key string, salt string) (ed25519.PrivateKey, error) {
	b, err := hex.DecodeString(key)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes long")
	}
	seed := pbkdf2.Key(b, []byte(salt), 1, 32, sha256.New)
	privateKey := ed25519.NewKeyFromSeed(seed)
	return privateKey, nil
}
