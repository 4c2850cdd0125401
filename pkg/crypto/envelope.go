package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownKey is returned when an envelope names a key id the sealer does not hold.
var ErrUnknownKey = errors.New("unknown encryption key id")

// Envelope is the stored form of a secret: which key sealed it plus nonce and ciphertext.
type Envelope struct {
	KeyID      string `json:"kid"`
	Nonce      string `json:"n"`
	Ciphertext string `json:"ct"`
}

// Sealer encrypts secrets with AES-256-GCM. New secrets use the current key;
// older keys stay readable until rotated out.
type Sealer struct {
	currentKeyID string
	aeads        map[string]cipher.AEAD
}

func NewSealer(currentKeyID string, keys map[string][]byte) (*Sealer, error) {
	if currentKeyID == "" {
		return nil, fmt.Errorf("current key id is empty")
	}
	if _, ok := keys[currentKeyID]; !ok {
		return nil, fmt.Errorf("current key id %q not found", currentKeyID)
	}
	aeads := make(map[string]cipher.AEAD, len(keys))
	for id, key := range keys {
		if len(key) != 32 {
			return nil, fmt.Errorf("key %q must be 32 bytes", id)
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("new cipher %q: %w", id, err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("new gcm %q: %w", id, err)
		}
		aeads[id] = aead
	}
	return &Sealer{currentKeyID: currentKeyID, aeads: aeads}, nil
}

// Seal encrypts plaintext. additionalData binds the ciphertext to its owner row.
func (s *Sealer) Seal(plaintext, additionalData []byte) (Envelope, error) {
	aead := s.aeads[s.currentKeyID]
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, additionalData)
	return Envelope{
		KeyID:      s.currentKeyID,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ct),
	}, nil
}

func (s *Sealer) Open(env Envelope, additionalData []byte) ([]byte, error) {
	aead, ok := s.aeads[env.KeyID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, env.KeyID)
	}
	nonce, err := base64.StdEncoding.DecodeString(env.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("bad nonce length %d", len(nonce))
	}
	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	pt, err := aead.Open(nil, nonce, ct, additionalData)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return pt, nil
}

// SealString returns the JSON-encoded envelope for value.
func (s *Sealer) SealString(value, additionalData string) (string, error) {
	env, err := s.Seal([]byte(value), []byte(additionalData))
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(b), nil
}

func (s *Sealer) OpenString(raw, additionalData string) (string, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return "", fmt.Errorf("unmarshal envelope: %w", err)
	}
	pt, err := s.Open(env, []byte(additionalData))
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// NeedsRotation reports whether raw was sealed with a key other than the current one.
func (s *Sealer) NeedsRotation(raw string) bool {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return false
	}
	return env.KeyID != s.currentKeyID
}
