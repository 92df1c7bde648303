package envelope

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/oson-apps/notify-engine/pkg/errors"
)

// Decryptor recovers a plaintext secret from a provider-issued ciphertext blob.
// The identity provider encrypts OTP codes and temporary passwords before
// handing them to the hook; callers must treat a failed decrypt as a signal to
// fall back to the provider's own delivery, never as a reason to abort.
type Decryptor interface {
	Decrypt(ctx context.Context, ciphertextB64 string) (string, error)
}

// HTTPDecryptor calls a key-management decrypt endpoint.
type HTTPDecryptor struct {
	endpoint string
	keyID    string
	client   *http.Client
}

type Config struct {
	Endpoint string
	KeyID    string
	Timeout  time.Duration
}

func NewHTTPDecryptor(cfg Config) (*HTTPDecryptor, error) {
	if cfg.Endpoint == "" {
		return nil, apperrors.Config("envelope decryptor endpoint is required", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTPDecryptor{
		endpoint: cfg.Endpoint,
		keyID:    cfg.KeyID,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type decryptRequest struct {
	KeyID          string `json:"key_id,omitempty"`
	CiphertextBlob string `json:"ciphertext_blob"`
}

type decryptResponse struct {
	Plaintext string `json:"plaintext"`
}

func (d *HTTPDecryptor) Decrypt(ctx context.Context, ciphertextB64 string) (string, error) {
	if _, err := base64.StdEncoding.DecodeString(ciphertextB64); err != nil {
		return "", apperrors.DecryptFailed(fmt.Errorf("ciphertext is not valid base64: %w", err))
	}

	body, err := json.Marshal(decryptRequest{KeyID: d.keyID, CiphertextBlob: ciphertextB64})
	if err != nil {
		return "", apperrors.DecryptFailed(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", apperrors.DecryptFailed(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", apperrors.DecryptFailed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", apperrors.DecryptFailed(fmt.Errorf("decrypt endpoint returned %d: %s", resp.StatusCode, raw))
	}

	var out decryptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperrors.DecryptFailed(err)
	}

	// The key service returns the recovered plaintext base64-wrapped.
	plain, err := base64.StdEncoding.DecodeString(out.Plaintext)
	if err != nil {
		return string(out.Plaintext), nil
	}
	return string(plain), nil
}
