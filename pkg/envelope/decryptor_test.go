package envelope

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/oson-apps/notify-engine/pkg/errors"
)

func TestDecryptRoundTrip(t *testing.T) {
	var gotKeyID, gotBlob string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			KeyID          string `json:"key_id"`
			CiphertextBlob string `json:"ciphertext_blob"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotKeyID, gotBlob = req.KeyID, req.CiphertextBlob
		_ = json.NewEncoder(w).Encode(map[string]string{
			"plaintext": base64.StdEncoding.EncodeToString([]byte("123456")),
		})
	}))
	defer srv.Close()

	d, err := NewHTTPDecryptor(Config{Endpoint: srv.URL, KeyID: "notify-codes"})
	require.NoError(t, err)

	ciphertext := base64.StdEncoding.EncodeToString([]byte("encrypted"))
	plain, err := d.Decrypt(context.Background(), ciphertext)

	require.NoError(t, err)
	assert.Equal(t, "123456", plain)
	assert.Equal(t, "notify-codes", gotKeyID)
	assert.Equal(t, ciphertext, gotBlob)
}

func TestDecryptRejectsInvalidBase64(t *testing.T) {
	d, err := NewHTTPDecryptor(Config{Endpoint: "http://unreachable.invalid"})
	require.NoError(t, err)

	_, err = d.Decrypt(context.Background(), "not base64 !!!")
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrDecryptFailed, apperrors.CodeOf(err))
}

func TestDecryptEndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	d, err := NewHTTPDecryptor(Config{Endpoint: srv.URL})
	require.NoError(t, err)

	_, err = d.Decrypt(context.Background(), base64.StdEncoding.EncodeToString([]byte("x")))
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrDecryptFailed, apperrors.CodeOf(err))
}

func TestNewHTTPDecryptorRequiresEndpoint(t *testing.T) {
	_, err := NewHTTPDecryptor(Config{})
	assert.Error(t, err)
}
