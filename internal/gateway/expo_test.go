package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func expoOK(ids ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tickets := make([]map[string]interface{}, len(ids))
		for i, id := range ids {
			tickets[i] = map[string]interface{}{"status": "ok", "id": id}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": tickets})
	}
}

func TestExpoSendSuccess(t *testing.T) {
	var gotTo string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var items []struct {
			To string `json:"to"`
		}
		_ = json.NewDecoder(r.Body).Decode(&items)
		gotTo = items[0].To
		expoOK("ticket-1")(w, r)
	}))
	defer srv.Close()

	e := NewExpo(ExpoConfig{Endpoint: srv.URL, Retry: fastRetry}, testLogger())
	out := e.Send(context.Background(), "ExponentPushToken[abc]", Message{Title: "hi", Body: "there"})

	assert.True(t, out.Success)
	assert.Equal(t, "ExponentPushToken[abc]", gotTo)
	assert.Equal(t, "ticket-1", out.ProviderMessageID)
}

func TestExpoDeviceNotRegisteredIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{
				"status":  "error",
				"message": "device gone",
				"details": map[string]string{"error": "DeviceNotRegistered"},
			}},
		})
	}))
	defer srv.Close()

	e := NewExpo(ExpoConfig{Endpoint: srv.URL, Retry: fastRetry}, testLogger())
	out := e.Send(context.Background(), "ExponentPushToken[gone]", Message{Body: "hi"})

	assert.False(t, out.Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Contains(t, out.Reason, "DeviceNotRegistered")
}

func TestExpoSendBulkChunks(t *testing.T) {
	var requests int32
	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		var items []map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&items)
		sizes = append(sizes, len(items))

		tickets := make([]map[string]interface{}, len(items))
		for i := range items {
			tickets[i] = map[string]interface{}{"status": "ok", "id": fmt.Sprintf("t-%d", i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": tickets})
	}))
	defer srv.Close()

	e := NewExpo(ExpoConfig{Endpoint: srv.URL, ChunkSize: 2, Retry: fastRetry}, testLogger())

	recipients := []string{
		"ExponentPushToken[a]",
		"ExponentPushToken[b]",
		"ExponentPushToken[c]",
		"ExponentPushToken[d]",
		"ExponentPushToken[e]",
	}
	outcomes := e.SendBulk(context.Background(), recipients, Message{Body: "hi"})

	assert.Equal(t, int32(3), atomic.LoadInt32(&requests), "five recipients at chunk size two need three requests")
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Len(t, outcomes, len(recipients), "one outcome per recipient, in order")
	for _, out := range outcomes {
		assert.True(t, out.Success)
	}
}

func TestExpoSendBulkMixedTickets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"status": "ok", "id": "t-1"},
				{
					"status":  "error",
					"message": "gone",
					"details": map[string]string{"error": "DeviceNotRegistered"},
				},
			},
		})
	}))
	defer srv.Close()

	e := NewExpo(ExpoConfig{Endpoint: srv.URL, Retry: fastRetry}, testLogger())
	outcomes := e.SendBulk(context.Background(), []string{"ExponentPushToken[a]", "ExponentPushToken[b]"}, Message{Body: "hi"})

	assert.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Success)
	assert.False(t, outcomes[1].Success)
	assert.Contains(t, outcomes[1].Reason, "DeviceNotRegistered")
}

func TestExpoChunkSizeClamped(t *testing.T) {
	e := NewExpo(ExpoConfig{ChunkSize: 500}, testLogger())
	assert.Equal(t, 100, e.cfg.ChunkSize)
}
