package genai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"takeoff-workers/internal/common/logger"
)

func TestRESTProvider_Generate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/ai/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var reqBody map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		assert.Equal(t, "gpt-4o-mini", reqBody["model"])
		assert.Equal(t, "audit these items", reqBody["prompt"])
		assert.Equal(t, true, reqBody["response_json"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"text": `{"reviewed_items":[]}`})
	}))
	defer server.Close()

	provider := NewRESTProvider(server.URL, "test-key", 2, logger.NewNoOpLogger())

	text, err := provider.Generate(context.Background(), &Request{
		Model:      "gpt-4o-mini",
		UserPrompt: "audit these items",
		MaxTokens:  2048,
		ForceJSON:  true,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"reviewed_items":[]}`, text)
}

func TestRESTProvider_Generate_AttachesImages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody restRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))
		require.Len(t, reqBody.Images, 2)
		assert.Equal(t, "https://plans.example.com/p1.png", reqBody.Images[0].URL)
		assert.Equal(t, "image/png", reqBody.Images[0].MimeType)

		json.NewEncoder(w).Encode(map[string]string{"text": "ok"})
	}))
	defer server.Close()

	provider := NewRESTProvider(server.URL, "", 0, logger.NewNoOpLogger())

	text, err := provider.Generate(context.Background(), &Request{
		Model:      "gpt-4o",
		UserPrompt: "rescan these pages",
		Images: []ImageInput{
			{URL: "https://plans.example.com/p1.png", MimeType: "image/png"},
			{URL: "https://plans.example.com/p2.png", MimeType: "image/png"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestRESTProvider_Generate_RetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "recovered"})
	}))
	defer server.Close()

	provider := NewRESTProvider(server.URL, "", 3, logger.NewNoOpLogger())

	text, err := provider.Generate(context.Background(), &Request{
		Model:      "gpt-4o-mini",
		UserPrompt: "hello",
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRESTProvider_Generate_ExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewRESTProvider(server.URL, "", 1, logger.NewNoOpLogger())

	_, err := provider.Generate(context.Background(), &Request{
		Model:      "gpt-4o-mini",
		UserPrompt: "hello",
	})

	assert.ErrorIs(t, err, ErrGenerateFailed)
}

func TestRESTProvider_Generate_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"text": "too late"})
	}))
	defer server.Close()

	provider := NewRESTProvider(server.URL, "", 0, logger.NewNoOpLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := provider.Generate(ctx, &Request{
		Model:      "gpt-4o-mini",
		UserPrompt: "hello",
	})

	assert.ErrorIs(t, err, ErrGenerateTimeout)
}

func TestRESTProvider_Generate_RejectsEmptyText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"text": "   "})
	}))
	defer server.Close()

	provider := NewRESTProvider(server.URL, "", 0, logger.NewNoOpLogger())

	_, err := provider.Generate(context.Background(), &Request{
		Model:      "gpt-4o-mini",
		UserPrompt: "hello",
	})

	assert.ErrorIs(t, err, ErrGenerateFailed)
}
