package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClientWithConfig(Config{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "gemini-test",
		ImageModel: "imagen-test",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	}, nil)
}

func textResponse(text string) string {
	resp := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
					"role":  "model",
				},
				"finishReason": "STOP",
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestChatSend(t *testing.T) {
	var lastReq GenerateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastReq))
		w.Write([]byte(textResponse("ciao")))
	})

	chat := client.NewChat("You are a consultant.", false)
	reply, err := chat.Send(context.Background(), Turn{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "ciao", reply.Text)
	assert.Empty(t, reply.Sources)

	t.Run("system instruction is sent", func(t *testing.T) {
		require.NotNil(t, lastReq.SystemInstruction)
		assert.Equal(t, "You are a consultant.", lastReq.SystemInstruction.Parts[0].Text)
		assert.Empty(t, lastReq.Tools)
	})

	t.Run("history grows one exchange per turn", func(t *testing.T) {
		assert.Equal(t, 2, chat.HistoryLen())

		_, err := chat.Send(context.Background(), Turn{Text: "follow-up"})
		require.NoError(t, err)
		assert.Equal(t, 4, chat.HistoryLen())

		// The second request carries the first exchange plus the new turn.
		require.Len(t, lastReq.Contents, 3)
		assert.Equal(t, "hello", lastReq.Contents[0].Parts[0].Text)
		assert.Equal(t, "model", lastReq.Contents[1].Role)
		assert.Equal(t, "follow-up", lastReq.Contents[2].Parts[0].Text)
	})
}

func TestChatSendWithImage(t *testing.T) {
	var lastReq GenerateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastReq))
		w.Write([]byte(textResponse("a chart")))
	})

	chat := client.NewChat("base", false)
	_, err := chat.Send(context.Background(), Turn{
		Text:  "what do you see in this image?",
		Image: &ImagePayload{MIMEType: "image/png", Data: []byte{1, 2, 3}},
	})
	require.NoError(t, err)

	parts := lastReq.Contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MIMEType)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), parts[1].InlineData.Data)
}

func TestChatWebSearchGrounding(t *testing.T) {
	var lastReq GenerateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&lastReq))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"grounded"}],"role":"model"},
			"groundingMetadata":{"groundingChunks":[
				{"web":{"uri":"https://example.com/aml","title":"AML Directive"}},
				{"web":{"uri":"","title":"dropped"}}
			]}}]}`))
	})

	chat := client.NewChat("base", true)
	reply, err := chat.Send(context.Background(), Turn{Text: "latest AML rules"})
	require.NoError(t, err)

	require.Len(t, lastReq.Tools, 1)
	require.NotNil(t, lastReq.Tools[0].GoogleSearch)

	require.Len(t, reply.Sources, 1)
	assert.Equal(t, "AML Directive", reply.Sources[0].Title)
	assert.Equal(t, "https://example.com/aml", reply.Sources[0].URL)
}

func TestRateLimitError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	chat := client.NewChat("base", false)
	_, err := chat.Send(context.Background(), Turn{Text: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRetryOnServerError(t *testing.T) {
	attempts := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(textResponse("recovered")))
	})

	chat := client.NewChat("base", false)
	reply, err := chat.Send(context.Background(), Turn{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", reply.Text)
	assert.Equal(t, 2, attempts)
}

func TestGenerateStructured(t *testing.T) {
	t.Run("passes schema and strips fences", func(t *testing.T) {
		var lastReq GenerateRequest
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&lastReq))
			w.Write([]byte(textResponse("```json\n{\"slides\":[]}\n```")))
		})

		schema := map[string]any{"type": "object"}
		raw, err := client.GenerateStructured(context.Background(), "make slides", schema)
		require.NoError(t, err)
		assert.JSONEq(t, `{"slides":[]}`, string(raw))

		require.NotNil(t, lastReq.GenerationConfig)
		assert.Equal(t, "application/json", lastReq.GenerationConfig.ResponseMimeType)
		assert.Equal(t, "object", lastReq.GenerationConfig.ResponseSchema["type"])
	})

	t.Run("empty output is an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(textResponse("   ")))
		})
		_, err := client.GenerateStructured(context.Background(), "make slides", nil)
		require.Error(t, err)
	})
}

func TestGenerateImage(t *testing.T) {
	payload := []byte("fake-png-bytes")

	t.Run("decodes single prediction", func(t *testing.T) {
		var lastReq PredictRequest
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&lastReq))
			json.NewEncoder(w).Encode(map[string]any{
				"predictions": []any{map[string]any{
					"bytesBase64Encoded": base64.StdEncoding.EncodeToString(payload),
					"mimeType":           "image/png",
				}},
			})
		})

		data, err := client.GenerateImage(context.Background(), "a tidy office", ImageOptions{AspectRatio: "16:9"})
		require.NoError(t, err)
		assert.Equal(t, payload, data)

		require.Len(t, lastReq.Instances, 1)
		assert.Equal(t, "a tidy office", lastReq.Instances[0].Prompt)
		assert.Equal(t, 1, lastReq.Parameters.SampleCount)
		assert.Equal(t, "16:9", lastReq.Parameters.AspectRatio)
	})

	t.Run("no predictions is an error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"predictions":[]}`))
		})
		_, err := client.GenerateImage(context.Background(), "p", ImageOptions{})
		require.Error(t, err)
	})
}

func TestCleanJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSON(`{"a":1}`))
}
