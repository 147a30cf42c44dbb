package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenAIModes(t *testing.T) {
	var requests []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)

		w.Header().Set("content-type", "application/json")
		io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"action\":\"answer\",\"text\":\"hallo\"}"},"finish_reason":"stop"}]}`)
	}))
	defer server.Close()

	model, err := New(context.Background(), Config{
		Provider: "openai",
		APIKey:   "secret",
		BaseURL:  server.URL + "/",
	})
	require.NoError(t, err)

	out, err := model.Generate(context.Background(), "vraag", ModeDecision)
	require.NoError(t, err)
	require.Equal(t, `{"action":"answer","text":"hallo"}`, out)

	_, err = model.Generate(context.Background(), "vraag", ModeAnswer)
	require.NoError(t, err)

	require.Len(t, requests, 2)
	require.Equal(t, DefaultOpenAIModel, requests[0]["model"])
	require.InDelta(t, 0.1, requests[0]["temperature"], 0.0001)
	require.Equal(t, map[string]any{"type": "json_object"}, requests[0]["response_format"])

	require.InDelta(t, 0.7, requests[1]["temperature"], 0.0001)
	require.NotContains(t, requests[1], "response_format")
}

func TestOpenAIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	model := NewOpenAI(Config{APIKey: "wrong", BaseURL: server.URL})
	_, err := model.Generate(context.Background(), "vraag", ModeAnswer)
	require.Error(t, err)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: "gemini"})
	require.Error(t, err)

	_, err = New(context.Background(), Config{Provider: "claude", APIKey: "x"})
	require.Error(t, err)
}

func TestModeTemperature(t *testing.T) {
	require.Equal(t, float32(0.1), ModeDecision.temperature())
	require.Equal(t, float32(0.7), ModeAnswer.temperature())
	require.Equal(t, "decision", ModeDecision.String())
}

func geminiServer(t *testing.T, response string, requests *[]map[string]any) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/models/"+DefaultGeminiModel+":generateContent"), r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*requests = append(*requests, body)

		w.Header().Set("content-type", "application/json")
		io.WriteString(w, response)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGeminiModes(t *testing.T) {
	var requests []map[string]any
	server := geminiServer(t, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"action\":\"fetch\",\"url\":\"/1/contracts/42\"}"}]},"finishReason":"STOP"}]}`, &requests)

	model, err := New(context.Background(), Config{
		APIKey:  "secret",
		BaseURL: server.URL,
	})
	require.NoError(t, err)

	out, err := model.Generate(context.Background(), "vraag", ModeDecision)
	require.NoError(t, err)
	require.Equal(t, `{"action":"fetch","url":"/1/contracts/42"}`, out)

	_, err = model.Generate(context.Background(), "vraag", ModeAnswer)
	require.NoError(t, err)

	require.Len(t, requests, 2)

	decision, ok := requests[0]["generationConfig"].(map[string]any)
	require.True(t, ok, requests[0])
	require.InDelta(t, 0.1, decision["temperature"], 0.0001)
	require.Equal(t, "application/json", decision["responseMimeType"])

	answer, ok := requests[1]["generationConfig"].(map[string]any)
	require.True(t, ok, requests[1])
	require.InDelta(t, 0.7, answer["temperature"], 0.0001)
	require.NotContains(t, answer, "responseMimeType")

	contents, err := json.Marshal(requests[0]["contents"])
	require.NoError(t, err)
	require.Contains(t, string(contents), "vraag")
}

func TestGeminiNoCandidates(t *testing.T) {
	var requests []map[string]any
	server := geminiServer(t, `{"candidates":[]}`, &requests)

	model, err := NewGemini(context.Background(), Config{APIKey: "secret", BaseURL: server.URL})
	require.NoError(t, err)

	out, err := model.Generate(context.Background(), "vraag", ModeAnswer)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Len(t, requests, 1)
}

func TestGeminiError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`)
	}))
	defer server.Close()

	model, err := NewGemini(context.Background(), Config{APIKey: "wrong", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = model.Generate(context.Background(), "vraag", ModeDecision)
	require.Error(t, err)
}
