package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatStub struct {
	calls    int
	model    string
	messages []map[string]any
	reply    string
	status   int
	known    []string
}

func (s *chatStub) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, model, ok := strings.Cut(r.URL.Path, "/models/"); ok {
			for _, m := range s.known {
				if m == model {
					w.Header().Set("Content-Type", "application/json")
					fmt.Fprintf(w, `{"id":%q,"object":"model","created":1700000000,"owned_by":"system"}`, m)
					return
				}
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"message":"model not found","type":"invalid_request_error"}}`)
			return
		}
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		s.calls++
		var req struct {
			Model    string           `json:"model"`
			Messages []map[string]any `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.model = req.Model
		s.messages = req.Messages

		if s.status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(s.status)
			fmt.Fprint(w, `{"error":{"message":"bad request","type":"invalid_request_error"}}`)
			return
		}

		content, _ := json.Marshal(s.reply)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":%q,
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":%s}}]}`,
			req.Model, content)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOpenAI(t *testing.T, stub *chatStub) *OpenAI {
	t.Helper()
	srv := stub.serve(t)
	o, err := NewOpenAI(OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL + "/v1/",
		Labels:  DefaultLabels,
	})
	require.NoError(t, err)
	return o
}

func TestOpenAI_Predict(t *testing.T) {
	stub := &chatStub{reply: "groceries."}
	o := newOpenAI(t, stub)

	got, err := o.Predict(context.Background(), "MILK BREAD EGGS")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got)

	assert.Equal(t, DefaultOpenAIModel, stub.model)
	require.Len(t, stub.messages, 2)
	assert.Equal(t, "system", stub.messages[0]["role"])
	assert.Contains(t, stub.messages[0]["content"], "Groceries, Transport")
	assert.Equal(t, "user", stub.messages[1]["role"])
	assert.Equal(t, "MILK BREAD EGGS", stub.messages[1]["content"])
}

func TestOpenAI_UnknownAnswer(t *testing.T) {
	stub := &chatStub{reply: "Pet supplies"}
	o := newOpenAI(t, stub)

	got, err := o.Predict(context.Background(), "dog food")
	require.NoError(t, err)
	assert.Equal(t, OtherLabel, got)
}

func TestOpenAI_ShortTextSkipsModel(t *testing.T) {
	stub := &chatStub{reply: "Groceries"}
	o := newOpenAI(t, stub)

	got, err := o.Predict(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, OtherLabel, got)
	assert.Zero(t, stub.calls)
}

func TestOpenAI_Error(t *testing.T) {
	stub := &chatStub{status: http.StatusBadRequest}
	o := newOpenAI(t, stub)

	_, err := o.Predict(context.Background(), "receipt text")
	assert.Error(t, err)
}

func TestOpenAI_Health(t *testing.T) {
	o := newOpenAI(t, &chatStub{known: []string{DefaultOpenAIModel}})
	assert.NoError(t, o.Health(context.Background()))

	o = newOpenAI(t, &chatStub{known: []string{"gpt-4.1"}})
	err := o.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), DefaultOpenAIModel)
}

func TestNewOpenAI_Validation(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{Labels: DefaultLabels})
	assert.Error(t, err)

	_, err = NewOpenAI(OpenAIConfig{APIKey: "k"})
	assert.ErrorIs(t, err, ErrNoLabels)
}

func TestCleanAnswer(t *testing.T) {
	assert.Equal(t, "Groceries", cleanAnswer(" \"Groceries\".\n"))
	assert.Equal(t, "Health", cleanAnswer("Health\nBecause the receipt lists aspirin."))
	assert.Equal(t, "", cleanAnswer("  "))
}
