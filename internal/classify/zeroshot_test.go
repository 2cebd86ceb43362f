package classify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zeroShotStub struct {
	calls   int
	path    string
	auth    string
	request zeroShotRequest
	status  int
	body    string
}

func (s *zeroShotStub) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls++
		s.path = r.URL.Path
		s.auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&s.request); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if s.status != 0 {
			http.Error(w, "model is loading", s.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, s.body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newZeroShot(t *testing.T, stub *zeroShotStub, cfg ZeroShotConfig) *ZeroShot {
	t.Helper()
	srv := stub.serve(t)
	cfg.URL = srv.URL + "/models/"
	if cfg.Labels == nil {
		cfg.Labels = DefaultLabels
	}
	z, err := NewZeroShot(cfg)
	require.NoError(t, err)
	return z
}

func TestZeroShot_PipelineShape(t *testing.T) {
	stub := &zeroShotStub{body: `{"sequence":"milk bread","labels":["Groceries","Restaurants","Health"],"scores":[0.81,0.12,0.07]}`}
	z := newZeroShot(t, stub, ZeroShotConfig{Token: "hf_secret"})

	got, err := z.Predict(context.Background(), "MILK BREAD EGGS BUTTER")
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got)

	assert.Equal(t, "/models/cross-encoder/nli-distilroberta-base", stub.path)
	assert.Equal(t, "Bearer hf_secret", stub.auth)
	assert.Equal(t, "MILK BREAD EGGS BUTTER", stub.request.Inputs)
	assert.Equal(t, DefaultLabels, stub.request.Parameters.CandidateLabels)
	assert.Equal(t, HypothesisTemplate, stub.request.Parameters.HypothesisTemplate)
	assert.False(t, stub.request.Parameters.MultiLabel)
}

func TestZeroShot_RouterShape(t *testing.T) {
	stub := &zeroShotStub{body: `[{"label":"Transport","score":0.2},{"label":"Electronics","score":0.7},{"label":"Health","score":0.1}]`}
	z := newZeroShot(t, stub, ZeroShotConfig{})

	got, err := z.Predict(context.Background(), "USB cable charger")
	require.NoError(t, err)
	assert.Equal(t, "Electronics", got)
	assert.Empty(t, stub.auth)
}

func TestZeroShot_NestedPipelineShape(t *testing.T) {
	stub := &zeroShotStub{body: `[{"sequence":"x","labels":["Health","Groceries"],"scores":[0.6,0.4]}]`}
	z := newZeroShot(t, stub, ZeroShotConfig{})

	got, err := z.Predict(context.Background(), "pharmacy aspirin")
	require.NoError(t, err)
	assert.Equal(t, "Health", got)
}

func TestZeroShot_UnknownLabel(t *testing.T) {
	stub := &zeroShotStub{body: `{"labels":["Jewellery","Groceries"],"scores":[0.9,0.1]}`}
	z := newZeroShot(t, stub, ZeroShotConfig{})

	got, err := z.Predict(context.Background(), "gold ring")
	require.NoError(t, err)
	assert.Equal(t, OtherLabel, got)
}

func TestZeroShot_CaseInsensitiveLabel(t *testing.T) {
	stub := &zeroShotStub{body: `{"labels":["restaurants"],"scores":[0.9]}`}
	z := newZeroShot(t, stub, ZeroShotConfig{})

	got, err := z.Predict(context.Background(), "pizza margherita")
	require.NoError(t, err)
	assert.Equal(t, "Restaurants", got)
}

func TestZeroShot_ShortTextSkipsModel(t *testing.T) {
	stub := &zeroShotStub{body: `{"labels":["Groceries"],"scores":[1]}`}
	z := newZeroShot(t, stub, ZeroShotConfig{})

	for _, text := range []string{"", "  ", "ab"} {
		got, err := z.Predict(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, OtherLabel, got)
	}
	assert.Zero(t, stub.calls)
}

func TestZeroShot_Health(t *testing.T) {
	stub := &zeroShotStub{body: `{"labels":["Groceries","Health"],"scores":[0.9,0.1]}`}
	z := newZeroShot(t, stub, ZeroShotConfig{})

	require.NoError(t, z.Health(context.Background()))
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, warmUpText, stub.request.Inputs)

	down := newZeroShot(t, &zeroShotStub{status: http.StatusServiceUnavailable}, ZeroShotConfig{})
	assert.Error(t, down.Health(context.Background()))
}

func TestZeroShot_Errors(t *testing.T) {
	tests := []struct {
		name string
		stub *zeroShotStub
	}{
		{"status", &zeroShotStub{status: http.StatusServiceUnavailable}},
		{"not json", &zeroShotStub{body: `<html>`}},
		{"empty", &zeroShotStub{body: ``}},
		{"no scores", &zeroShotStub{body: `{"labels":[],"scores":[]}`}},
		{"mismatched", &zeroShotStub{body: `{"labels":["Health","Groceries"],"scores":[0.5]}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := newZeroShot(t, tt.stub, ZeroShotConfig{})
			_, err := z.Predict(context.Background(), "some receipt text")
			assert.Error(t, err)
		})
	}
}

func TestNewZeroShot_Validation(t *testing.T) {
	_, err := NewZeroShot(ZeroShotConfig{})
	assert.ErrorIs(t, err, ErrNoLabels)

	_, err = NewZeroShot(ZeroShotConfig{Labels: DefaultLabels, Template: "no placeholder"})
	assert.Error(t, err)

	z, err := NewZeroShot(ZeroShotConfig{Labels: []string{"A", "B"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultZeroShotURL+"/"+DefaultZeroShotModel, z.endpoint)
	assert.Equal(t, []string{"A", "B"}, z.Labels())
}

func TestBestLabel_TieKeepsFirst(t *testing.T) {
	got, err := bestLabel([]byte(`{"labels":["Health","Groceries"],"scores":[0.5,0.5]}`))
	require.NoError(t, err)
	assert.Equal(t, "Health", got)
}
