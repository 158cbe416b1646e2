// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/evidence-engine/pkg/types"
)

func TestRecorderAdapterCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.AdapterCall(AdapterEvent{Source: types.SourcePubMed, Latency: 120 * time.Millisecond, Count: 7, Status: StatusOK})
	r.AdapterCall(AdapterEvent{Source: types.SourcePubMed, Latency: time.Second, Status: StatusTimeout})
	r.AdapterCall(AdapterEvent{Source: types.SourceEuropePMC, Latency: 80 * time.Millisecond, Count: 3, Status: StatusOK})

	assert.Equal(t, 7.0, testutil.ToFloat64(r.adapterResults.WithLabelValues("pubmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.adapterCalls.WithLabelValues("pubmed", StatusTimeout)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.adapterCalls.WithLabelValues("europepmc", StatusOK)))
	assert.Equal(t, 3, testutil.CollectAndCount(r.adapterLatency))
}

func TestRecorderAnswer(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.Answer(nil)
	r.Answer(&types.Answer{
		Status:       types.StatusVerified,
		Verification: &types.VerificationResult{Passed: true},
		Metadata:     types.AnswerMetadata{GroundingScore: 0.9, CostUSD: 0.02, FallbackUsed: true, Elapsed: 3 * time.Second},
	})
	r.Answer(&types.Answer{Status: types.StatusInsufficientEvidence})

	assert.Equal(t, 1.0, testutil.ToFloat64(r.answers.WithLabelValues("verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.answers.WithLabelValues("insufficient_evidence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fallbacks))
	assert.InDelta(t, 0.02, testutil.ToFloat64(r.cost), 1e-9)
}

func TestNewRecorder_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)
	_, err = NewRecorder(reg)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)
	r.AdapterCall(AdapterEvent{Source: types.SourceDailyMed, Status: StatusOK, Count: 1})

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `evidence_adapter_calls_total{source="dailymed",status="ok"} 1`)
}
