package results_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nus-sys/neobft-artifact/internal/results"
	"github.com/nus-sys/neobft-artifact/internal/runner"
)

func TestRecordAndList(t *testing.T) {
	store, err := results.Open(filepath.Join(t.TempDir(), "results.db"))
	assert.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Record("siphash", 1, 0, runner.RoundResult{Throughput: 20, Latency: "5us"}))
	assert.NoError(t, store.Record("siphash", 1, 1, runner.RoundResult{Failed: true}))
	assert.NoError(t, store.Record("hmac", 1, 0, runner.RoundResult{Throughput: 12, Latency: "8us"}))

	recorded, err := store.List("siphash")
	assert.NoError(t, err)
	assert.Len(t, recorded, 2)
	assert.Equal(t, runner.RoundResult{Throughput: 20, Latency: "5us"}, recorded["f=01/iter=00"])
	assert.True(t, recorded["f=01/iter=01"].Failed)

	unknown, err := store.List("secp256k1")
	assert.NoError(t, err)
	assert.Empty(t, unknown)
}

func TestRecordOverwritesIteration(t *testing.T) {
	store, err := results.Open(filepath.Join(t.TempDir(), "results.db"))
	assert.NoError(t, err)
	defer store.Close()

	assert.NoError(t, store.Record("siphash", 5, 2, runner.RoundResult{Failed: true}))
	assert.NoError(t, store.Record("siphash", 5, 2, runner.RoundResult{Throughput: 42, Latency: "7us"}))

	recorded, err := store.List("siphash")
	assert.NoError(t, err)
	assert.Len(t, recorded, 1)
	assert.Equal(t, 42.0, recorded["f=05/iter=02"].Throughput)
}
