package metrics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nus-sys/neobft-artifact/internal/metrics"
)

func TestParseClientOutput(t *testing.T) {
	sample, err := metrics.ParseClientOutput("120\n5us\n")
	assert.NoError(t, err)
	assert.Equal(t, int64(120), sample.Ops)
	assert.Equal(t, "5us", sample.Latency)

	// missing trailing newline and padded latency are fine
	sample, err = metrics.ParseClientOutput("80\n  9us ")
	assert.NoError(t, err)
	assert.Equal(t, int64(80), sample.Ops)
	assert.Equal(t, "9us", sample.Latency)
}

func TestParseClientOutputMalformed(t *testing.T) {
	for _, out := range []string{
		"",
		"120\n",
		"120\n5us\nextra\n",
		"not-a-number\n5us\n",
	} {
		_, err := metrics.ParseClientOutput(out)
		assert.Errorf(t, err, "output %q should not parse", out)
	}
}

func TestFold(t *testing.T) {
	samples := []metrics.ClientSample{
		{Ops: 120, Latency: "5us"},
		{Ops: 80, Latency: "9us"},
	}

	agg := metrics.Fold(samples, 10)
	assert.Equal(t, 20.0, agg.Throughput)
	// only the first latency sample is retained
	assert.Equal(t, "5us", agg.Latency)
}
