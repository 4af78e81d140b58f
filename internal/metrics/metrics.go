package metrics

import (
	"fmt"
	"strconv"
	"strings"
)

// ClientSample is the parsed output of one successful client process
type ClientSample struct {
	Ops     int64
	Latency string
}

// Aggregate is the reduced result of all client samples in a round
type Aggregate struct {
	// Throughput is total operations divided by the measurement window
	Throughput float64
	// Latency is the first client's latency summary; the clients all report
	// the same percentile format, so one sample is kept as representative
	Latency string
}

// ParseClientOutput parses a client's stdout: an integer operation count
// followed by a latency summary line. Anything else is a parse error, which
// the round treats the same as a nonzero exit.
func ParseClientOutput(out string) (ClientSample, error) {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		return ClientSample{}, fmt.Errorf("expected 2 output lines, got %d", len(lines))
	}

	ops, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return ClientSample{}, fmt.Errorf("invalid operation count %q: %w", lines[0], err)
	}

	return ClientSample{Ops: ops, Latency: strings.TrimSpace(lines[1])}, nil
}

// Fold reduces the client samples to an aggregate throughput over the fixed
// measurement window the client binaries run for.
func Fold(samples []ClientSample, windowSeconds int) Aggregate {
	agg := Aggregate{}
	var total int64
	for i, sample := range samples {
		total += sample.Ops
		if i == 0 {
			agg.Latency = sample.Latency
		}
	}
	agg.Throughput = float64(total) / float64(windowSeconds)
	return agg
}
