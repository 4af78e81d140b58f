// Package calibrate searches for the maximum sustainable client load per
// fault-tolerance parameter by running rounds and adjusting the load with a
// decaying step.
package calibrate

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/nus-sys/neobft-artifact/internal/cluster"
	"github.com/nus-sys/neobft-artifact/internal/config"
	"github.com/nus-sys/neobft-artifact/internal/runner"
)

// RoundRunner runs one benchmark round
type RoundRunner interface {
	Run(book *cluster.Book, p runner.Params) (runner.RoundResult, error)
}

// Recorder receives every round result of a sweep
type Recorder interface {
	Record(crypto string, f, iter int, result runner.RoundResult) error
}

// SearchState is the explicit state threaded through calibration steps
type SearchState struct {
	ClientCount int
	Step        int
}

// Advance returns the next search state. A failed round backs the load off
// by the full step; a successful one halves the step and moves up by it.
// This biases the search toward a sustainable load near the ceiling and
// narrows its oscillation over iterations, but it is a local search, not a
// binary search, and is not guaranteed to find the true maximum.
func Advance(s SearchState, failed bool, cal config.Calibration) SearchState {
	if failed {
		s.ClientCount = max(s.ClientCount-s.Step, cal.MinClients)
		return s
	}
	s.Step = max(s.Step/2, 1)
	s.ClientCount = min(s.ClientCount+s.Step, cal.MaxClients)
	return s
}

// Calibrator sweeps the fault-parameter progression with a fixed runner
type Calibrator struct {
	runner    RoundRunner
	cal       config.Calibration
	recorders []Recorder
}

func New(r RoundRunner, cal config.Calibration, recorders ...Recorder) *Calibrator {
	return &Calibrator{runner: r, cal: cal, recorders: recorders}
}

// Sweep runs the calibration iterations for every fault parameter in the
// configured progression. The search state carries across fault parameters
// rather than resetting: the sustainable load for the next f is expected
// near the previous one. Round failures drive the search; only config and
// setup errors abort the sweep.
func (c *Calibrator) Sweep(book *cluster.Book, crypto string) error {
	state := SearchState{ClientCount: c.cal.StartClients, Step: c.cal.StartStep}
	for _, f := range c.cal.Faults() {
		fmt.Printf("* Evaluate Crypto %s #Replica %d\n", crypto, 3*f+1)
		for iter := 0; iter < c.cal.Iterations; iter++ {
			log.Infof("round f=%d clients=%d", f, state.ClientCount)

			result, err := c.runner.Run(book, runner.Params{F: f, ClientCount: state.ClientCount, Crypto: crypto})
			if err != nil {
				return err
			}
			c.record(crypto, f, iter, result)

			if !result.Failed {
				fmt.Printf("Throughput %g op/sec %s\n", result.Throughput, result.Latency)
			}
			state = Advance(state, result.Failed, c.cal)
		}
	}
	return nil
}

func (c *Calibrator) record(crypto string, f, iter int, result runner.RoundResult) {
	for _, recorder := range c.recorders {
		if err := recorder.Record(crypto, f, iter, result); err != nil {
			log.Warnf("record round f=%d iter=%d: %v", f, iter, err)
		}
	}
}
