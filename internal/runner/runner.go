// Package runner drives one benchmark round: deploy the relay tree and role
// processes across the cluster, run the clients to completion, collect their
// output, and tear everything down.
package runner

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nus-sys/neobft-artifact/internal/cluster"
	"github.com/nus-sys/neobft-artifact/internal/config"
	"github.com/nus-sys/neobft-artifact/internal/metrics"
	"github.com/nus-sys/neobft-artifact/internal/remote"
	"github.com/nus-sys/neobft-artifact/internal/topology"
)

// Params selects the shape of one round
type Params struct {
	F           int
	ClientCount int
	Crypto      string
}

// RoundResult is the terminal outcome of a round. Failed rounds carry no
// throughput; a round only fails after every client has been drained.
type RoundResult struct {
	Failed     bool    `json:"failed"`
	Throughput float64 `json:"throughput"`
	Latency    string  `json:"latency"`
}

// SetupError marks a launch that was asserted to succeed but did not. It
// aborts the round rather than letting it proceed to an inconsistent state.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("round setup: %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// Runner runs rounds against a fixed controller and configuration
type Runner struct {
	ctl remote.Controller
	cfg *config.Config
}

func New(ctl remote.Controller, cfg *config.Config) *Runner {
	return &Runner{ctl: ctl, cfg: cfg}
}

// Run performs one full round. A SetupError aborts the round after
// best-effort cleanup; a RoundResult with Failed set feeds the calibration
// step-down branch and is not an error.
func (r *Runner) Run(book *cluster.Book, p Params) (RoundResult, error) {
	// f replicas keep silence, so 2f+1 run
	roster, err := book.Select(cluster.Requirements{ReplicaCount: 2*p.F + 1, ClientCount: p.ClientCount})
	if err != nil {
		return RoundResult{}, err
	}
	topo, err := topology.Plan(roster.Relays, roster.Replicas)
	if err != nil {
		return RoundResult{}, err
	}

	log.Info("clean up")
	r.killAll(roster.All())

	log.Info("launch sequencer")
	if err := r.launchSequencer(roster.Sequencer, topo.Root, p); err != nil {
		return r.abort(roster, "sequencer", err)
	}

	log.Info("launch relays")
	if err := r.launchRelays(topo); err != nil {
		return r.abort(roster, "relays", err)
	}

	log.Info("launch replicas")
	if err := r.launchReplicas(roster.Replicas, p); err != nil {
		return r.abort(roster, "replicas", err)
	}

	// soft readiness proxy: give multicast membership and the tmux sessions
	// a moment before clients connect
	time.Sleep(time.Duration(r.cfg.SettleSeconds) * time.Second)

	log.Info("launch clients")
	handles, err := r.launchClients(roster, p)
	if err != nil {
		return r.abort(roster, "clients", err)
	}

	log.Info("wait clients")
	for _, handle := range handles {
		handle.Wait()
	}

	log.Info("interrupt sequencer, relays and replicas")
	r.interrupt(roster)

	result := r.collect(handles)

	log.Info("clean up")
	r.killAll(postCleanupHosts(roster))

	return result, nil
}

func (r *Runner) launchSequencer(seq cluster.HostEntry, root cluster.HostEntry, p Params) error {
	// the 2f+1 live replicas each verify 3f+1 signatures, so the sequencer
	// is told the redundant superset count, not the live replica count
	return r.ctl.Launch(seq.Public, r.cfg.SessionName, r.binary("seq"),
		"--multicast", root.Internal,
		"--replica-count", strconv.Itoa(3*p.F+1),
		"--crypto", p.Crypto)
}

func (r *Runner) launchRelays(topo *topology.Topology) error {
	type relayLaunch struct {
		host       cluster.HostEntry
		downstream []cluster.HostEntry
	}
	launches := []relayLaunch{{topo.Root, topo.Layer2}}
	for i, host := range topo.Layer2 {
		launches = append(launches, relayLaunch{host, topo.Layer2Feed[i]})
	}
	for i, host := range topo.Leaves {
		launches = append(launches, relayLaunch{host, topo.LeafReplicas[i]})
	}

	// every relay only needs its downstream addresses, not peer readiness,
	// so the whole tree launches concurrently
	errs := make([]error, len(launches))
	var wg sync.WaitGroup
	for i, launch := range launches {
		i, launch := i, launch
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = r.ctl.Launch(launch.host.Public, r.cfg.SessionName, r.binary("relay"), internals(launch.downstream)...)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (r *Runner) launchReplicas(replicas []cluster.HostEntry, p Params) error {
	errs := make([]error, len(replicas))
	var wg sync.WaitGroup
	for i, replica := range replicas {
		i, replica := i, replica
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = r.ctl.Launch(replica.Public, r.cfg.SessionName, r.binary("replica"),
				"--id", strconv.Itoa(i),
				// the group address is a placeholder; replicas join the
				// multicast group by interface, not by this flag
				"--multicast", r.cfg.MulticastGroup,
				"-f", strconv.Itoa(p.F),
				"--crypto", p.Crypto)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (r *Runner) launchClients(roster *cluster.Roster, p Params) ([]remote.Handle, error) {
	handles := make([]remote.Handle, 0, len(roster.Clients))
	for _, client := range roster.Clients {
		handle, err := r.ctl.LaunchCaptured(client.Public, r.binary("client"),
			"--seq-ip", roster.Sequencer.Internal,
			"-f", strconv.Itoa(p.F))
		if err != nil {
			return nil, err
		}
		handles = append(handles, handle)
	}
	return handles, nil
}

func (r *Runner) interrupt(roster *cluster.Roster) {
	targets := make([]cluster.HostEntry, 0, len(roster.Replicas)+1+len(roster.Relays))
	targets = append(targets, roster.Replicas...)
	targets = append(targets, roster.Sequencer)
	targets = append(targets, roster.Relays...)

	var wg sync.WaitGroup
	for _, target := range targets {
		target := target
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.ctl.Signal(target.Public, r.cfg.SessionName, "C-c")
		}()
	}
	wg.Wait()
}

// collect drains every client before deciding the round outcome. Skipping a
// drain on failure would leave remote output pipes blocked, so the loop
// never short-circuits.
func (r *Runner) collect(handles []remote.Handle) RoundResult {
	samples := make([]metrics.ClientSample, 0, len(handles))
	failed := false
	for i, handle := range handles {
		code := handle.Wait()
		if code != 0 {
			failed = true
			log.Warnf("client %d exited with code %d", i, code)
			if text := strings.TrimSpace(handle.Stderr()); text != "" {
				log.Warn(text)
			}
			continue
		}
		sample, err := metrics.ParseClientOutput(handle.Stdout())
		if err != nil {
			failed = true
			log.Warnf("client %d output: %v", i, err)
			continue
		}
		samples = append(samples, sample)
	}
	if failed {
		return RoundResult{Failed: true}
	}

	agg := metrics.Fold(samples, r.cfg.WindowSeconds)
	return RoundResult{Throughput: agg.Throughput, Latency: agg.Latency}
}

func (r *Runner) killAll(hosts []cluster.HostEntry) {
	var wg sync.WaitGroup
	for _, host := range hosts {
		host := host
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.ctl.KillByName(host.Public, r.cfg.ProcessName); err != nil {
				log.Debugf("cleanup %s: %v", host.Public, err)
			}
		}()
	}
	wg.Wait()
}

func (r *Runner) abort(roster *cluster.Roster, stage string, err error) (RoundResult, error) {
	r.killAll(roster.All())
	return RoundResult{}, &SetupError{Stage: stage, Err: err}
}

func (r *Runner) binary(role string) string {
	return "./" + r.cfg.BinaryPrefix + "-" + role
}

func internals(entries []cluster.HostEntry) []string {
	addrs := make([]string, len(entries))
	for i, entry := range entries {
		addrs[i] = entry.Internal
	}
	return addrs
}

// postCleanupHosts excludes the relays: their sessions already got the
// interrupt and the next round's pre-cleanup sweeps them anyway
func postCleanupHosts(roster *cluster.Roster) []cluster.HostEntry {
	hosts := make([]cluster.HostEntry, 0, len(roster.Clients)+len(roster.Replicas)+1)
	hosts = append(hosts, roster.Clients...)
	hosts = append(hosts, roster.Replicas...)
	hosts = append(hosts, roster.Sequencer)
	return hosts
}
