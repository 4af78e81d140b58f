package cluster

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Role identifies which binary a host runs
type Role string

const (
	RoleSequencer Role = "seq"
	RoleRelay     Role = "relay"
	RoleReplica   Role = "replica"
	RoleClient    Role = "client"
)

// HostEntry is one line of the address file. The public address is used for
// control traffic (ssh), the internal address for intra-cluster traffic.
type HostEntry struct {
	Role     Role
	Public   string
	Internal string
}

// ConfigError marks an address-file problem that cannot be retried
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "cluster: " + e.Reason
}

// Book holds the host entries of an address file in file order
type Book struct {
	entries []HostEntry
}

// ParseAddressFile loads a whitespace-separated `role public internal`
// address list. Blank lines and lines starting with '#' are skipped.
func ParseAddressFile(path string) (*Book, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	book := &Book{}
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, &ConfigError{Reason: fmt.Sprintf("%s:%d: expected 3 fields, got %d", path, lineNum, len(fields))}
		}
		book.entries = append(book.entries, HostEntry{
			Role:     Role(fields[0]),
			Public:   fields[1],
			Internal: fields[2],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return book, nil
}

// Requirements gives the per-role host counts of one round. Exactly one
// sequencer and all available relays are always selected.
type Requirements struct {
	ReplicaCount int
	ClientCount  int
}

// Roster is the immutable host selection of one round
type Roster struct {
	Sequencer HostEntry
	Relays    []HostEntry
	Replicas  []HostEntry
	Clients   []HostEntry
}

// Select filters the book by role and truncates to the requested counts in
// file order. A shortfall for any role is a ConfigError.
func (b *Book) Select(req Requirements) (*Roster, error) {
	roster := &Roster{}
	sequencers := b.byRole(RoleSequencer)
	if len(sequencers) == 0 {
		return nil, &ConfigError{Reason: "no sequencer in address file"}
	}
	roster.Sequencer = sequencers[0]

	roster.Replicas = b.byRole(RoleReplica)
	if len(roster.Replicas) < req.ReplicaCount {
		return nil, &ConfigError{Reason: fmt.Sprintf("need %d replicas, address file has %d", req.ReplicaCount, len(roster.Replicas))}
	}
	roster.Replicas = roster.Replicas[:req.ReplicaCount]

	roster.Clients = b.byRole(RoleClient)
	if len(roster.Clients) < req.ClientCount {
		return nil, &ConfigError{Reason: fmt.Sprintf("need %d clients, address file has %d", req.ClientCount, len(roster.Clients))}
	}
	roster.Clients = roster.Clients[:req.ClientCount]

	roster.Relays = b.byRole(RoleRelay)
	if len(roster.Relays) == 0 {
		return nil, &ConfigError{Reason: "no relays in address file"}
	}

	return roster, nil
}

// Entries returns every host in the address file in file order
func (b *Book) Entries() []HostEntry {
	return b.entries
}

func (b *Book) byRole(role Role) []HostEntry {
	selected := make([]HostEntry, 0)
	for _, entry := range b.entries {
		if entry.Role == role {
			selected = append(selected, entry)
		}
	}
	return selected
}

// All returns every host of the roster, clients first, matching the
// pre-round cleanup order.
func (r *Roster) All() []HostEntry {
	all := make([]HostEntry, 0, len(r.Clients)+len(r.Replicas)+1+len(r.Relays))
	all = append(all, r.Clients...)
	all = append(all, r.Replicas...)
	all = append(all, r.Sequencer)
	all = append(all, r.Relays...)
	return all
}
