package jm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/caianbenedicto/spitz/cmn/nlog"
	"github.com/caianbenedicto/spitz/wire"
)

// Proxy is a named relay gateway parsed from a "proxy" line. Nodes
// behind one are recorded for completeness but never dialed (spec
// Non-goal: proxy/relay routing is reserved grammar only).
type Proxy struct {
	Name     string
	Protocol string
	Address  string
	Port     int
}

// Member is one reachable task manager: its dial address/port and the
// protocol-less endpoint constructor args, keyed by "host:port" in the
// fleet map exactly as jm.py keys tms by the raw "host:port" string.
type Member struct {
	Address string
	Port    int
}

const defaultNodeFile = "nodes.txt"

// Fleet is the active task-manager membership, in file order (jm.py's
// dicts preserve insertion order; the Go rendition keeps that order
// explicit so push/pull cycle through TMs deterministically).
type Fleet struct {
	Order []string
	byName map[string]Member
}

func (f Fleet) Len() int { return len(f.Order) }

// Each iterates members in file order, exactly as the push and pull
// engines' "for name, tm in tmlist.items()" loops do.
func (f Fleet) Each(fn func(name string, m Member)) {
	for _, name := range f.Order {
		fn(name, f.byName[name])
	}
}

// fleetCache remembers the last file this loader successfully parsed,
// by content hash, so a re-read of an unchanged fleet file doesn't
// re-log "Loaded N task managers" every cycle.
type fleetCache struct {
	sum    uint64
	hasSum bool
	fleet  Fleet
}

func newFleetCache() *fleetCache { return &fleetCache{} }

// Load re-reads the node list from filename (defaulting to "nodes.txt"
// in the current directory) and returns the active fleet. If the file
// cannot be read it logs a warning and returns an empty fleet, mirroring
// load_tm_list's bare except; a malformed proxy or node line is logged and
// skipped, and the remaining lines are still loaded.
func (c *fleetCache) Load(filename string) Fleet {
	if filename == "" {
		filename = defaultNodeFile
	}

	raw, err := os.ReadFile(filename)
	if err != nil {
		nlog.Warningf("could not load the list of task managers: %v", err)
		return Fleet{byName: map[string]Member{}}
	}

	sum := xxhash.Checksum64(raw)
	if c.hasSum && sum == c.sum {
		return c.fleet
	}

	proxies := make(map[string]Proxy)
	byName := make(map[string]Member)
	var order []string

	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "proxy"):
			p, err := parseProxy(line)
			if err != nil {
				nlog.Warningf("malformed proxy line %q: %v", line, err)
				continue
			}
			proxies[p.Name] = p
			nlog.Infof("proxy %s.", p.Name)

		case strings.HasPrefix(line, "node"):
			name, m, err := parseNode(line, proxies)
			if err != nil {
				nlog.Warningf("malformed node line %q: %v", line, err)
				continue
			}
			if name == "" {
				// behind a proxy, reserved grammar only
				continue
			}
			if _, dup := byName[name]; !dup {
				order = append(order, name)
			}
			byName[name] = m
		}
	}

	fleet := Fleet{Order: order, byName: byName}
	nlog.Infof("loaded %d task managers.", len(order))
	c.sum, c.hasSum, c.fleet = sum, true, fleet
	return fleet
}

// parseProxy parses "proxy <name> <protocol>:<address>:<port>".
func parseProxy(line string) (Proxy, error) {
	f := strings.Fields(line)
	if len(f) != 3 {
		return Proxy{}, fmt.Errorf("expected 3 fields, got %d", len(f))
	}
	gate := strings.Split(f[2], ":")
	if len(gate) != 3 {
		return Proxy{}, fmt.Errorf("expected protocol:address:port, got %q", f[2])
	}
	port, err := strconv.Atoi(gate[2])
	if err != nil {
		return Proxy{}, fmt.Errorf("bad port %q: %w", gate[2], err)
	}
	return Proxy{Name: f[1], Protocol: gate[0], Address: gate[1], Port: port}, nil
}

// parseNode parses "node <host>:<port>" or "node <host>:<port> through
// <proxy>". The latter resolves against proxies and is reported as
// skipped: it returns an empty name and a zero Member since proxied
// routing isn't dialed.
func parseNode(line string, proxies map[string]Proxy) (name string, m Member, err error) {
	f := strings.Fields(line)
	if len(f) < 2 {
		return "", Member{}, fmt.Errorf("expected at least 2 fields, got %d", len(f))
	}

	hostport := f[1]
	host := strings.Split(hostport, ":")
	if len(host) != 2 {
		return "", Member{}, fmt.Errorf("expected host:port, got %q", hostport)
	}
	port, err := strconv.Atoi(host[1])
	if err != nil {
		return "", Member{}, fmt.Errorf("bad port %q: %w", host[1], err)
	}

	switch len(f) {
	case 2:
		return hostport, Member{Address: host[0], Port: port}, nil
	case 4:
		if f[2] != "through" {
			return "", Member{}, fmt.Errorf("expected 'through', got %q", f[2])
		}
		if _, ok := proxies[f[3]]; !ok {
			return "", Member{}, fmt.Errorf("unknown proxy %q", f[3])
		}
		nlog.Infof("node %s is behind a proxy and will be ignored.", hostport)
		return "", Member{}, nil
	default:
		return "", Member{}, fmt.Errorf("unrecognized node line shape (%d fields)", len(f))
	}
}

// dialEndpoint builds the wire.Endpoint a Member dials through.
func (m Member) dialEndpoint() wire.Endpoint {
	return wire.NewDialEndpoint(m.Address, m.Port)
}
