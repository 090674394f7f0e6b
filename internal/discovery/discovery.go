// internal/discovery/discovery.go
package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"drillx/internal/driver/host"
)

// DiscoveryResult contains information about a discovered hasher-server
type DiscoveryResult struct {
	Address      string `json:"address"`
	IPAddress    string `json:"ip_address"`
	Port         int    `json:"port"`
	Engine       string `json:"engine,omitempty"`
	MaxBatchSize int    `json:"max_batch_size"`
	IsHardware   bool   `json:"is_hardware"`
	LatencyMs    int64  `json:"latency_ms"`
	Responding   bool   `json:"responding"`
	Error        string `json:"error,omitempty"`
}

// DiscoveryConfig holds configuration for network discovery
type DiscoveryConfig struct {
	Subnet          string        `json:"subnet"`           // CIDR notation, e.g., "192.168.1.0/24"
	Port            int           `json:"port"`             // gRPC port to scan (default: 8888)
	Timeout         time.Duration `json:"timeout"`          // Probe timeout per host
	ConcurrentScans int           `json:"concurrent_scans"` // Number of concurrent probes
	SkipLocalhost   bool          `json:"skip_localhost"`   // Skip localhost scanning
}

// NewDiscoveryConfig creates a default discovery configuration. The subnet
// is left empty so the local /24 is scanned.
func NewDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Port:            8888,
		Timeout:         2 * time.Second,
		ConcurrentScans: 20,
	}
}

// DiscoverServers scans the network for hasher-server instances and returns
// one result per probed address
func DiscoverServers(ctx context.Context, config DiscoveryConfig) ([]DiscoveryResult, error) {
	// Get local network to scan if subnet not specified
	if config.Subnet == "" {
		subnet, err := getLocalSubnet()
		if err != nil {
			return nil, fmt.Errorf("failed to determine local subnet: %w", err)
		}
		config.Subnet = subnet
	}
	if config.ConcurrentScans <= 0 {
		config.ConcurrentScans = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = NewDiscoveryConfig().Timeout
	}

	prefix, err := netip.ParsePrefix(config.Subnet)
	if err != nil {
		return nil, fmt.Errorf("invalid subnet %s: %w", config.Subnet, err)
	}
	ips := scanTargets(prefix.Masked(), localAddrs(), config.SkipLocalhost)

	var mu sync.Mutex
	discoveries := make([]DiscoveryResult, 0, len(ips))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.ConcurrentScans)
	for _, ip := range ips {
		ip := ip
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			address := netip.AddrPortFrom(ip, uint16(config.Port)).String()
			result := probeServer(address, ip.String(), config.Port, config.Timeout)

			mu.Lock()
			discoveries = append(discoveries, result)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return discoveries, err
	}

	return discoveries, nil
}

// probeServer attempts to connect to a hasher-server and read its capabilities
func probeServer(address, ipAddress string, port int, timeout time.Duration) DiscoveryResult {
	start := time.Now()
	result := DiscoveryResult{
		Address:   address,
		IPAddress: ipAddress,
		Port:      port,
	}

	remote, err := host.NewRemoteHasher(address, host.WithVerifyTimeout(timeout))
	result.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer remote.Close()

	caps := remote.Capabilities()
	result.Responding = true
	result.Engine = caps.Name
	result.MaxBatchSize = caps.MaxBatchSize
	result.IsHardware = caps.IsHardware

	return result
}

// scanTargets lists the addresses of prefix to probe. The host's own
// addresses are left out; 127.0.0.1 stands in for them unless skipLocal.
func scanTargets(prefix netip.Prefix, local map[netip.Addr]bool, skipLocal bool) []netip.Addr {
	var targets []netip.Addr
	if !skipLocal {
		targets = append(targets, netip.AddrFrom4([4]byte{127, 0, 0, 1}))
	}
	for a := prefix.Addr(); a.IsValid() && prefix.Contains(a); a = a.Next() {
		if a.IsLoopback() || local[a] {
			continue
		}
		targets = append(targets, a)
	}
	return targets
}

// interfaceAddrs returns the unicast addresses of every interface, and
// separately those of interfaces that are up and not loopback
func interfaceAddrs() (all, external []netip.Addr) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, nil
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		up := iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0
		for _, addr := range addrs {
			pfx, err := netip.ParsePrefix(addr.String())
			if err != nil {
				continue
			}
			a := pfx.Addr().Unmap()
			all = append(all, a)
			if up {
				external = append(external, a)
			}
		}
	}
	return all, external
}

func localAddrs() map[netip.Addr]bool {
	all, _ := interfaceAddrs()
	local := make(map[netip.Addr]bool, len(all))
	for _, a := range all {
		local[a] = true
	}
	return local
}

// getLocalSubnet is the /24 around the first external IPv4 address
func getLocalSubnet() (string, error) {
	_, external := interfaceAddrs()
	for _, a := range external {
		if a.Is4() {
			return netip.PrefixFrom(a, 24).Masked().String(), nil
		}
	}
	return "", fmt.Errorf("no suitable network interface found")
}

// batchLimit orders max batch sizes, 0 meaning unlimited
func batchLimit(n int) int {
	if n == 0 {
		return int(^uint(0) >> 1)
	}
	return n
}

// FindBestServer selects the best hasher-server from discovered results:
// hardware first, then the largest batch limit, then the lowest latency
func FindBestServer(discoveries []DiscoveryResult) *DiscoveryResult {
	var best *DiscoveryResult

	for i := range discoveries {
		result := &discoveries[i]

		// Skip non-responding servers
		if !result.Responding {
			continue
		}

		switch {
		case best == nil:
			best = result
		case result.IsHardware != best.IsHardware:
			if result.IsHardware {
				best = result
			}
		case batchLimit(result.MaxBatchSize) != batchLimit(best.MaxBatchSize):
			if batchLimit(result.MaxBatchSize) > batchLimit(best.MaxBatchSize) {
				best = result
			}
		case result.LatencyMs < best.LatencyMs:
			best = result
		}
	}

	return best
}
