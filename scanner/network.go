package scanner

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

// HostInfo aggregates the responses served by one host.
type HostInfo struct {
	Host     string `json:"host"`
	Requests int    `json:"requests"`
	Bytes    int64  `json:"bytes"`
	External bool   `json:"external"`
}

// NetworkStats splits hosts into the page's own and third parties.
type NetworkStats struct {
	TotalHosts    int `json:"total_hosts"`
	InternalHosts int `json:"internal_hosts"`
	ExternalHosts int `json:"external_hosts"`
	// ExternalBytes is the share of the transfer served by third parties.
	ExternalBytes int64 `json:"external_bytes"`
}

// NetworkMetrics is the page-load summary from the passive response listener.
type NetworkMetrics struct {
	Requests      int            `json:"requests"`
	TransferBytes int64          `json:"transfer_bytes"`
	ByType        map[string]int `json:"by_type"`
	Hosts         []HostInfo     `json:"hosts"`
	Stats         NetworkStats   `json:"stats"`
}

// networkCollector accumulates ResponseEvents. It is safe for concurrent use.
type networkCollector struct {
	mu         sync.Mutex
	targetHost string
	requests   int
	bytes      int64
	byType     map[string]int
	hosts      map[string]*HostInfo
}

func newNetworkCollector(targetURL string) *networkCollector {
	host := ""
	if u, err := url.Parse(targetURL); err == nil {
		host = strings.ToLower(u.Hostname())
	}
	return &networkCollector{
		targetHost: host,
		byType:     make(map[string]int),
		hosts:      make(map[string]*HostInfo),
	}
}

func (c *networkCollector) observe(ev ResponseEvent) {
	u, err := url.Parse(ev.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests++
	c.bytes += ev.Bytes
	if ev.ResourceType != "" {
		c.byType[ev.ResourceType]++
	}

	h := c.hosts[host]
	if h == nil {
		h = &HostInfo{Host: host, External: isExternalHost(host, c.targetHost)}
		c.hosts[host] = h
	}
	h.Requests++
	h.Bytes += ev.Bytes
}

func (c *networkCollector) snapshot() NetworkMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := NetworkMetrics{
		Requests:      c.requests,
		TransferBytes: c.bytes,
		ByType:        make(map[string]int, len(c.byType)),
		Hosts:         make([]HostInfo, 0, len(c.hosts)),
	}
	for k, v := range c.byType {
		out.ByType[k] = v
	}
	for _, h := range c.hosts {
		out.Hosts = append(out.Hosts, *h)
	}

	sort.Slice(out.Hosts, func(i, j int) bool {
		if out.Hosts[i].External != out.Hosts[j].External {
			return out.Hosts[i].External
		}
		if out.Hosts[i].Requests != out.Hosts[j].Requests {
			return out.Hosts[i].Requests > out.Hosts[j].Requests
		}
		return out.Hosts[i].Host < out.Hosts[j].Host
	})

	out.Stats = calculateStats(out.Hosts)
	return out
}

// isExternalHost treats subdomains and parent domains of the target as internal.
func isExternalHost(host, target string) bool {
	if target == "" {
		return true
	}
	return host != target &&
		!strings.HasSuffix(host, "."+target) &&
		!strings.HasSuffix(target, "."+host)
}

func calculateStats(hosts []HostInfo) NetworkStats {
	stats := NetworkStats{TotalHosts: len(hosts)}
	for _, h := range hosts {
		if h.External {
			stats.ExternalHosts++
			stats.ExternalBytes += h.Bytes
		} else {
			stats.InternalHosts++
		}
	}
	return stats
}
