package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// FindOnLAN scans the local network for a qdrop sender advertising tag
// and returns its "host:port" address, or an error on timeout.
func FindOnLAN(tag string, timeout time.Duration) (string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", fmt.Errorf("discovery: new resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return "", fmt.Errorf("discovery: browse: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("discovery: sender not found on LAN (timeout)")
		case entry := <-entries:
			if entry == nil {
				continue
			}
			for _, txt := range entry.Text {
				if !strings.HasPrefix(txt, "tag=") {
					continue
				}
				if strings.TrimPrefix(txt, "tag=") != tag {
					continue
				}
				var ip net.IP
				if len(entry.AddrIPv6) > 0 {
					ip = entry.AddrIPv6[0]
				} else if len(entry.AddrIPv4) > 0 {
					ip = entry.AddrIPv4[0]
				}
				if ip != nil {
					return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", entry.Port)), nil
				}
			}
		}
	}
}

// LookupCloud queries the cloud rendezvous service (cmd/rendezvous-server)
// for live candidate addresses published under tag.
func LookupCloud(tag string) ([]string, error) {
	client := NewRegistryClient()
	item, err := client.Lookup(tag)
	if err != nil {
		return nil, err
	}
	return item.Candidates, nil
}
