package discovery

import (
	"fmt"

	"github.com/grandcat/zeroconf"
)

// StartAdvertising announces this endpoint's direct listener on the
// local network under tag, so a same-LAN receiver can resolve a
// connection without round-tripping through the cloud rendezvous
// service or MQTT signaling. Returns a shutdown function.
func StartAdvertising(port int, tag string) (func(), error) {
	instanceName := fmt.Sprintf("qdrop-%s", tag[:8])
	txt := []string{fmt.Sprintf("tag=%s", tag)}

	server, err := zeroconf.Register(
		instanceName,
		ServiceType,
		"local.",
		port,
		txt,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("discovery: advertise: %w", err)
	}
	return server.Shutdown, nil
}
