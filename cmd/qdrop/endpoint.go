package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustinkirkland/golang-petname"

	"github.com/qdrop/qdrop/internal/config"
	"github.com/qdrop/qdrop/internal/logging"
	"github.com/qdrop/qdrop/internal/signaling"
	"github.com/qdrop/qdrop/internal/transport"
)

// buildEndpoint binds a transport.Endpoint on bindPort, wiring the
// user's ~/.qdrop/config.json STUN/TURN settings and attempting (best
// effort, same as the teacher) to connect the MQTT relay signaling
// channel. A signaling failure is logged and the endpoint still works
// for direct/LAN connections.
func buildEndpoint(ctx context.Context, bindPort string, log *slog.Logger) (*transport.QUICEndpoint, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Warn("could not read config, using defaults", "error", err)
		cfg = &config.Config{}
	}
	iceCfg := transport.DefaultICEConfig()
	if cfg.StunServer != "" {
		iceCfg.StunServer = cfg.StunServer
	}
	if cfg.TurnAuthURL != "" {
		iceCfg.TurnAuthURL = cfg.TurnAuthURL
	}

	clientID := "qdrop-" + petname.Generate(2, "-")
	sig, err := signaling.NewIoTClient(ctx, clientID)
	if err != nil {
		log.Warn("signaling unavailable, falling back to direct/LAN only", "error", err)
		sig = nil
	}

	ep, err := transport.NewQUICEndpoint(bindPort, sig, iceCfg)
	if err != nil {
		return nil, fmt.Errorf("bind endpoint: %w", err)
	}
	return ep, nil
}
