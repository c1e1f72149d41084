package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pion/ice/v2"
)

// ICEConfig names the STUN/TURN-auth endpoints an agent should use.
// Grounded on the teacher's hardcoded StunServer/AuthAPI constants,
// generalized into a value so internal/config can override them.
type ICEConfig struct {
	StunServer  string
	TurnAuthURL string
}

// DefaultICEConfig mirrors the teacher's defaults (a public STUN server,
// TURN-auth left unset until a deployment configures cmd/turn-auth's URL).
func DefaultICEConfig() ICEConfig {
	return ICEConfig{StunServer: "stun:stun.l.google.com:19302"}
}

// turnCredentials is the ephemeral credential shape returned by
// cmd/turn-auth, identical to the teacher's TurnCredentials.
type turnCredentials struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	TTL      int      `json:"ttl"`
	URIs     []string `json:"uris"`
}

// newICEAgent builds a pion/ice agent configured with STUN and, if a
// TURN-auth endpoint is configured, ephemeral TURN credentials fetched
// from it. Grounded directly on the teacher's NewICEAgent.
func newICEAgent(ctx context.Context, cfg ICEConfig, isControlling bool) (*ice.Agent, error) {
	var urls []*ice.URL

	if cfg.StunServer != "" {
		stunURL, err := ice.ParseURL(cfg.StunServer)
		if err != nil {
			return nil, fmt.Errorf("transport: parse stun url: %w", err)
		}
		urls = append(urls, stunURL)
	}

	if cfg.TurnAuthURL != "" {
		client := &http.Client{Timeout: 5 * time.Second}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.TurnAuthURL, nil)
		if err == nil {
			if resp, err := client.Do(req); err == nil {
				func() {
					defer resp.Body.Close()
					var creds turnCredentials
					if err := json.NewDecoder(resp.Body).Decode(&creds); err == nil {
						for _, uri := range creds.URIs {
							turnURL, err := ice.ParseURL(uri)
							if err != nil {
								continue
							}
							turnURL.Username = creds.Username
							turnURL.Password = creds.Password
							urls = append(urls, turnURL)
						}
					}
				}()
			}
		}
	}

	agent, err := ice.NewAgent(&ice.AgentConfig{
		Urls:           urls,
		CandidateTypes: []ice.CandidateType{ice.CandidateTypeHost, ice.CandidateTypeServerReflexive, ice.CandidateTypeRelay},
		NetworkTypes:   []ice.NetworkType{ice.NetworkTypeUDP4},
		Lite:           false,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: create ice agent: %w", err)
	}
	return agent, nil
}

// classifyPair derives a ConnectionClass from the ICE candidate pair the
// agent selected after connectivity checks completed.
func classifyPair(pair *ice.CandidatePair) ConnectionClass {
	if pair == nil {
		return ClassUnknown
	}
	local, remote := pair.Local.Type(), pair.Remote.Type()
	if local == ice.CandidateTypeRelay || remote == ice.CandidateTypeRelay {
		return ClassRelayed
	}
	if local == ice.CandidateTypeHost && remote == ice.CandidateTypeHost {
		return ClassDirect
	}
	return ClassMixed
}
