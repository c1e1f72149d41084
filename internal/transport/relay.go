package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pion/ice/v2"
	"github.com/qdrop/qdrop/internal/signaling"
	"github.com/qdrop/qdrop/internal/ticket"
	"github.com/quic-go/quic-go"
)

// RendezvousNetwork marks a ticket.CandidateAddr whose Address is a
// signaling topic tag rather than a host:port — the receiver reaches
// the sender by trickle-ICE over MQTT instead of dialing directly.
// Grounded on the teacher's internal/transport/p2p.go.
const RendezvousNetwork = "ice-rendezvous"

// RelayCoordinator runs ICE connectivity establishment signaled over the
// teacher's MQTT-over-WSS channel (internal/signaling), used when a
// receiver's direct candidates all fail (symmetric NAT, firewalled LAN).
type RelayCoordinator struct {
	sig    *signaling.IoTClient
	iceCfg ICEConfig
}

// NewRelayCoordinator builds a coordinator that signals over sig using
// the given ICE configuration.
func NewRelayCoordinator(sig *signaling.IoTClient, iceCfg ICEConfig) *RelayCoordinator {
	return &RelayCoordinator{sig: sig, iceCfg: iceCfg}
}

// RendezvousCandidate returns the candidate hint a ticket should embed
// so a receiver knows which signaling topic to use for ICE.
func (r *RelayCoordinator) RendezvousCandidate(tag string) ticket.CandidateAddr {
	return ticket.CandidateAddr{Network: RendezvousNetwork, Address: tag}
}

// Listen establishes the sender (answerer) side of an ICE connection for
// the given tag and returns a quic.Listener bridged over it, plus the
// resulting ConnectionClass.
func (r *RelayCoordinator) Listen(ctx context.Context, tag string, tlsConf *tls.Config) (*quic.Listener, ConnectionClass, error) {
	conn, class, err := r.negotiate(ctx, tag, false)
	if err != nil {
		return nil, ClassUnknown, err
	}
	tr := &quic.Transport{Conn: conn}
	l, err := tr.Listen(tlsConf, quicConfig)
	if err != nil {
		return nil, ClassUnknown, fmt.Errorf("transport: relay listen: %w", err)
	}
	return l, class, nil
}

// Dial establishes the receiver (offerer) side of an ICE connection and
// opens a QUIC connection over it.
func (r *RelayCoordinator) Dial(ctx context.Context, tag string, tlsConf *tls.Config) (*quic.Conn, ConnectionClass, error) {
	conn, class, err := r.negotiate(ctx, tag, true)
	if err != nil {
		return nil, ClassUnknown, err
	}
	tr := &quic.Transport{Conn: conn}
	qc, err := tr.Dial(ctx, conn.RemoteAddr(), tlsConf, quicConfig)
	if err != nil {
		return nil, ClassUnknown, fmt.Errorf("transport: relay dial: %w", err)
	}
	return qc, class, nil
}

// negotiate runs trickle-ICE over the signaling topic "qdrop/signal/<tag>"
// and returns a net.PacketConn bridging the selected candidate pair.
// Grounded on the teacher's P2PManager.EstablishConnection, generalized
// from a human "code" topic key to a ticket-derived session tag.
func (r *RelayCoordinator) negotiate(ctx context.Context, tag string, isOfferer bool) (*packetConnAdapter, ConnectionClass, error) {
	if r.sig == nil {
		return nil, ClassUnknown, fmt.Errorf("transport: no signaling client configured")
	}

	agent, err := newICEAgent(ctx, r.iceCfg, isOfferer)
	if err != nil {
		return nil, ClassUnknown, err
	}

	topic := fmt.Sprintf("qdrop/signal/%s", tag)
	remoteCandidates := make(chan string, 16)
	remoteUfrag := make(chan string, 1)
	remotePwd := make(chan string, 1)

	err = r.sig.Subscribe(topic, func(_ mqtt.Client, msg mqtt.Message) {
		var sigMsg signaling.SignalMessage
		if err := json.Unmarshal(msg.Payload(), &sigMsg); err != nil {
			return
		}
		if isOfferer && sigMsg.Type == signaling.TypeOffer {
			return
		}
		if !isOfferer && sigMsg.Type == signaling.TypeAnswer {
			return
		}
		if sigMsg.Candidate != "" {
			select {
			case remoteCandidates <- sigMsg.Candidate:
			default:
			}
		}
		if sigMsg.Ufrag != "" {
			select {
			case remoteUfrag <- sigMsg.Ufrag:
			default:
			}
		}
		if sigMsg.Pwd != "" {
			select {
			case remotePwd <- sigMsg.Pwd:
			default:
			}
		}
	})
	if err != nil {
		return nil, ClassUnknown, fmt.Errorf("transport: signaling subscribe: %w", err)
	}

	selfType := signaling.TypeAnswer
	if isOfferer {
		selfType = signaling.TypeOffer
	}
	agent.OnCandidate(func(c ice.Candidate) {
		if c == nil {
			return
		}
		payload, _ := json.Marshal(signaling.SignalMessage{Type: selfType, Candidate: c.Marshal()})
		r.sig.Publish(topic, payload)
	})

	if err := agent.GatherCandidates(); err != nil {
		return nil, ClassUnknown, fmt.Errorf("transport: gather candidates: %w", err)
	}

	ufrag, pwd, err := agent.GetLocalUserCredentials()
	if err != nil {
		return nil, ClassUnknown, fmt.Errorf("transport: local credentials: %w", err)
	}
	if isOfferer {
		payload, _ := json.Marshal(signaling.SignalMessage{Type: selfType, Ufrag: ufrag, Pwd: pwd})
		r.sig.Publish(topic, payload)
	}

	var remoteU, remoteP string
	select {
	case remoteU = <-remoteUfrag:
		remoteP = <-remotePwd
		if !isOfferer {
			payload, _ := json.Marshal(signaling.SignalMessage{Type: selfType, Ufrag: ufrag, Pwd: pwd})
			r.sig.Publish(topic, payload)
		}
	case <-ctx.Done():
		return nil, ClassUnknown, ctx.Err()
	}

	go func() {
		for {
			select {
			case c := <-remoteCandidates:
				if cand, err := ice.UnmarshalCandidate(c); err == nil {
					agent.AddRemoteCandidate(cand)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	var conn net.Conn
	var dialErr error
	if isOfferer {
		conn, dialErr = agent.Dial(ctx, remoteU, remoteP)
	} else {
		conn, dialErr = agent.Accept(ctx, remoteU, remoteP)
	}
	if dialErr != nil {
		return nil, ClassUnknown, fmt.Errorf("transport: ice connect: %w", dialErr)
	}

	pair, _ := agent.GetSelectedCandidatePair()
	class := classifyPair(pair)

	return newPacketConnAdapter(conn), class, nil
}

// packetConnAdapter bridges a single already-connected net.Conn (as
// produced by ice.Agent.Dial/Accept) into the net.PacketConn shape
// quic.Transport expects, since an ICE agent's selected pair is already
// a point-to-point channel with exactly one peer.
type packetConnAdapter struct {
	net.Conn
}

func newPacketConnAdapter(c net.Conn) *packetConnAdapter {
	return &packetConnAdapter{Conn: c}
}

func (p *packetConnAdapter) ReadFrom(b []byte) (int, net.Addr, error) {
	n, err := p.Conn.Read(b)
	return n, p.Conn.RemoteAddr(), err
}

func (p *packetConnAdapter) WriteTo(b []byte, _ net.Addr) (int, error) {
	return p.Conn.Write(b)
}

func (p *packetConnAdapter) SetReadDeadline(t time.Time) error  { return p.Conn.SetReadDeadline(t) }
func (p *packetConnAdapter) SetWriteDeadline(t time.Time) error { return p.Conn.SetWriteDeadline(t) }
func (p *packetConnAdapter) SetDeadline(t time.Time) error      { return p.Conn.SetDeadline(t) }
