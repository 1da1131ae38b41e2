package coinjoin

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// topicPrefix namespaces a session's pubsub topic so unrelated
// sessions on the same host's gossipsub mesh never cross-deliver
// messages (a session is a closed broadcast domain).
const topicPrefix = "stealthsol/coinjoin/"

// EnvelopeHandler processes one decoded Envelope received on a
// session's topic.
type EnvelopeHandler func(ctx context.Context, from peer.ID, env *Envelope) error

// TransportConfig holds the libp2p host's static configuration. There
// is deliberately no DHT or mDNS here: a CoinJoin session's membership
// is established out of band (participants already hold the
// coordinator's address from the JOIN handshake), so the general peer
// discovery the base network layer runs is not needed for this
// closed-topic broadcast.
type TransportConfig struct {
	ListenAddrs []string
	PrivateKey  crypto.PrivKey
}

// DefaultTransportConfig listens on an ephemeral TCP port on all
// interfaces.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{ListenAddrs: []string{"/ip4/0.0.0.0/tcp/0"}}
}

// Transport is a libp2p-pubsub broadcaster scoped to exactly one
// CoinJoin session's topic.
type Transport struct {
	mu sync.RWMutex

	host   host.Host
	pubsub *pubsub.PubSub

	topic *pubsub.Topic
	sub   *pubsub.Subscription

	handler EnvelopeHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTransport creates a libp2p host, joins the gossipsub topic for
// sessionID, and subscribes to it. Call SetHandler before Start to
// receive messages.
func NewTransport(ctx context.Context, sessionID string, cfg TransportConfig) (*Transport, error) {
	tctx, cancel := context.WithCancel(ctx)

	privKey := cfg.PrivateKey
	if privKey == nil {
		var err error
		privKey, _, err = crypto.GenerateKeyPairWithReader(crypto.Ed25519, -1, rand.Reader)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("generate transport key: %w", err)
		}
	}

	listenAddrs := make([]multiaddr.Multiaddr, len(cfg.ListenAddrs))
	for i, addr := range cfg.ListenAddrs {
		ma, err := multiaddr.NewMultiaddr(addr)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid listen address: %w", err)
		}
		listenAddrs[i] = ma
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrs(listenAddrs...),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(tctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("create pubsub: %w", err)
	}

	topic, err := ps.Join(topicPrefix + sessionID)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("join session topic: %w", err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		h.Close()
		cancel()
		return nil, fmt.Errorf("subscribe session topic: %w", err)
	}

	return &Transport{
		host:   h,
		pubsub: ps,
		topic:  topic,
		sub:    sub,
		ctx:    tctx,
		cancel: cancel,
	}, nil
}

// SetHandler installs the callback invoked for every Envelope received
// on the session topic. Must be called before Start.
func (t *Transport) SetHandler(h EnvelopeHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

// Start begins delivering incoming messages to the installed handler.
// It returns immediately; delivery runs in a background goroutine
// until the transport's context is cancelled.
func (t *Transport) Start() {
	go t.loop()
}

func (t *Transport) loop() {
	for {
		msg, err := t.sub.Next(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil {
				return
			}
			continue
		}
		if msg.ReceivedFrom == t.host.ID() {
			continue
		}

		env, err := ParseEnvelope(msg.Data)
		if err != nil {
			continue
		}

		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()
		if handler == nil {
			continue
		}
		if err := handler(t.ctx, msg.ReceivedFrom, env); err != nil {
			continue
		}
	}
}

// Publish encodes t and p into an Envelope and broadcasts it to the
// session topic.
func (t *Transport) Publish(msgType MessageType, payload interface{}) error {
	data, err := Encode(msgType, payload)
	if err != nil {
		return err
	}
	return t.topic.Publish(t.ctx, data)
}

// Connect dials a peer given its multiaddress, joining the broadcast
// mesh before any Publish/Start call is expected to reach it.
func (t *Transport) Connect(ctx context.Context, addr string) error {
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return err
	}
	peerInfo, err := peer.AddrInfoFromP2pAddr(ma)
	if err != nil {
		return err
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return t.host.Connect(dialCtx, *peerInfo)
}

// Addrs returns this transport's dialable multiaddresses.
func (t *Transport) Addrs() []multiaddr.Multiaddr {
	return t.host.Addrs()
}

// ID returns this transport's libp2p peer ID.
func (t *Transport) ID() peer.ID {
	return t.host.ID()
}

// Close tears down the subscription, topic, and host.
func (t *Transport) Close() error {
	t.cancel()
	t.sub.Cancel()
	if err := t.topic.Close(); err != nil {
		return err
	}
	return t.host.Close()
}
