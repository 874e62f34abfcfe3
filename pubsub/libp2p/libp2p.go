package libp2p

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	libp2p "github.com/libp2p/go-libp2p"
	gossip "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	ma "github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"

	"github.com/mirror520/chatroom/conf"
	"github.com/mirror520/chatroom/pubsub"
)

// NewPubSub joins the gossip topic cfg.Subject. Every chat topic travels
// on that one gossip topic and is filtered locally by byte prefix.
func NewPubSub(cfg conf.PubSub) (pubsub.PubSub, error) {
	log := zap.L().With(
		zap.String("pubsub", "libp2p"),
		zap.String("subject", cfg.Subject),
	)

	opts := cfg.Libp2p

	listenAddrs := make([]ma.Multiaddr, 0, len(opts.ListenAddrs))
	for _, s := range opts.ListenAddrs {
		if s == "" {
			continue
		}

		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return nil, pubsub.NewTransportError("listen", fmt.Errorf("invalid multiaddr %q: %w", s, err))
		}
		listenAddrs = append(listenAddrs, addr)
	}

	if len(listenAddrs) == 0 {
		addr, _ := ma.NewMultiaddr("/ip4/0.0.0.0/tcp/0")
		listenAddrs = append(listenAddrs, addr)
	}

	hostOpts := []libp2p.Option{libp2p.ListenAddrs(listenAddrs...)}
	if opts.IdentityKeyFile != "" {
		key, err := loadOrCreateIdentityKey(opts.IdentityKeyFile)
		if err != nil {
			return nil, pubsub.NewTransportError("identity", err)
		}
		hostOpts = append(hostOpts, libp2p.Identity(key))
	}

	h, err := libp2p.New(hostOpts...)
	if err != nil {
		return nil, pubsub.NewTransportError("host", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	ps, err := gossip.NewGossipSub(ctx, h)
	if err != nil {
		cancel()
		h.Close()
		return nil, pubsub.NewTransportError("gossipsub", err)
	}

	topic, err := ps.Join(cfg.Subject)
	if err != nil {
		cancel()
		h.Close()
		return nil, pubsub.NewTransportError("join", err)
	}

	sub, err := topic.Subscribe()
	if err != nil {
		topic.Close()
		cancel()
		h.Close()
		return nil, pubsub.NewTransportError("subscribe", err)
	}

	p := &libp2pPubSub{
		Inbox:  pubsub.NewInbox(cfg.Capacity),
		log:    log,
		host:   h,
		topic:  topic,
		sub:    sub,
		ctx:    ctx,
		cancel: cancel,
	}

	if opts.EnableMDNS {
		service := mdns.NewMdnsService(h, opts.Rendezvous, &mdnsNotifee{h, log})
		if err := service.Start(); err != nil {
			log.Warn(err.Error(), zap.String("action", "mdns"))
		}
	}

	p.bootstrap(opts.Bootstrap)

	go p.listen()

	log.Info("joined", zap.String("peer", h.ID().String()))

	return p, nil
}

type libp2pPubSub struct {
	*pubsub.Inbox
	log    *zap.Logger
	host   host.Host
	topic  *gossip.Topic
	sub    *gossip.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

func (p *libp2pPubSub) bootstrap(addrs []string) {
	log := p.log.With(zap.String("action", "bootstrap"))

	for _, raw := range addrs {
		if raw == "" {
			continue
		}

		addr, err := ma.NewMultiaddr(raw)
		if err != nil {
			log.Warn(err.Error(), zap.String("addr", raw))
			continue
		}

		info, err := peer.AddrInfoFromP2pAddr(addr)
		if err != nil {
			log.Warn(err.Error(), zap.String("addr", raw))
			continue
		}

		if err := p.host.Connect(p.ctx, *info); err != nil {
			log.Warn(err.Error(), zap.String("peer", info.ID.String()))
			continue
		}

		log.Info("connected", zap.String("peer", info.ID.String()))
	}
}

func (p *libp2pPubSub) listen() {
	self := p.host.ID()

	for {
		msg, err := p.sub.Next(p.ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				p.log.Error(err.Error(), zap.String("action", "listen"))
			}

			p.Inbox.Close()
			return
		}

		if msg.ReceivedFrom == self {
			continue
		}

		p.Deliver(msg.Data)
	}
}

func (p *libp2pPubSub) Send(data []byte) error {
	if err := p.topic.Publish(p.ctx, data); err != nil {
		return pubsub.NewTransportError("send", err)
	}
	return nil
}

func (p *libp2pPubSub) Close() error {
	p.cancel()
	p.sub.Cancel()
	p.topic.Close()
	p.Inbox.Close()

	if err := p.host.Close(); err != nil {
		return pubsub.NewTransportError("close", err)
	}
	return nil
}

type mdnsNotifee struct {
	host host.Host
	log  *zap.Logger
}

func (n *mdnsNotifee) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == n.host.ID() {
		return
	}

	if err := n.host.Connect(context.Background(), info); err != nil {
		n.log.Warn(err.Error(), zap.String("peer", info.ID.String()))
	}
}

func loadOrCreateIdentityKey(path string) (crypto.PrivKey, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		return crypto.UnmarshalPrivateKey(b)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	key, _, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}

	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, err
	}

	return key, nil
}
