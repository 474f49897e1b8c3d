package p2pfile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Gokul-labb/p2p-proto/config"
	"github.com/Gokul-labb/p2p-proto/convert"
	"github.com/Gokul-labb/p2p-proto/retry"
	"github.com/Gokul-labb/p2p-proto/transfer"
	"github.com/Gokul-labb/p2p-proto/transport"
)

// ErrNodeClosed indicates an operation on a closed node.
var ErrNodeClosed = errors.New("node closed")

// Node is the top-level handle. It owns the transport, the transfer
// registry and its reaper, and serves both directions: sending files out
// and receiving files in.
type Node struct {
	cfg       *config.Config
	transport transport.Transport
	registry  *transfer.Registry
	notifier  *transfer.Notifier
	reaper    *transfer.Reaper
	converter *convert.Converter
	policy    retry.Policy
	tp        transfer.TimeProvider

	mu      sync.Mutex
	results map[string]chan SendResult
	started bool
	closed  bool
	cancel  context.CancelFunc
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewNode creates a node with a fresh transport identity.
func NewNode(cfg *config.Config) (*Node, error) {
	keypair, err := transport.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate transport keypair: %w", err)
	}
	return NewNodeWithTransport(cfg, transport.NewTCPTransport(keypair))
}

// NewNodeWithTransport creates a node over a caller-supplied transport.
func NewNodeWithTransport(cfg *config.Config, tr transport.Transport) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts:    cfg.RetryMaxAttempts,
		InitialDelay:   cfg.RetryInitialDelay,
		MaxDelay:       cfg.RetryMaxDelay,
		Multiplier:     cfg.RetryMultiplier,
		AttemptTimeout: cfg.RetryAttemptTimeout,
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	tp := &transfer.DefaultTimeProvider{}
	registry := transfer.NewRegistry(cfg.MaxActiveTransfers, tp)
	reaper := transfer.NewReaper(registry, transfer.ReaperConfig{
		SweepInterval:  cfg.SweepInterval,
		ExpiryInterval: cfg.ExpiryInterval,
		Retention:      cfg.Retention,
		StallTimeout:   cfg.StallTimeout,
	}, tp)

	return &Node{
		cfg:       cfg,
		transport: tr,
		registry:  registry,
		notifier:  transfer.NewNotifier(0),
		reaper:    reaper,
		converter: convert.NewConverter(convert.PDFConfig{
			FontFamily: cfg.PDFFontFamily,
			FontSize:   cfg.PDFFontSize,
		}),
		policy:  policy,
		tp:      tp,
		results: make(map[string]chan SendResult),
		closeCh: make(chan struct{}),
	}, nil
}

// Start binds the listen address, registers the transfer protocol handler,
// and launches the background sweepers.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	if n.started {
		return nil
	}

	if err := n.cfg.EnsureOutputDir(); err != nil {
		return err
	}

	n.transport.RegisterHandler(ProtocolID, n.handleTransferStream)
	if err := n.transport.Listen(n.cfg.ListenAddr); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.wg.Add(2)
	go func() {
		defer n.wg.Done()
		n.reaper.Run(runCtx)
	}()
	go func() {
		defer n.wg.Done()
		n.consumeEvents(runCtx)
	}()

	n.started = true
	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"addr":     n.transport.LocalAddr(),
		"peer":     shortID(n.transport.LocalPeer()),
	}).Info("Node started")
	return nil
}

// consumeEvents logs connection lifecycle events from the transport.
func (n *Node) consumeEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-n.transport.Events():
			if !ok {
				return
			}
			fields := logrus.Fields{
				"function": "consumeEvents",
				"event":    ev.Type.String(),
				"peer":     shortID(ev.Peer),
				"addr":     ev.Addr,
			}
			if ev.Err != nil {
				fields["error"] = ev.Err.Error()
				logrus.WithFields(fields).Warn("Connection event")
				continue
			}
			logrus.WithFields(fields).Debug("Connection event")
		}
	}
}

// LocalPeer returns this node's transport identity.
func (n *Node) LocalPeer() string { return n.transport.LocalPeer() }

// LocalAddr returns the bound listen address, empty before Start.
func (n *Node) LocalAddr() string { return n.transport.LocalAddr() }

// Progress returns the stream of transfer progress snapshots.
func (n *Node) Progress() <-chan transfer.Snapshot { return n.notifier.C() }

// Transfer returns the current snapshot of one transfer.
func (n *Node) Transfer(id string) (transfer.Snapshot, bool) {
	return n.registry.GetSnapshot(id)
}

// ActiveTransfers lists snapshots of every non-terminal transfer.
func (n *Node) ActiveTransfers() []transfer.Snapshot {
	return n.registry.ListActive()
}

// AllTransfers lists snapshots of every tracked transfer.
func (n *Node) AllTransfers() []transfer.Snapshot {
	return n.registry.ListAll()
}

// Cancel requests cancellation of an in-flight transfer. Terminal transfers
// are left untouched.
func (n *Node) Cancel(id string) error {
	return n.registry.Cancel(id)
}

// Close shuts the node down and waits for background work to finish.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	cancel := n.cancel
	close(n.closeCh)
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := n.transport.Close()
	n.wg.Wait()
	n.notifier.Close()
	return err
}

// resultChan returns the result channel for a transfer, creating it on
// first use.
func (n *Node) resultChan(id string) chan SendResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	ch, ok := n.results[id]
	if !ok {
		ch = make(chan SendResult, 1)
		n.results[id] = ch
	}
	return ch
}

// deliverResult records the final outcome of an outbound transfer.
func (n *Node) deliverResult(res SendResult) {
	ch := n.resultChan(res.TransferID)
	select {
	case ch <- res:
	default:
	}
}

// WaitForCompletion blocks until an outbound transfer finishes and returns
// its outcome.
func (n *Node) WaitForCompletion(ctx context.Context, id string) (SendResult, error) {
	ch := n.resultChan(id)
	select {
	case <-ctx.Done():
		return SendResult{}, ctx.Err()
	case res := <-ch:
		n.mu.Lock()
		delete(n.results, id)
		n.mu.Unlock()
		return res, nil
	}
}

// shortID abbreviates a transfer or peer identifier for log output.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
