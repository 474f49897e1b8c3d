// Package discovery announces and finds transfer nodes on the local network
// over mDNS.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"
)

const (
	// ServiceType is the mDNS service type transfer nodes register under.
	ServiceType = "_p2pconvert._tcp"

	// Domain is the mDNS domain.
	Domain = "local."
)

// Peer is a node found on the local network.
type Peer struct {
	Instance string
	Addr     string
	PeerID   string
}

// Announcer keeps an mDNS registration alive until Close.
type Announcer struct {
	server *zeroconf.Server
}

// Announce registers this node on the local network. The peer ID travels in
// a TXT record so dialers can pin the remote identity before connecting.
func Announce(instance string, port int, peerID string) (*Announcer, error) {
	txt := []string{"peer=" + peerID}
	server, err := zeroconf.Register(instance, ServiceType, Domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "Announce",
		"instance": instance,
		"port":     port,
	}).Info("Announcing on local network")

	return &Announcer{server: server}, nil
}

// Close withdraws the registration.
func (a *Announcer) Close() {
	a.server.Shutdown()
}

// Browse scans the local network for transfer nodes until the timeout
// elapses or ctx is cancelled.
func Browse(ctx context.Context, timeout time.Duration) ([]Peer, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("create mdns resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, Domain, entries); err != nil {
		return nil, fmt.Errorf("browse mdns services: %w", err)
	}

	var peers []Peer
	for entry := range entries {
		peer := Peer{
			Instance: entry.Instance,
			Addr:     entryAddr(entry),
			PeerID:   entryPeerID(entry),
		}
		logrus.WithFields(logrus.Fields{
			"function": "Browse",
			"instance": peer.Instance,
			"addr":     peer.Addr,
		}).Debug("Found peer")
		peers = append(peers, peer)
	}
	return peers, nil
}

// entryAddr picks the first usable address from an mDNS entry.
func entryAddr(entry *zeroconf.ServiceEntry) string {
	for _, ip := range entry.AddrIPv4 {
		return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", entry.Port))
	}
	for _, ip := range entry.AddrIPv6 {
		return net.JoinHostPort(ip.String(), fmt.Sprintf("%d", entry.Port))
	}
	return ""
}

// entryPeerID extracts the peer TXT record, empty if absent.
func entryPeerID(entry *zeroconf.ServiceEntry) string {
	for _, record := range entry.Text {
		if len(record) > 5 && record[:5] == "peer=" {
			return record[5:]
		}
	}
	return ""
}
