package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Gokul-labb/p2p-proto/discovery"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find transfer nodes on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Browsing for %s...\n", discoverTimeout)

		peers, err := discovery.Browse(context.Background(), discoverTimeout)
		if err != nil {
			return err
		}
		if len(peers) == 0 {
			fmt.Println("No peers found")
			return nil
		}

		for _, p := range peers {
			peer := p.PeerID
			if peer != "" {
				peer = shortID(peer)
			} else {
				peer = "-"
			}
			fmt.Printf("%-24s %-22s %s\n", p.Instance, p.Addr, peer)
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 5*time.Second, "how long to browse")
	rootCmd.AddCommand(discoverCmd)
}
