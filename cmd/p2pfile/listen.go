package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	p2pfile "github.com/Gokul-labb/p2p-proto"
	"github.com/Gokul-labb/p2p-proto/discovery"
)

var (
	listenAddr     string
	listenOutDir   string
	listenAnnounce bool
	listenInstance string
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run a receiving node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}
		if listenOutDir != "" {
			cfg.OutputDir = listenOutDir
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		node, err := p2pfile.NewNode(cfg)
		if err != nil {
			return err
		}
		if err := node.Start(ctx); err != nil {
			return err
		}
		defer node.Close()

		fmt.Printf("Listening on %s\n", node.LocalAddr())
		fmt.Printf("Peer ID: %s\n", node.LocalPeer())
		fmt.Printf("Output directory: %s\n", cfg.OutputDir)

		if listenAnnounce {
			port, err := listenPort(node.LocalAddr())
			if err != nil {
				return err
			}
			instance := listenInstance
			if instance == "" {
				hostname, _ := os.Hostname()
				instance = "p2pfile-" + hostname
			}
			announcer, err := discovery.Announce(instance, port, node.LocalPeer())
			if err != nil {
				return err
			}
			defer announcer.Close()
			fmt.Printf("Announcing as %q on the local network\n", instance)
		}

		<-ctx.Done()
		fmt.Println("\nShutting down")
		return nil
	},
}

// listenPort extracts the port number from a bound address.
func listenPort(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("parse listen address %s: %w", addr, err)
	}
	return strconv.Atoi(portStr)
}

func init() {
	listenCmd.Flags().StringVarP(&listenAddr, "addr", "a", "", "listen address (overrides P2P_LISTEN_ADDR)")
	listenCmd.Flags().StringVarP(&listenOutDir, "output", "o", "", "output directory (overrides P2P_OUTPUT_DIR)")
	listenCmd.Flags().BoolVar(&listenAnnounce, "announce", true, "announce this node over mDNS")
	listenCmd.Flags().StringVar(&listenInstance, "instance", "", "mDNS instance name")
	rootCmd.AddCommand(listenCmd)
}
