package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	p2pfile "github.com/Gokul-labb/p2p-proto"
	"github.com/Gokul-labb/p2p-proto/transfer"
)

var (
	sendAddr         string
	sendPeer         string
	sendTargetFormat string
	sendReturnResult bool
	sendOutputPath   string
)

var sendCmd = &cobra.Command{
	Use:   "send <file>",
	Short: "Send a file to a peer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// The sending side does not accept inbound transfers.
		cfg.ListenAddr = "127.0.0.1:0"

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

		id, err := node.Send(ctx, p2pfile.SendOptions{
			Peer:         sendPeer,
			Addr:         sendAddr,
			FilePath:     args[0],
			TargetFormat: sendTargetFormat,
			ReturnResult: sendReturnResult,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Transfer %s started\n", shortID(id))
		go renderProgress(node, id)

		result, err := node.WaitForCompletion(ctx, id)
		if err != nil {
			node.Cancel(id)
			return err
		}
		if !result.Success {
			return fmt.Errorf("transfer %s failed: %s", shortID(id), result.Error)
		}

		fmt.Printf("\nTransfer %s completed in %s\n", shortID(id), result.ProcessingTime)
		if len(result.ConvertedData) > 0 {
			out := sendOutputPath
			if out == "" {
				out = filepath.Base(result.ConvertedFilename)
			}
			if err := os.WriteFile(out, result.ConvertedData, 0o644); err != nil {
				return fmt.Errorf("write converted result: %w", err)
			}
			fmt.Printf("Converted result written to %s\n", out)
		}
		return nil
	},
}

// renderProgress draws a progress bar from the node's snapshot stream.
func renderProgress(node *p2pfile.Node, id string) {
	var bar *progressbar.ProgressBar
	for snap := range node.Progress() {
		if snap.ID != id {
			continue
		}
		switch snap.Status {
		case transfer.StatusConnecting, transfer.StatusNegotiating:
			continue
		}
		if bar == nil {
			bar = progressbar.NewOptions64(int64(snap.TotalSize),
				progressbar.OptionSetDescription(shortID(id)),
				progressbar.OptionShowBytes(true),
				progressbar.OptionSetPredictTime(true),
			)
		}
		bar.Set64(int64(snap.BytesSent))
		if snap.Status.IsTerminal() {
			return
		}
	}
}

func init() {
	sendCmd.Flags().StringVarP(&sendAddr, "addr", "a", "", "remote address host:port")
	sendCmd.Flags().StringVarP(&sendPeer, "peer", "p", "", "expected remote peer ID (optional)")
	sendCmd.Flags().StringVarP(&sendTargetFormat, "to", "t", "", "convert to this format on the remote side (text, pdf)")
	sendCmd.Flags().BoolVarP(&sendReturnResult, "return", "r", false, "return the converted result instead of storing it remotely")
	sendCmd.Flags().StringVarP(&sendOutputPath, "output", "o", "", "path for a returned result")
	sendCmd.MarkFlagRequired("addr")
	rootCmd.AddCommand(sendCmd)
}
