// Package p2pfile implements encrypted peer-to-peer file transfer with
// optional text and PDF conversion on the receiving side.
//
// Files travel in fixed-size chunks over an authenticated transport. The
// sender retries failed connections with exponential backoff, tracks every
// transfer through an explicit status lifecycle, and publishes progress
// snapshots while chunks stream. The receiver reassembles chunks, converts
// the content when asked to, and either stores the result or returns it in
// the transfer response.
//
// # Getting Started
//
// Create a node from configuration, start it, and send a file:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	node, err := p2pfile.NewNode(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	node.Start(ctx)
//	defer node.Close()
//
//	id, err := node.Send(ctx, p2pfile.SendOptions{
//	    Addr:     "192.168.1.20:9990",
//	    FilePath: "notes.txt",
//	})
//	result, err := node.WaitForCompletion(ctx, id)
//
// Progress snapshots for all transfers are available on node.Progress().
package p2pfile
