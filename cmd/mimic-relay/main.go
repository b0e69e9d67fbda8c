// mimic-relay runs on the device.  It reads the capture's raw H.264
// stream from stdin and serves it to players over RTSP.
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"mimic/internal/rtsp"
	"mimic/util"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "mimic-relay: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader) error {
	fs := flag.NewFlagSet("mimic-relay", flag.ContinueOnError)
	port := fs.IntP("port", "p", rtsp.DefaultPort, "RTSP port")
	bind := fs.String("bind", "", "Address to listen on (default all)")
	verbose := fs.CountP("verbose", "v", "Increase verbosity (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// stdout carries nothing; diagnostics go to stderr.
	logger := util.NewLogger(*verbose)
	logger.SetOutput(os.Stderr)

	ln, err := net.Listen("tcp", util.FormatAddr(*bind, *port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", *port, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := rtsp.NewServer(logger)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	sc := rtsp.NewScanner(stdin)
	var units int
	for sc.Scan() {
		srv.WriteNALU(sc.Bytes())
		units++
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		cancel()
		<-served
		return fmt.Errorf("read stream: %w", err)
	}
	logger.Verbose("stream ended after %d NAL units", units)

	cancel()
	return <-served
}
