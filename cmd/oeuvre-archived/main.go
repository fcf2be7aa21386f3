// Command oeuvre-archived serves a payload archive over gRPC. A registry
// configured with archive.target writes every minted payload to it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"xdao.co/oeuvre/storage"
	"xdao.co/oeuvre/storage/grpccas"
	"xdao.co/oeuvre/storage/localfs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr, nil))
}

func run(ctx context.Context, args []string, errOut io.Writer, ready chan<- net.Addr) int {
	fs := flag.NewFlagSet("oeuvre-archived", flag.ContinueOnError)
	fs.SetOutput(errOut)
	listen := fs.String("listen", "127.0.0.1:7421", "listen address")
	dir := fs.String("dir", "", "archive directory (required unless --memory)")
	memory := fs.Bool("memory", false, "keep objects in memory (testing only)")
	readOnly := fs.Bool("read-only", false, "refuse writes")
	maxMsg := fs.Int("max-msg-bytes", 4<<20, "maximum gRPC message size")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if (*dir == "") == !*memory {
		fmt.Fprintln(errOut, "exactly one of --dir or --memory is required")
		return 2
	}
	logger := slog.New(slog.NewTextHandler(errOut, nil))

	var cas storage.CAS
	if *memory {
		cas = storage.NewMemoryCAS()
	} else {
		l, err := localfs.New(*dir)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		cas = l
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	defer lis.Close()

	s := grpc.NewServer(grpc.MaxRecvMsgSize(*maxMsg), grpc.MaxSendMsgSize(*maxMsg))
	grpccas.RegisterArchiveServer(s, &grpccas.Server{CAS: cas, ReadOnly: *readOnly})
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()

	logger.Info("archive listening", "addr", lis.Addr().String(), "dir", *dir, "read_only", *readOnly)
	if ready != nil {
		ready <- lis.Addr()
	}
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("serve", "err", err)
		return 1
	}
	return 0
}
