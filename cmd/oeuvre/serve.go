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

	"xdao.co/oeuvre/config"
	"xdao.co/oeuvre/journal"
	"xdao.co/oeuvre/registry"
	"xdao.co/oeuvre/rpc"
	"xdao.co/oeuvre/rules"
	"xdao.co/oeuvre/storage"
	"xdao.co/oeuvre/storage/grpccas"
	"xdao.co/oeuvre/storage/localfs"
	"xdao.co/oeuvre/tracing"
)

func cmdServe(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var configPath string
	var listen string

	fs.StringVar(&configPath, "config", "", "YAML config file")
	fs.StringVar(&listen, "listen", "", "Listen address (overrides config)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
	}
	if listen != "" {
		cfg.Listen = listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, errOut, nil); err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	return 0
}

// node is a configured registry with everything it writes to.
type node struct {
	reg      *registry.Registry
	journal  journal.Journal
	archive  storage.CAS
	local    bool
	tracing  *tracing.Provider
	logger   *slog.Logger
	closeFns []func() error
}

func (n *node) Close() error {
	var errs []error
	for i := len(n.closeFns) - 1; i >= 0; i-- {
		errs = append(errs, n.closeFns[i]())
	}
	return errors.Join(errs...)
}

// openNode builds a registry from cfg: it replays the journal, then wires the
// pointer rule, the (optionally signing) journal sink, the payload archive and
// tracing.
func openNode(cfg config.Config, logOut io.Writer) (*node, error) {
	logger, err := cfg.Log.Logger(logOut)
	if err != nil {
		return nil, err
	}
	n := &node{logger: logger}

	rule, err := cfg.PointerRule.Compile()
	if err != nil {
		return nil, fmt.Errorf("pointer rule: %w", err)
	}
	signer, err := cfg.Signer.Open()
	if err != nil {
		return nil, err
	}

	j, err := journal.Open(cfg.Journal.Kind, cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	n.journal = j
	n.closeFns = append(n.closeFns, j.Close)

	var sink journal.Sink = j
	if signer != nil {
		sink = &journal.SigningSink{Next: j, Signer: signer}
	}

	opts := []registry.Option{
		registry.WithGate(registry.Gate{Immutable: cfg.ImmutableMetadata}),
		registry.WithSink(sink),
		registry.WithLogger(logger),
	}
	if rule != nil {
		opts = append(opts, registry.WithPointerCheck(rules.Func(rule)))
	}
	reg, err := journal.Replay(j, opts...)
	if err != nil {
		_ = n.Close()
		return nil, fmt.Errorf("replay journal: %w", err)
	}
	if signer != nil {
		if err := journal.VerifyAll(reg.Records(0), signer.KeyID()); err != nil {
			_ = n.Close()
			return nil, fmt.Errorf("journal signatures: %w", err)
		}
	}
	n.reg = reg

	var replicas []storage.Replica
	if cfg.Archive.Dir != "" {
		cas, err := localfs.New(cfg.Archive.Dir)
		if err != nil {
			_ = n.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		replicas = append(replicas, storage.Replica{Name: "local", CAS: cas})
		n.local = true
	}
	if cfg.Archive.Target != "" {
		c, err := grpccas.Dial(cfg.Archive.Target, grpccas.DialOptions{})
		if err != nil {
			_ = n.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		n.closeFns = append(n.closeFns, c.Close)
		replicas = append(replicas, storage.Replica{Name: cfg.Archive.Target, CAS: c})
	}
	switch len(replicas) {
	case 0:
	case 1:
		n.archive = replicas[0].CAS
	default:
		n.archive = storage.Mirror{Replicas: replicas}
	}

	tp, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		_ = n.Close()
		return nil, err
	}
	n.tracing = tp
	n.closeFns = append(n.closeFns, func() error { return tp.Shutdown(context.Background()) })

	st := reg.Stats()
	logger.Info("registry ready",
		"entries", st.Entries,
		"height", st.Height,
		"journal", cfg.Journal.Kind,
		"signed", signer != nil,
		"pointer_rule", rule != nil,
		"immutable", cfg.ImmutableMetadata,
	)
	return n, nil
}

// grpcServer registers the registry service and, for a local archive, a
// read-only archive service on a new gRPC server.
func (n *node) grpcServer() *grpc.Server {
	gs := grpc.NewServer(grpc.UnaryInterceptor(tracing.UnaryServerInterceptor(n.tracing.Tracer(), rpc.PrincipalHeader)))
	rpc.RegisterRegistryServer(gs, &rpc.Server{Registry: n.reg, Archive: n.archive, Logger: n.logger})
	if n.archive != nil && n.local {
		grpccas.RegisterArchiveServer(gs, &grpccas.Server{CAS: n.archive, ReadOnly: true})
	}
	return gs
}

// serve runs until ctx is done. If ready is non-nil it receives the bound
// address once the listener is up.
func serve(ctx context.Context, cfg config.Config, logOut io.Writer, ready chan<- net.Addr) error {
	n, err := openNode(cfg, logOut)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			n.logger.Error("shutdown", "err", err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return err
	}
	gs := n.grpcServer()

	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()

	n.logger.Info("listening", "addr", lis.Addr().String())
	if ready != nil {
		ready <- lis.Addr()
	}
	if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	st := n.reg.Stats()
	n.logger.Info("stopped", "height", st.Height, "sink_failures", st.SinkFailures, "faulted", st.Faulted)
	return nil
}
