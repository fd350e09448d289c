package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/agent"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/config"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/fallback"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/logging"
	"github.com/Igor-TCA/agente-reembolso-genai-ifood/internal/server"
)

// #region main

func main() {
	configPath := flag.String("config", "", "path to agent YAML config (optional)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	grpcAddr := flag.String("grpc-addr", "", "also serve the heuristic analyzer over gRPC on this address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	logger, _, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := run(cfg, *grpcAddr, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, grpcAddr string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := agent.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(cfg.Server, server.Deps{
		Decider: a.Orchestrator,
		Audit:   a.Recorder.Reader(),
		Corpus:  a.Corpus,
		Rules:   a.Engine.Rules(),
	}, logger)

	// Bind every listener before serving so a bad address fails startup
	// without leaving the other server running.
	var lis net.Listener
	if grpcAddr != "" {
		lis, err = net.Listen("tcp", grpcAddr)
		if err != nil {
			return fmt.Errorf("listen grpc: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })

	if lis != nil {
		gs := grpc.NewServer()
		fallback.RegisterGenerativeServer(gs, fallback.NewGenerativeServer(fallback.NewHeuristic(cfg.Fallback.HeuristicCap)))
		g.Go(func() error {
			logger.Info("grpc listening", "addr", lis.Addr().String())
			return gs.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			gs.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

// #endregion main
