package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qiminjie89/quasihttp/pkg/auth"
	"github.com/qiminjie89/quasihttp/pkg/config"
	"github.com/qiminjie89/quasihttp/pkg/logger"
	"github.com/qiminjie89/quasihttp/pkg/quasihttp"
	"github.com/qiminjie89/quasihttp/pkg/transport"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "configs/quasiserver.yaml", "config file path")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		panic("load config failed: " + err.Error())
	}

	// 初始化日志
	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting quasiserver",
		zap.String("config", *configPath),
		zap.String("network", cfg.Transport.Network),
		zap.String("addr", cfg.Server.Addr),
	)

	if err := run(cfg); err != nil {
		logger.Error("quasiserver stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("quasiserver stopped")
}

func run(cfg *config.ServerConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l, err := listen(cfg)
	if err != nil {
		return err
	}

	var h quasihttp.Handler = newRouter()
	if cfg.Auth.Enabled {
		h = auth.RequireToken(auth.NewJWTValidator(cfg.Auth.Secret), h)
	}
	server := &quasihttp.Server{
		Handler:           h,
		MaxHeaderSize:     cfg.Server.MaxHeaderSize,
		ProcessingTimeout: cfg.Server.ProcessingTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := server.Serve(ctx, l)
		if errors.Is(err, quasihttp.ErrServerClosed) {
			return nil
		}
		return err
	})
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return runAdminServer(ctx, cfg.Metrics.Addr, l.Addr())
		})
	}
	return g.Wait()
}

func listen(cfg *config.ServerConfig) (quasihttp.Listener, error) {
	switch cfg.Transport.Network {
	case "tcp":
		return transport.ListenTCP(cfg.Server.Addr)
	case "ws":
		return transport.ListenWebSocket(cfg.Server.Addr, transport.WebSocketConfig{
			ReadBufferSize:   cfg.Transport.ReadBufferSize,
			WriteBufferSize:  cfg.Transport.WriteBufferSize,
			HandshakeTimeout: cfg.Transport.HandshakeTimeout,
			Path:             cfg.Transport.Path,
		})
	default:
		return nil, fmt.Errorf("unknown network %q", cfg.Transport.Network)
	}
}
