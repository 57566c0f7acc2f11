// Package main 提供 quasihttp 命令行客户端与压测工具
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qiminjie89/quasihttp/internal/protocol"
	"github.com/qiminjie89/quasihttp/pkg/auth"
	"github.com/qiminjie89/quasihttp/pkg/config"
	"github.com/qiminjie89/quasihttp/pkg/discovery"
	"github.com/qiminjie89/quasihttp/pkg/logger"
	"github.com/qiminjie89/quasihttp/pkg/quasihttp"
	"github.com/qiminjie89/quasihttp/pkg/transport"
)

var (
	configPath  = flag.String("config", "configs/quasiclient.yaml", "config file path")
	remote      = flag.String("remote", "", "server address, overrides config")
	method      = flag.String("method", protocol.MethodPost, "request method")
	target      = flag.String("target", "/echo", "request target")
	body        = flag.String("body", "", "request body")
	chunked     = flag.Bool("chunked", false, "send body with unknown length")
	requests    = flag.Int("n", 1, "number of requests")
	concurrency = flag.Int("c", 1, "concurrent requests")
	resetAfter  = flag.Duration("reset-after", 0, "reset the client after this duration (0 disables)")
	verbose     = flag.Bool("v", false, "print response bodies")
)

// Stats 统计
type Stats struct {
	ok       int64
	failed   int64
	timeouts int64
	resets   int64
}

func main() {
	flag.Parse()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		panic("load config failed: " + err.Error())
	}
	if *remote != "" {
		cfg.Remote = *remote
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}); err != nil {
		panic("init logger failed: " + err.Error())
	}
	defer logger.Sync()

	if err := run(cfg); err != nil {
		logger.Error("quasiclient failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.ClientConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	t, err := newTransport(cfg.Transport)
	if err != nil {
		return err
	}
	if len(cfg.Services) > 0 {
		t = &discovery.Transport{
			Registry: discovery.NewStaticRegistry(cfg.Services),
			Next:     t,
		}
	}
	client := quasihttp.NewClient(t, cfg.Send.Options())

	var token string
	if cfg.Auth.Enabled {
		expiry := cfg.Auth.Expiry
		if expiry <= 0 {
			expiry = time.Hour
		}
		token, err = auth.NewJWTValidator(cfg.Auth.Secret).GenerateToken(cfg.Auth.ClientID, expiry)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
	}

	if *resetAfter > 0 {
		timer := time.AfterFunc(*resetAfter, client.Reset)
		defer timer.Stop()
	}

	logger.Info("sending requests",
		zap.String("remote", cfg.Remote),
		zap.String("target", *target),
		zap.Int("requests", *requests),
		zap.Int("concurrency", *concurrency),
	)

	var stats Stats
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*concurrency, 1))
	for i := 0; i < *requests; i++ {
		g.Go(func() error {
			err := sendOne(ctx, client, cfg.Remote, token)
			switch {
			case err == nil:
				atomic.AddInt64(&stats.ok, 1)
			case errors.Is(err, quasihttp.ErrSendTimeout):
				atomic.AddInt64(&stats.timeouts, 1)
			case errors.Is(err, quasihttp.ErrClientReset):
				atomic.AddInt64(&stats.resets, 1)
			default:
				atomic.AddInt64(&stats.failed, 1)
				logger.Warn("request failed", zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	logger.Info("done",
		zap.Int64("ok", stats.ok),
		zap.Int64("failed", stats.failed),
		zap.Int64("timeouts", stats.timeouts),
		zap.Int64("resets", stats.resets),
		zap.Duration("elapsed", time.Since(start)),
	)
	if stats.failed > 0 {
		return fmt.Errorf("%d requests failed", stats.failed)
	}
	return nil
}

func newTransport(cfg config.TransportConfig) (quasihttp.ClientTransport, error) {
	switch cfg.Network {
	case "tcp":
		return &transport.TCPTransport{DialTimeout: cfg.DialTimeout}, nil
	case "ws":
		return transport.NewWebSocketTransport(transport.WebSocketConfig{
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.HandshakeTimeout,
			Path:             cfg.Path,
		}), nil
	default:
		return nil, fmt.Errorf("unknown network %q", cfg.Network)
	}
}

func sendOne(ctx context.Context, client *quasihttp.Client, remote, token string) error {
	var req *quasihttp.Request
	if *body == "" {
		req = quasihttp.NewRequest(*method, *target, nil)
	} else {
		req = quasihttp.NewRequest(*method, *target, strings.NewReader(*body))
		req.ContentType = protocol.ContentTypeText
		if *chunked {
			req.ContentLength = -1
		}
	}
	if token != "" {
		auth.SignRequest(req, token)
	}

	resp, err := client.Send(ctx, remote, req, nil)
	if err != nil {
		return err
	}
	if resp == nil {
		logger.Info("no response")
		return nil
	}
	defer resp.Close()

	fields := []zap.Field{
		zap.Int("status", resp.StatusCode),
		zap.String("message", resp.StatusMessage),
		zap.Int64("content_length", resp.ContentLength),
		zap.String("request_id", resp.Header.Get("X-Request-Id")),
	}
	if *verbose && resp.Body != nil {
		if resp.ContentType == protocol.ContentTypeMsgpack {
			var out map[string]interface{}
			if err := quasihttp.DecodeMsgpackBody(resp.Body, &out); err != nil {
				return err
			}
			fields = append(fields, zap.Any("body", out))
		} else {
			data, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			fields = append(fields, zap.ByteString("body", data))
		}
	}
	logger.Info("response", fields...)

	if !resp.IsSuccess() {
		return fmt.Errorf("status %d %s", resp.StatusCode, resp.StatusMessage)
	}
	return nil
}
