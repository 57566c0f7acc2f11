package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/qiminjie89/quasihttp/pkg/logger"
)

// HealthStatus 健康状态
type HealthStatus struct {
	Status        string  `json:"status"`
	ListenAddr    string  `json:"listen_addr"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

var startTime = time.Now()

// runAdminServer 运行健康检查与监控服务，ctx 结束时关闭
func runAdminServer(ctx context.Context, addr, listenAddr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(listenAddr))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("starting admin server",
		zap.String("addr", addr),
	)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("admin server error", zap.Error(err))
		return err
	}
	return nil
}

// healthHandler 健康检查处理
func healthHandler(listenAddr string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := &HealthStatus{
			Status:        "healthy",
			ListenAddr:    listenAddr,
			UptimeSeconds: time.Since(startTime).Seconds(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(health)
	}
}
