package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"mjstream/internal/mjstream"
)

func main() {
	configPath := flag.String("config", mjstream.DefaultConfigPath, "path to the yaml configuration file")
	flag.Parse()

	config, err := mjstream.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	mjstream.InitLogger(config)

	// 서버 시작
	server := mjstream.NewServer(config)
	if err := server.Start(); err != nil {
		slog.Error("Failed to start server", "err", err)
		os.Exit(1)
	}

	slog.Info("RTSP server started", "addr", server.Addr())

	// 시그널 수신을 위한 채널 생성
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 시그널 또는 세션 종료 대기
	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down server", "signal", sig)
		server.Stop()
	case <-server.Done():
	}

	if err := server.Err(); err != nil {
		slog.Error("Session ended with error", "err", err)
		os.Exit(1)
	}
	slog.Info("Server shutdown complete")
}
