package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatd/config"
	"chatd/server"
	"chatd/store"
)

func main() {
	cfg := config.Load()

	// Positional invocation wins over env: chatd <port> [db-path]
	args := os.Args[1:]
	if len(args) > 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <port> [db-path]\n", os.Args[0])
		os.Exit(2)
	}
	if len(args) >= 1 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Usage: %s <port> [db-path]\n", os.Args[0])
			os.Exit(2)
		}
		cfg.Port = port
	}
	if len(args) == 2 {
		cfg.DBPath = args[1]
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open store", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	srv := server.New(st, &server.Config{
		Port:         cfg.Port,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}, logger)

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics listener failed", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}

	if cfg.ControlSocket != "" {
		go startControlSocket(srv, st, cfg.ControlSocket, logger)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received signal", "signal", sig.String())
		shutdown(srv, st, cfg.ControlSocket, logger)
	}()

	if err := srv.Start(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// shutdown is the one graceful-stop path, shared by the signal handler and
// the control socket: stop the server, flush the store, remove the socket.
func shutdown(srv *server.Server, st *store.Store, socketPath string, logger *slog.Logger) {
	srv.Stop()
	if err := st.Close(); err != nil {
		logger.Error("failed to close store", "error", err)
	}
	if socketPath != "" {
		os.Remove(socketPath)
	}
	os.Exit(0)
}

// startControlSocket serves management commands on a unix socket:
// "stats" reports connection counts, "shutdown" triggers a graceful stop.
func startControlSocket(srv *server.Server, st *store.Store, path string, logger *slog.Logger) {
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		logger.Error("failed to create control socket", "path", path, "error", err)
		return
	}
	defer listener.Close()
	defer os.Remove(path)

	logger.Info("control socket listening", "path", path)

	for {
		conn, err := listener.Accept()
		if err != nil {
			continue
		}

		go handleControlCommand(srv, st, conn, path, logger)
	}
}

func handleControlCommand(srv *server.Server, st *store.Store, conn net.Conn, socketPath string, logger *slog.Logger) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		return
	}

	switch strings.TrimSpace(line) {
	case "stats":
		conn.Write([]byte("OK " + srv.GetStats() + "\n"))

	case "shutdown":
		conn.Write([]byte("OK Shutting down\n"))
		conn.Close()

		logger.Info("shutdown requested via control socket")
		shutdown(srv, st, socketPath, logger)

	default:
		conn.Write([]byte("ERR Unknown command\n"))
	}
}
