package main

import (
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chatd/server"
	"chatd/store"
)

func setupControlTest(t *testing.T) (*server.Server, *store.Store, *slog.Logger) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return server.New(st, &server.Config{}, logger), st, logger
}

func controlRequest(t *testing.T, srv *server.Server, st *store.Store, logger *slog.Logger, command string) string {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()
	go handleControlCommand(srv, st, serverConn, "", logger)

	clientConn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := clientConn.Write([]byte(command + "\n")); err != nil {
		t.Fatalf("Failed to send %q: %v", command, err)
	}

	buf := make([]byte, 256)
	n, err := clientConn.Read(buf)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return strings.TrimSuffix(string(buf[:n]), "\n")
}

func TestControlSocketStats(t *testing.T) {
	srv, st, logger := setupControlTest(t)

	response := controlRequest(t, srv, st, logger, "stats")
	if response != "OK connections=0,users=" {
		t.Errorf("Expected OK connections=0,users=, got %q", response)
	}
}

func TestControlSocketUnknownCommand(t *testing.T) {
	srv, st, logger := setupControlTest(t)

	response := controlRequest(t, srv, st, logger, "frobnicate")
	if response != "ERR Unknown command" {
		t.Errorf("Expected ERR Unknown command, got %q", response)
	}
}
