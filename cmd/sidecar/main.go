// Package main provides the entry point for the runtime sidecar binary.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskforge/orchestrator/api"
	"github.com/taskforge/orchestrator/internal/audit"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP server address")
	stateHome := flag.String("state-home", "./.orchestrator", "root directory for durable run state, logs, and workspaces")
	flag.Parse()

	audit.Log("event=sidecar_starting addr=%s state_home=%s", *addr, *stateHome)

	server := api.NewServer(*addr, *stateHome)

	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		audit.Log("event=sidecar_shutting_down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			audit.Warn("event=sidecar_shutdown_error error=%s", err)
		}
		close(done)
	}()

	if err := server.Start(); err != nil && err != http.ErrServerClosed {
		audit.Warn("event=sidecar_server_error error=%s", err)
		os.Exit(1)
	}

	<-done
	audit.Log("event=sidecar_stopped")
}
