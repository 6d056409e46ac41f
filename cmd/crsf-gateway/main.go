// cmd/crsf-gateway/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fobos-uav/crsf-bridge/internal/api"
	"github.com/fobos-uav/crsf-bridge/internal/config"
)

func main() {
	cfgPath := flag.String("config", "", "path to the yaml config")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: crsf-gateway [flags] [port] [peer_host] [peer_port]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	gc := &cfg.Gateway

	// Positional overrides: [port] [peer_host] [peer_port].
	args := flag.Args()
	if len(args) > 0 {
		gc.Listen = ":" + args[0]
	}
	if len(args) > 1 {
		peerPort := "8082"
		if len(args) > 2 {
			peerPort = args[2]
		}
		gc.Bridge = "http://" + args[1] + ":" + peerPort
	}

	gateway := api.NewGatewayServer(gc.Bridge, time.Duration(gc.TimeoutMs)*time.Millisecond)

	srv := &http.Server{Addr: gc.Listen, Handler: gateway.Handler()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("gateway: listening on %s, target %s", gc.Listen, gc.Bridge)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}
