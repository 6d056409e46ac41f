// cmd/crsf-bridge/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fobos-uav/crsf-bridge/internal/api"
	"github.com/fobos-uav/crsf-bridge/internal/channels"
	"github.com/fobos-uav/crsf-bridge/internal/command"
	"github.com/fobos-uav/crsf-bridge/internal/config"
	"github.com/fobos-uav/crsf-bridge/internal/joystick"
	"github.com/fobos-uav/crsf-bridge/internal/link"
	"github.com/fobos-uav/crsf-bridge/internal/sched"
	"github.com/fobos-uav/crsf-bridge/internal/serial"
	"github.com/fobos-uav/crsf-bridge/internal/telemetry"
	"github.com/fobos-uav/crsf-bridge/internal/writer"
)

func main() {
	var (
		cfgPath = flag.String("config", "", "path to the yaml config")
		noTel   = flag.Bool("notel", false, "transmit even while the link is down (bench mode)")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: crsf-bridge [flags] [port] [peer_host] [peer_port]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}
	config.Normalize(cfg)

	bc := &cfg.Bridge

	// Positional overrides: [port] [peer_host] [peer_port].
	args := flag.Args()
	if len(args) > 0 {
		bc.API.Listen = ":" + args[0]
	}
	if len(args) > 1 {
		peerPort := "8081"
		if len(args) > 2 {
			peerPort = args[2]
		}
		bc.Telemetry.Gateway = "http://" + args[1] + ":" + peerPort
	}
	if *noTel {
		bc.Link.IgnoreLinkState = true
	}

	// --------------------
	// Build the pipeline
	// --------------------

	dev, err := serial.NewDevice(serial.Config{
		Device:      bc.Serial.Device,
		Baud:        bc.Serial.Baud,
		ReadTimeout: time.Duration(bc.Serial.ReadTimeoutMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("serial config failed: %v", err)
	}
	if err := dev.Open(); err != nil {
		// Not fatal: the receive loop keeps retrying the open.
		log.Printf("serial open failed: %v", err)
	}

	store := channels.NewStore()
	telem := telemetry.NewStore()

	engine := link.New(dev, store, telem, link.Events{
		OnLinkUp:   func() { log.Printf("link: up") },
		OnLinkDown: func() { log.Printf("link: down (failsafe)") },
	}, link.Config{
		PacketTimeout:   time.Duration(bc.Link.PacketTimeoutMs) * time.Millisecond,
		Failsafe:        time.Duration(bc.Link.FailsafeMs) * time.Millisecond,
		IgnoreLinkState: bc.Link.IgnoreLinkState,
	})

	queue := command.NewQueue()

	var stick sched.Stick
	if js, err := joystick.Open(bc.Joystick.Device); err == nil {
		log.Printf("joystick: %s connected", js.Name())
		defer js.Close()
		stick = js
	} else {
		log.Printf("joystick unavailable, running without stick control: %v", err)
	}

	scheduler := sched.New(engine, store, queue, stick, sched.Config{
		SendPeriod:  time.Duration(bc.Send.PeriodMs) * time.Millisecond,
		CommandFile: bc.Command.File,
		InitialMode: bc.Send.Mode,
	})

	collect := func() telemetry.Snapshot {
		snap := telem.Get()
		snap.Channels = store.Snapshot()
		st := engine.Status()
		snap.LinkUp = st.LinkUp
		snap.LastReceive = st.LastReceive
		snap.PacketsReceived = st.PacketsReceived
		snap.PacketsSent = st.PacketsSent
		snap.PacketsLost = st.PacketsLost
		snap.ActivePort = dev.Name()
		return snap
	}

	sinks := []writer.Sink{writer.NewFileSink(bc.Telemetry.File)}
	if bc.Telemetry.Gateway != "" {
		timeout := 2 * time.Second
		if bc.Link.IgnoreLinkState {
			// Bench mode: never let a slow gateway stall anything.
			timeout = 100 * time.Millisecond
		}
		sinks = append(sinks, writer.NewHTTPSink(bc.Telemetry.Gateway+"/api/telemetry", timeout))
	}
	if bc.Telemetry.MQTT != "" {
		if sink, err := writer.NewMQTTSink(bc.Telemetry.MQTT, "crsf-bridge"); err == nil {
			defer sink.Close()
			sinks = append(sinks, sink)
		} else {
			log.Printf("mqtt sink disabled: %v", err)
		}
	}

	pub := writer.New(collect, sinks, time.Duration(bc.Telemetry.PublishMs)*time.Millisecond)

	// --------------------
	// Run: receive / transmit / publish threads + control plane
	// --------------------

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); engine.Run(ctx) }()
	go func() { defer wg.Done(); scheduler.Run(ctx) }()
	go func() { defer wg.Done(); pub.Run(ctx) }()

	srv := &http.Server{
		Addr:    bc.API.Listen,
		Handler: api.NewBridgeServer(queue, collect).Handler(),
	}
	go func() {
		log.Printf("api: listening on %s", bc.API.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("api: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)

	// Closing the port unblocks any pending read in the receive thread.
	dev.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		log.Printf("shutdown deadline exceeded, abandoning workers")
	}
}
