// Command broker runs the plug network's central broker: the UDP
// session endpoint (C3/C5) plus the HTTP control plane (C6) fronting it.
package main

import (
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"plugnet/api"
	"plugnet/broker"
)

func main() {
	udpPort := flag.Int("broker-port", broker.DefaultUDPPort, "UDP port the broker listens for plug sessions on")
	httpPort := flag.Int("http-port", broker.DefaultHTTPPort, "HTTP port serving the operator control plane")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	entry := logrus.NewEntry(log)

	cfg := broker.NewConfig(
		broker.WithUDPPort(*udpPort),
		broker.WithHTTPPort(*httpPort),
	)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	metrics := broker.NewDefaultMetrics()
	reg := broker.NewRegistry()

	demux, err := broker.NewDemux(reg, cfg, metrics, entry)
	if err != nil {
		log.WithError(err).Fatal("failed to bind udp socket")
	}
	defer demux.Close()

	go func() {
		if err := demux.Run(); err != nil {
			log.WithError(err).Warn("demultiplexer stopped")
		}
	}()

	bridge := broker.NewBridge(reg, cfg, metrics)
	server := api.NewServer(bridge, entry)

	go func() {
		addr := ":" + strconv.Itoa(cfg.HTTPPort)
		if err := server.Run(addr); err != nil {
			log.WithError(err).Fatal("http server stopped")
		}
	}()

	log.WithFields(logrus.Fields{
		"udp_port":  cfg.UDPPort,
		"http_port": cfg.HTTPPort,
	}).Info("broker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")
}
