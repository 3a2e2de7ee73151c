// Command plug runs a simulated smart plug, standing in for the embedded
// firmware that drives the real relay hardware: it dials a broker,
// completes the handshake, answers heartbeats, and flips an in-memory
// relay in response to TurnOn/TurnOff.
package main

import (
	"flag"

	"github.com/sirupsen/logrus"

	"plugnet/plugsim"
)

func main() {
	broker := flag.String("broker", "127.0.0.1:8080", "broker UDP address to dial")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	entry := logrus.NewEntry(log)

	cfg := plugsim.NewConfig(*broker)
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	plug := plugsim.NewPlug(cfg, entry)
	log.WithField("plug", plug.ID).Info("plug simulator starting")

	if err := plug.Run(); err != nil {
		log.WithError(err).Fatal("plug simulator stopped")
	}
}
