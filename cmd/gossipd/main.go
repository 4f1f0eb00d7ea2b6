/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/gossip/internal/gossip/engine"
	"github.com/facebookincubator/gossip/internal/gossip/stats"
)

func main() {
	var (
		ipaddr          string
		port            int
		shredVersion    int
		queueCapacity   int
		bloomFilterSize int
		monitoringPort  int
		keyFile         string
		genKeypair      bool
		logLevel        string
		debugAddr       string
	)

	flag.StringVar(&ipaddr, "ip", "::", "IP to bind the gossip socket on")
	flag.IntVar(&port, "port", 8001, "UDP port to bind the gossip socket on")
	flag.IntVar(&shredVersion, "shredversion", 0, "Shred version to gate peers by; 0 accepts any")
	flag.IntVar(&queueCapacity, "queue", 10000, "Capacity of the ingress/verified/egress queues")
	flag.IntVar(&bloomFilterSize, "bloomsize", 4096, "Target entries per pull-request bloom filter")
	flag.IntVar(&monitoringPort, "monitoringport", 8888, "Port to run the prometheus metrics server on")
	flag.StringVar(&keyFile, "keyfile", "", "Path to a hex-encoded Ed25519 private key")
	flag.BoolVar(&genKeypair, "genkeypair", false, "Generate a new keypair at -keyfile and exit")
	flag.StringVar(&logLevel, "loglevel", "warning", "Set a log level. Can be: debug, info, warning, error")
	flag.StringVar(&debugAddr, "pprofaddr", "", "host:port for the pprof endpoint to bind")
	flag.Parse()

	switch logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("Unrecognized log level: %v", logLevel)
	}

	if genKeypair {
		if keyFile == "" {
			log.Fatal("-genkeypair requires -keyfile")
		}
		if err := generateKeypair(keyFile); err != nil {
			log.Fatalf("Failed to generate keypair: %v", err)
		}
		log.Infof("Wrote new keypair to %s", keyFile)
		return
	}

	keypair, err := loadKeypair(keyFile)
	if err != nil {
		log.Fatalf("Failed to load keypair: %v", err)
	}

	if debugAddr != "" {
		log.Warningf("Starting profiler on %s", debugAddr)
		go func() {
			log.Println(http.ListenAndServe(debugAddr, nil))
		}()
	}

	cfg := &engine.Config{
		Keypair:         keypair,
		IP:              net.ParseIP(ipaddr),
		Port:            port,
		ShredVersion:    uint16(shredVersion),
		QueueCapacity:   queueCapacity,
		BloomFilterSize: bloomFilterSize,
		MonitoringPort:  monitoringPort,
	}

	st := stats.NewPrometheus()

	e, err := engine.New(cfg, st)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Infof("Received %s, shutting down", sig)
		e.Stop()
	}()

	if err := e.Start(); err != nil {
		log.Fatalf("Engine run failed: %v", err)
	}
}

func generateKeypair(path string) error {
	if _, err := os.Stat(path); err == nil {
		log.Fatalf("%s already exists, refusing to overwrite", path)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(priv)), 0600)
}

func loadKeypair(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		log.Warning("No -keyfile given, generating an ephemeral keypair for this run")
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(string(b))
	if err != nil {
		return nil, err
	}
	if len(raw) != ed25519.PrivateKeySize {
		log.Fatalf("%s does not contain a valid Ed25519 private key", path)
	}
	return ed25519.PrivateKey(raw), nil
}
