package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/stanfordnlp/phrasal-sub010/decoder"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Decoder configuration file")
	addr := flag.String("addr", ":8080", "Listen address")
	flag.Parse()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := newServer(*configPath, decoder.NewMetrics(reg), reg)
	srv.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))

	// 1. Initial Load
	if err := srv.reloadEngine(); err != nil {
		log.Fatalf("Initial load failed: %v", err)
	}

	log.Printf("Server started on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, srv.routes()))
}
