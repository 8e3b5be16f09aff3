package main

import (
	"flag"
	"log"
	"net/http"

	"github.com/Harris-py/codecollab-go/internal/devserver"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	dataDir := flag.String("data-dir", "", "directory for session persistence (in-memory when empty)")
	flag.Parse()

	srv, err := devserver.New(devserver.Config{DataDir: *dataDir})
	if err != nil {
		log.Fatalf("devserver: %v", err)
	}

	log.Printf("devserver listening on %s", *addr)
	if err := http.ListenAndServe(*addr, srv); err != nil {
		log.Fatalf("devserver: %v", err)
	}
}
