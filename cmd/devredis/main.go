// Package main runs an in-process miniredis server for local development
// and integration testing, standing in for a real Redis instance so the
// Redis-backed storage implementations can be exercised without external
// infrastructure.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alicebob/miniredis/v2"
)

func main() {
	s := miniredis.NewMiniRedis()
	if err := s.StartAddr("127.0.0.1:6379"); err != nil {
		log.Fatalf("failed to start miniredis: %v", err)
	}
	defer s.Close()

	log.Printf("devredis: listening on %s", s.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("devredis: shutting down")
}
