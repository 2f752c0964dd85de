// Package testutil provides an in-process JetStream store for tests,
// grounded on cmd/oaengine's own embedded-NATS composition (itself
// carried from the teacher's cmd/semspec/app.go startNATS): a random-port,
// JetStream-enabled nats-server instance with no persistence between
// tests, torn down via t.Cleanup.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/oaengine/internal/store"
)

// NewStore starts an embedded JetStream-enabled NATS server, connects to
// it, and returns a fresh Store. The server and connection are closed
// automatically when the test completes.
func NewStore(t *testing.T) *store.Store {
	t.Helper()

	opts := &server.Options{
		Port:      -1,
		JetStream: true,
		NoLog:     true,
		NoSigs:    true,
		StoreDir:  t.TempDir(),
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("create embedded NATS server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server failed to start")
	}
	t.Cleanup(ns.Shutdown)

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect to embedded NATS: %v", err)
	}
	t.Cleanup(conn.Close)

	js, err := jetstream.New(conn)
	if err != nil {
		t.Fatalf("create JetStream context: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := store.New(ctx, js)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	return st
}
