package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/jabolina/go-taskgraph/pkg/taskgraph"
	"github.com/jabolina/go-taskgraph/pkg/taskgraph/definition"
	"github.com/jabolina/go-taskgraph/pkg/taskgraph/types"
)

func main() {
	workerAddr := flag.String("worker-addr", ":0", "bind address for the worker-facing endpoint")
	clientAddr := flag.String("client-addr", ":0", "bind address for the client-facing endpoint")
	poolSize := flag.Int64("dispatch-pool-size", 100, "concurrently running RPC handlers per endpoint")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log := definition.NewDefaultLogger()
	log.ToggleDebug(*debug)

	cfg := types.DefaultConfig()
	cfg.WorkerAddress = *workerAddr
	cfg.ClientAddress = *clientAddr
	cfg.DispatchPoolSize = *poolSize
	cfg.Logger = log

	coordinator, err := taskgraph.NewCoordinator(cfg, definition.NewSimpleDAGState())
	if err != nil {
		log.Fatalf("starting coordinator: %v", err)
	}

	log.Infof("worker endpoint listening on %s", coordinator.WorkerAddr())
	log.Infof("client endpoint listening on %s", coordinator.ClientAddr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Infof("shutting down")
	coordinator.Close()
}
