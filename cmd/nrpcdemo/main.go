// Command nrpcdemo serves a small planet catalog over HTTP, in both
// the OpenAPI style and the internal protocol, and optionally over
// NATS.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/muir/nrpc/nserve"
	"github.com/muir/nrpc/nvelope"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %+v", err)
	}
	logger := nvelope.LoggerFromStd(log.New(os.Stderr, "nrpcdemo ", log.LstdFlags))()

	app, err := nserve.CreateApp("nrpcdemo",
		func() Config { return cfg },
		func() nvelope.BasicLogger { return logger },
		newStore,
		newRegistry,
		newHTTPServer,
		newNATSResponder,
		func(*httpServer, *natsResponder) {},
	)
	if err != nil {
		log.Fatalf("create: %+v", err)
	}
	if err := app.Do(nserve.Start); err != nil {
		log.Fatalf("start: %+v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	if err := app.Do(nserve.Stop); err != nil {
		logger.Error("stop", map[string]interface{}{"error": err.Error()})
	}
	if err := app.Do(nserve.Shutdown); err != nil {
		logger.Error("shutdown", map[string]interface{}{"error": err.Error()})
	}
}
