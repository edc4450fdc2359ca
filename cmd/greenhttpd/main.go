// Command greenhttpd runs the demo application behind the gateway
// server, for manual testing and as a worked example of wiring a
// gateway.Server end to end.
package main

import (
	"flag"
	"log"
	"net"
	"os"

	"go.uber.org/zap"

	"github.com/greenhttp/greenhttp/gateway"
	"github.com/greenhttp/greenhttp/internal/demoapp"
)

var (
	addr           = flag.String("addr", ":8080", "address to listen on")
	serverSoftware = flag.String("server-software", "greenhttp/0.1", "value for SERVER_SOFTWARE / the Server response header")
	maxConnections = flag.Int64("max-connections", 0, "maximum simultaneously served connections, 0 for unlimited")
)

func main() {
	flag.Parse()

	logger, err := gateway.NewLogger()
	if err != nil {
		log.Fatalf("greenhttpd: building logger: %v", err)
	}
	defer logger.Sync()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Fatal("greenhttpd: listen failed", zap.Error(err))
	}

	srv := gateway.NewServer(gateway.ServerConfig{
		ServerSoftware: *serverSoftware,
		ServerName:     hostnameOrDefault(),
		MaxConnections: *maxConnections,
		App:            demoapp.New(),
		Logger:         logger,
		Metrics:        gateway.NewMetrics(),
	})

	logger.Sugar().Infof("greenhttpd: listening on %s", *addr)
	if err := srv.Serve(ln); err != nil {
		logger.Sugar().Fatalf("greenhttpd: serve exited: %v", err)
	}
}

func hostnameOrDefault() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}
