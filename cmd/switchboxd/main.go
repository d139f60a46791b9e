// Command switchboxd runs the switchbox relay: a Root registry accepting
// connections on one or more Endpoints and routing client traffic to
// whichever network service connection currently claims a given cloud
// network name.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/iocafe/switchbox/switchbox"
)

var help = `
  Usage: switchboxd [--help]

  Flags:
    --listen     address(es) to accept service and client connections on,
                 comma-separated (default ":8817")
    --tls-listen address(es) to accept connections on with TLS, comma-separated
    --tls-cert   PEM certificate file for --tls-listen
    --tls-key    PEM key file for --tls-listen
    --status     address to serve a JSON status page on (disabled if empty)
    --key-seed   seed string for a reproducible relay identity (random if empty)
    --log-level  panic|fatal|error|warning|info|debug|trace (default "info")

`

func sigIntHandler(ctx context.Context, cancel context.CancelFunc) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Printf("signal received; shutting down")
	case <-ctx.Done():
	}
	signal.Stop(sig)
	cancel()
}

func main() {
	listen := flag.String("listen", ":8817", "")
	tlsListen := flag.String("tls-listen", "", "")
	tlsCert := flag.String("tls-cert", "", "")
	tlsKey := flag.String("tls-key", "", "")
	status := flag.String("status", "", "")
	keySeed := flag.String("key-seed", "", "")
	logLevel := flag.String("log-level", "info", "")
	showHelp := flag.Bool("help", false, "")
	showH := flag.Bool("h", false, "")
	flag.Usage = func() { fmt.Fprint(os.Stderr, help) }
	flag.Parse()

	if *showHelp || *showH {
		flag.Usage()
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sigIntHandler(ctx, cancel)

	logger := switchbox.NewLogger("switchboxd", switchbox.StringToLogLevel(*logLevel))

	root, err := switchbox.NewRoot(logger, *keySeed)
	if err != nil {
		logger.Log(switchbox.LogLevelFatal, "creating root: ", err)
	}
	logger.ILogf("relay identity fingerprint: %s", root.Identity().Fingerprint)
	root.ShutdownOnContext(ctx)

	statusFunc := func(ep *switchbox.Endpoint, st switchbox.EndpointStatus, err error) {
		if err != nil {
			logger.WLogf("endpoint %v: %s: %s", ep, st, err)
		} else {
			logger.ILogf("endpoint %v: %s", ep, st)
		}
	}

	var started int

	for _, addr := range splitAddrs(*listen) {
		ep := switchbox.NewEndpoint(logger, root, addr, nil, statusFunc)
		root.AddEndpoint(ep)
		if err := ep.Start(); err != nil {
			logger.Log(switchbox.LogLevelFatal, "starting endpoint: ", err)
		}
		started++
	}

	if *tlsListen != "" {
		tlsConfig, err := loadTLSConfig(*tlsCert, *tlsKey)
		if err != nil {
			logger.Log(switchbox.LogLevelFatal, "loading TLS config: ", err)
		}
		for _, addr := range splitAddrs(*tlsListen) {
			ep := switchbox.NewEndpoint(logger, root, addr, tlsConfig, statusFunc)
			root.AddEndpoint(ep)
			if err := ep.Start(); err != nil {
				logger.Log(switchbox.LogLevelFatal, "starting TLS endpoint: ", err)
			}
			started++
		}
	}

	if started == 0 {
		logger.Log(switchbox.LogLevelFatal, "no listen addresses configured")
	}

	if *status != "" {
		ss := switchbox.NewStatusServer(logger, root, *status)
		if err := ss.Start(ctx); err != nil {
			logger.Log(switchbox.LogLevelFatal, "starting status server: ", err)
		}
		root.AddShutdownChild(ss)
	}

	root.WaitShutdown()
	logger.ILogf("exiting")
}

func splitAddrs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("--tls-cert and --tls-key are required for --tls-listen")
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, err
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}
