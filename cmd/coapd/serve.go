package main

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nstackx/coap-engine/pkg/coap"
	log "github.com/nstackx/coap-engine/pkg/utils/logger"
)

var (
	listenAddr  string
	metricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a CoAP endpoint, answering well-known/core and serving registered resources",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":5683", "UDP address to bind the CoAP endpoint")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics", ":9464", "address to serve Prometheus metrics on, empty to disable")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	addr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return err
	}

	resources := coap.NewMapResourceTable()
	coap.RegisterWellKnownCore(resources)

	ctx, err := coap.NewContext(addr, resources)
	if err != nil {
		return err
	}
	defer ctx.Destroy()

	if metricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(coap.NewMetricsCollector(ctx))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Warnf("[coapd] metrics server stopped: %v", err)
			}
		}()
		log.Infof("[coapd] metrics listening on %s", metricsAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	buf := make([]byte, 2048)
	done := make(chan struct{})
	go func() {
		<-sigCh
		close(done)
	}()

	log.Infof("[coapd] serving on %s", ctx.Transport.LocalAddr())
	for {
		select {
		case <-done:
			log.Infof("[coapd] shutting down")
			return nil
		default:
		}

		ok, err := ctx.ReadOne(buf)
		if err != nil {
			log.Warnf("[coapd] read error: %v", err)
			continue
		}
		if ok {
			ctx.DrainReceiveQueue()
		}
		ctx.RunScheduler(ctx.Clock.Now())
	}
}
