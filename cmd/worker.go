package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/carnimore/checkout/internal/gatewaysim"
	"github.com/carnimore/checkout/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start worker pools that run alongside the HTTP server.`,
}

var gatewaySimCmd = &cobra.Command{
	Use:   "gateway-sim",
	Short: "Run the card gateway simulator",
	Long: `Accept authorization requests the way the card gateway does and deliver
postbacks to the URL each request names. Cards ending 0002 are declined,
cards ending 0119 get an interim response, everything else is approved.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startGatewaySim()
	},
}

var (
	simPort       int
	simWorkers    int
	simQueueSize  int
	simFormat     string
	simDeliveries int
	simTLSCert    string
	simTLSKey     string
)

func startGatewaySim() error {
	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	lg := logger.L()

	simConfig := gatewaysim.Config{
		AccountID:     config.Payment.AccountID,
		RestrictKey:   config.Payment.RestrictKey,
		Workers:       getIntFlag(simWorkers, config.GatewaySim.Workers),
		QueueSize:     getIntFlag(simQueueSize, config.GatewaySim.QueueSize),
		Format:        getStringFlag(simFormat, config.GatewaySim.DeliveryFormat),
		Deliveries:    getIntFlag(simDeliveries, config.GatewaySim.Deliveries),
		DeliveryDelay: config.GatewaySim.DeliveryDelay,
	}
	port := getIntFlag(simPort, config.GatewaySim.Port)

	lg.Info("starting gateway simulator",
		"port", port,
		"workers", simConfig.Workers,
		"format", simConfig.Format,
		"deliveries", simConfig.Deliveries,
		"tls", simTLSCert != "")

	sim := gatewaysim.New(simConfig, nil, lg)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           sim,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if simTLSCert != "" {
			err = server.ListenAndServeTLS(simTLSCert, simTLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway simulator: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		lg.Info("shutting down gateway simulator")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("simulator shutdown error", "error", err)
		}

		done := make(chan struct{})
		go func() {
			sim.Shutdown()
			close(done)
		}()
		select {
		case <-done:
			lg.Info("gateway simulator worker pool shutdown complete")
		case <-shutdownCtx.Done():
			lg.Warn("shutdown timeout reached, forcing exit")
		}
		return nil
	})

	return g.Wait()
}

func getStringFlag(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func init() {
	gatewaySimCmd.Flags().IntVar(&simPort, "port", 0, "Listen port (overrides config)")
	gatewaySimCmd.Flags().IntVar(&simWorkers, "workers", 0, "Number of delivery workers (overrides config)")
	gatewaySimCmd.Flags().IntVar(&simQueueSize, "queue-size", 0, "Pending job buffer (overrides config)")
	gatewaySimCmd.Flags().StringVar(&simFormat, "format", "", "Postback format: delimited or json (overrides config)")
	gatewaySimCmd.Flags().IntVar(&simDeliveries, "deliveries", 0, "Times each postback is delivered (overrides config)")
	gatewaySimCmd.Flags().StringVar(&simTLSCert, "tls-cert", "", "Serve TLS with this certificate file")
	gatewaySimCmd.Flags().StringVar(&simTLSKey, "tls-key", "", "Key file for --tls-cert")

	workerCmd.AddCommand(gatewaySimCmd)
	rootCmd.AddCommand(workerCmd)
}
