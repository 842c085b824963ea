package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"kioskd/pkg/channel"
	"kioskd/services/kiosk"
)

func main() {
	configPath := flag.String("config", kiosk.DefaultConfigPath, "path to agent configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "kiosk-agent: ", log.LstdFlags)

	cfg, err := kiosk.LoadAgentConfig(*configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}

	storage, err := kiosk.NewFileStorage(cfg.StatePath())
	if err != nil {
		logger.Fatalf("failed to open session storage: %v", err)
	}

	conn, err := channel.DialKiosk(cfg.NATSURL, cfg.MachineID)
	if err != nil {
		logger.Fatalf("failed to connect channel: %v", err)
	}
	defer conn.Close()

	client, err := kiosk.NewClient(conn, storage, kiosk.Options{
		MachineID: cfg.MachineID,
		Logger:    logger,
		Notify: func(err error) {
			logger.Printf("NOTICE: %v", err)
		},
		OnState: func(state channel.MachineState) {
			logger.Printf("state: step=%s loans=%d holds=%d fines=%d",
				state.Step, len(state.LoanItems), len(state.HoldItems), len(state.FineItems))
		},
	})
	if err != nil {
		logger.Fatalf("failed to initialize client: %v", err)
	}
	defer client.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := client.Start(ctx); err != nil {
		logger.Fatalf("session negotiation failed: %v", err)
	}

	<-ctx.Done()
}
