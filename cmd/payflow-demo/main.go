// Command payflow-demo drives one interactive payment from a terminal. It is
// the smoke-test harness used against gateway sandboxes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/clinicore/payflow"
	"github.com/clinicore/payflow/config"
	"github.com/clinicore/payflow/core"
	"github.com/clinicore/payflow/obs"
	_ "github.com/clinicore/payflow/providers/lakala"
	_ "github.com/clinicore/payflow/providers/swiftpass"
)

func main() {
	_ = godotenv.Load()

	var (
		channel  = flag.String("channel", "swiftpass", "payment channel")
		amount   = flag.Int64("amount", 100, "charge amount in cents")
		subject  = flag.String("subject", "demo charge", "charge subject")
		mode     = flag.String("mode", "active", "scan mode: active or passive")
		authCode = flag.String("auth-code", "", "payer-presented code (passive mode)")
		switches = flag.String("switch-url", os.Getenv("PAYFLOW_SWITCH_URL"), "feature-flag service base URL")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdown, err := obs.Init(ctx, obs.Options{
		ServiceName: "payflow-demo",
		Exporter:    obs.ExporterStdout,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "observability init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	var source config.Source
	if *switches != "" {
		source = config.NewSwitchService(*switches)
	} else {
		source = config.Static{Settings: config.Settings{Channel: *channel, Enabled: true}}
	}

	client := payflow.NewClient(
		payflow.WithConfigSource(source),
		payflow.WithLogger(logger),
	)
	defer client.Shutdown(context.Background())

	ctl, err := client.Pay(ctx, payflow.PayRequest{
		Order: core.OrderRequest{
			ChargeID:    "demo-" + uuid.NewString(),
			AmountCents: *amount,
			Subject:     *subject,
			Mode:        core.ScanMode(*mode),
			AuthCode:    *authCode,
		},
		Surface: consoleSurface{},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "payment failed to start: %v\n", err)
		os.Exit(1)
	}

	res, err := ctl.Wait(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "interrupted: %v\n", err)
		ctl.Session().Destroy()
		os.Exit(1)
	}
	fmt.Printf("final status: %s (order %s)\n", res.Status, res.OrderNo)
}

// consoleSurface renders the dialog as log lines.
type consoleSurface struct{}

func (consoleSurface) ShowStatus(status core.Status, actions []core.Action) {
	fmt.Printf("status: %-12s actions: %v\n", status, actions)
}

func (consoleSurface) ShowQRCode(url string) {
	fmt.Printf("scan to pay: %s\n", url)
}

func (consoleSurface) ShowCountdown(remaining int) {
	if remaining%30 == 0 {
		fmt.Printf("expires in %ds\n", remaining)
	}
}

func (consoleSurface) SetActionLoading(action core.Action, loading bool) {}

func (consoleSurface) Close() {
	fmt.Println("dialog closed")
}
