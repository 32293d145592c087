package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/digimarket/internal/catalog"
	"github.com/joao-fontenele/digimarket/internal/config"
	"github.com/joao-fontenele/digimarket/internal/coupon"
	"github.com/joao-fontenele/digimarket/internal/license"
	"github.com/joao-fontenele/digimarket/internal/messaging"
	"github.com/joao-fontenele/digimarket/internal/notify"
	"github.com/joao-fontenele/digimarket/internal/orders"
	"github.com/joao-fontenele/digimarket/internal/payment"
	"github.com/joao-fontenele/digimarket/internal/payout"
	"github.com/joao-fontenele/digimarket/internal/settlement"
	"github.com/joao-fontenele/digimarket/internal/telemetry"
	"github.com/joao-fontenele/digimarket/internal/wallet"
)

const serviceName = "market"

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		telemetry.NewLogger(os.Stdout, config.Log{}, serviceName).Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.Log, serviceName)

	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.Telemetry.ServiceVersion, cfg.Telemetry.TracingEnabled)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, cfg.Telemetry.ServiceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	db, err := telemetry.OpenDB(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var notifier notify.Sender = notify.NewLog(logger)
	if len(cfg.KafkaBrokers) > 0 {
		publisher := messaging.NewPublisher(cfg.KafkaBrokers, cfg.Notifications.Topic)
		defer func() { _ = publisher.Close() }()

		async := notify.NewAsync(publisher, logger)
		defer async.Wait()
		notifier = async
	} else {
		logger.Warn("KAFKA_BROKERS not set, notifications are only logged")
	}

	httpClient := &http.Client{
		Timeout:   15 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	products := catalog.NewRepository(db)
	coupons := coupon.NewService(coupon.NewRepository())
	orderRepo := orders.NewRepository(db)
	assembler := orders.NewAssembler(db, orderRepo, products, coupons, notifier,
		cfg.Market.CommissionRate, cfg.Market.AdminEmail, logger)

	licenseRepo := license.NewRepository(db)
	licenses := license.NewService(db, licenseRepo, products, logger)

	ledger := wallet.NewLedger(db)
	topUps := wallet.NewTopUps(db)

	engine := settlement.NewEngine(db, orderRepo, topUps, products, license.NewIssuer(licenseRepo),
		ledger, settlement.NewEventLog(), notifier, logger)

	var gateways []payment.Option
	if cfg.Paypal.ClientID != "" {
		gateways = append(gateways, payment.WithPayPal(
			payment.NewPayPal(cfg.Paypal, cfg.Market.Currency, httpClient), cfg.Market.PublicBaseURL))
	} else {
		logger.Warn("PAYPAL_CLIENT_ID not set, gateway-A payments are disabled")
	}
	if cfg.Braintree.Enabled() {
		gateways = append(gateways, payment.WithBraintree(payment.NewBraintree(cfg.Braintree)))
	} else {
		logger.Warn("braintree credentials not set, gateway-B payments are disabled")
	}
	dispatcher := payment.NewDispatcher(db, orderRepo, topUps, ledger, engine, logger, gateways...)

	payouts := payout.NewManager(db, payout.NewRepository(db), products, ledger, notifier,
		cfg.Market.MinPayout, cfg.Market.AdminEmail, logger)

	orderHandler := orders.NewHandler(assembler, logger)
	couponHandler := coupon.NewHandler(db, coupons, products, logger)
	paymentHandler := payment.NewHandler(dispatcher, logger)
	walletHandler := wallet.NewHandler(ledger, logger)
	payoutHandler := payout.NewHandler(payouts, logger)
	licenseHandler := license.NewHandler(licenses, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(orderHandler.HandleCreate))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("POST /coupons/validate", telemetry.WithHTTPRoute(couponHandler.HandleValidate))

	mux.HandleFunc("POST /payments/sessions", telemetry.WithHTTPRoute(paymentHandler.HandleCreateSession))
	mux.HandleFunc("GET /payments/paypal/return", telemetry.WithHTTPRoute(paymentHandler.HandlePayPalReturn))
	mux.HandleFunc("POST /payments/braintree/checkout", telemetry.WithHTTPRoute(paymentHandler.HandleBraintreeCheckout))
	mux.HandleFunc("POST /webhooks/paypal", telemetry.WithHTTPRoute(paymentHandler.HandlePayPalWebhook))
	mux.HandleFunc("POST /webhooks/braintree", telemetry.WithHTTPRoute(paymentHandler.HandleBraintreeWebhook))

	mux.HandleFunc("GET /wallet", telemetry.WithHTTPRoute(walletHandler.HandleGet))
	mux.HandleFunc("POST /wallet/topups", telemetry.WithHTTPRoute(paymentHandler.HandleTopUp))
	mux.HandleFunc("GET /wallet/audit", telemetry.WithHTTPRoute(walletHandler.HandleAudit))

	mux.HandleFunc("POST /payouts", telemetry.WithHTTPRoute(payoutHandler.HandleRequest))
	mux.HandleFunc("GET /payouts", telemetry.WithHTTPRoute(payoutHandler.HandleList))
	mux.HandleFunc("POST /payouts/{id}/process", telemetry.WithHTTPRoute(payoutHandler.HandleProcess))

	mux.HandleFunc("GET /licenses", telemetry.WithHTTPRoute(licenseHandler.HandleList))
	mux.HandleFunc("GET /licenses/{key}", telemetry.WithHTTPRoute(licenseHandler.HandleGet))
	mux.HandleFunc("POST /licenses/{key}/activate", telemetry.WithHTTPRoute(licenseHandler.HandleActivate))
	mux.HandleFunc("POST /licenses/{key}/deactivate", telemetry.WithHTTPRoute(licenseHandler.HandleDeactivate))
	mux.HandleFunc("POST /licenses/{key}/download", telemetry.WithHTTPRoute(licenseHandler.HandleDownload))
	mux.HandleFunc("POST /licenses/{key}/revoke", telemetry.WithHTTPRoute(licenseHandler.HandleRevoke))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      otelhttp.NewHandler(mux, serviceName, otelhttp.WithSpanNameFormatter(telemetry.SpanName)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting market service", "addr", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
