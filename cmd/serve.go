package cmd

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/meridianmarket/ms-go-payments/app/client"
	"github.com/meridianmarket/ms-go-payments/app/controller"
	"github.com/meridianmarket/ms-go-payments/app/gateway"
	"github.com/meridianmarket/ms-go-payments/app/repository"
	"github.com/meridianmarket/ms-go-payments/app/service"
	"github.com/meridianmarket/ms-go-payments/app/types"
	"github.com/meridianmarket/ms-go-payments/config"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for the payments service.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, paymentService, cleanup := mustCreatePaymentService()
	defer cleanup()

	paymentController := controller.NewPaymentController(paymentService)
	e := setupHTTPServer(paymentController, cfg.App.APIKey)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(paymentController *controller.PaymentController, apiKey string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", paymentController.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Gateway callbacks authenticate with their own signatures, not the
	// internal API key.
	webhooks := e.Group("/webhooks/gateways")
	webhooks.POST("/:gateway/:ref", paymentController.HandleGatewayCallback)

	payments := e.Group("/payments", requireRequestID(), requireAPIKey(apiKey))
	payments.POST("", paymentController.InitiatePayment)
	payments.GET("", paymentController.ListPayments)
	payments.GET("/:id", paymentController.GetPayment)
	payments.POST("/:id/process", paymentController.ProcessPayment)
	payments.GET("/:id/transactions", paymentController.ListTransactions)
	payments.POST("/:id/refunds", paymentController.RequestRefund)
	payments.GET("/:id/refunds", paymentController.ListRefunds)
	payments.GET("/:id/refunds/:refundId", paymentController.GetRefund)

	return e
}

func requireRequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			requestID := strings.TrimSpace(ctx.Request().Header.Get(echo.HeaderXRequestID))
			if requestID == "" {
				return ctx.JSON(http.StatusBadRequest, &types.ErrorResponse{Error: "x-request-id header is required"})
			}
			ctx.Response().Header().Set(echo.HeaderXRequestID, requestID)
			return next(ctx)
		}
	}
}

func requireAPIKey(apiKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if apiKey == "" {
				return ctx.JSON(http.StatusServiceUnavailable, &types.ErrorResponse{Error: "service api key is not configured"})
			}
			provided := strings.TrimSpace(ctx.Request().Header.Get("X-API-Key"))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				return ctx.JSON(http.StatusUnauthorized, &types.ErrorResponse{Error: "invalid api key"})
			}
			return next(ctx)
		}
	}
}

func mustCreatePaymentService() (*config.Config, *service.PaymentService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	paymentRepo := repository.NewPaymentRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)
	refundRepo := repository.NewRefundRepository(db)
	callbackRepo := repository.NewGatewayCallbackRepository(db)

	ordersClient := client.NewOrdersClient(
		cfg.InternalEndpoints.OrdersBaseURL,
		cfg.InternalEndpoints.OrdersAPIKey,
		cfg.InternalEndpoints.HTTPTimeout,
	)
	methodsClient := client.NewMethodsClient(
		cfg.InternalEndpoints.MethodsBaseURL,
		cfg.InternalEndpoints.MethodsAPIKey,
		cfg.InternalEndpoints.HTTPTimeout,
	)

	gatewayRegistry := gateway.NewRegistry(buildGateways(cfg)...)
	paymentService := service.NewPaymentService(
		paymentRepo,
		transactionRepo,
		refundRepo,
		callbackRepo,
		gatewayRegistry,
		ordersClient,
		methodsClient,
		cfg.Payments,
		cfg.App.APIKey,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, paymentService, cleanup
}

func buildGateways(cfg *config.Config) []gateway.Gateway {
	var gateways []gateway.Gateway

	if cfg.Cardgate.Enabled {
		gateways = append(gateways, gateway.NewCardgate(gateway.CardgateConfig{
			BaseURL:                   cfg.Cardgate.BaseURL,
			SecretKey:                 cfg.Cardgate.SecretKey,
			WebhookSecret:             cfg.Cardgate.WebhookSecret,
			ReturnBaseURL:             cfg.Cardgate.ReturnBaseURL,
			SignatureToleranceSeconds: cfg.Cardgate.SignatureToleranceSeconds,
			HTTPTimeout:               cfg.Cardgate.HTTPTimeout,
		}))
	}
	if cfg.Mobipay.Enabled {
		gateways = append(gateways, gateway.NewMobipay(gateway.MobipayConfig{
			BaseURL:     cfg.Mobipay.BaseURL,
			APIKey:      cfg.Mobipay.APIKey,
			ShortCode:   cfg.Mobipay.ShortCode,
			HTTPTimeout: cfg.Mobipay.HTTPTimeout,
		}))
	}
	if cfg.Sandbox.Enabled {
		gateways = append(gateways, gateway.NewSandbox())
	}

	return gateways
}
