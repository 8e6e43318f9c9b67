// Package subscriptiongateway собирает приложение: хранилище, миграции,
// кэш, платёжных провайдеров, брокер уведомлений, сервисы и HTTP-сервер.
package subscriptiongateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-gateway/internal/cache"
	"github.com/magabrotheeeer/subscription-gateway/internal/config"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/token"
	"github.com/magabrotheeeer/subscription-gateway/internal/migrations"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/paymentprovider"
	accessservice "github.com/magabrotheeeer/subscription-gateway/internal/services/access"
	adminservice "github.com/magabrotheeeer/subscription-gateway/internal/services/admin"
	authservice "github.com/magabrotheeeer/subscription-gateway/internal/services/auth"
	paymentservice "github.com/magabrotheeeer/subscription-gateway/internal/services/payment"
	subservice "github.com/magabrotheeeer/subscription-gateway/internal/services/subscription"
	sweeperservice "github.com/magabrotheeeer/subscription-gateway/internal/services/sweeper"
	"github.com/magabrotheeeer/subscription-gateway/internal/storage/repository"
)

type App struct {
	server     *http.Server
	logger     *slog.Logger
	db         *repository.Storage
	sweeper    *sweeperservice.Service
	rabbitConn *amqp.Connection
	rabbitCh   *amqp.Channel
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}
	if err = repository.CheckDatabaseReady(db); err != nil {
		return nil, err
	}
	if err = db.EnsureDefaultPlans(ctx); err != nil {
		return nil, err
	}
	// Пробный период опирается на месячный план, без него не стартуем.
	if _, err = db.FindTrialPlan(ctx); err != nil {
		return nil, fmt.Errorf("no active monthly plan: %w", err)
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	var rabbitConn *amqp.Connection
	var rabbitCh *amqp.Channel
	if cfg.RabbitMQURL != "" {
		rabbitConn, err = rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
		if err != nil {
			return nil, err
		}
		rabbitCh, err = rabbitmq.SetupChannel(rabbitConn, rabbitmq.GetNotificationQueues())
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("rabbitmq url is not set, expiry events will not be published")
	}

	providers := make(map[string]paymentprovider.Provider)
	if cfg.AlipayAppID != "" {
		alipay, err := paymentprovider.NewAlipay(cfg.Alipay)
		if err != nil {
			return nil, err
		}
		providers[models.ProviderAlipay] = alipay
	}
	if cfg.PaypalClientID != "" {
		providers[models.ProviderPaypal] = paymentprovider.NewPaypal(cfg.Paypal)
	}
	if len(providers) == 0 {
		logger.Warn("no payment providers configured, only direct subscribe is available")
	}

	tokenMaker := token.NewMaker(cfg.Session.SecretKey, cfg.Session.TokenTTL)

	subscriptionService := subservice.New(db, cacheRedis, logger)
	authService := authservice.New(db, tokenMaker, cfg.Session.TokenTTL, logger)
	accessService := accessservice.New(db, logger)
	paymentService := paymentservice.New(db, subscriptionService, providers, cfg.CNYToUSDRate, logger)
	adminService := adminservice.New(db, cfg.AdminPassword, cfg.Session.AdminSessionTTL, logger)
	sweeper := sweeperservice.New(db, rabbitCh, cfg.Sweeper.Interval, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger,
		authService, subscriptionService, accessService, paymentService, adminService)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:     srv,
		logger:     logger,
		db:         db,
		sweeper:    sweeper,
		rabbitConn: rabbitConn,
		rabbitCh:   rabbitCh,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	go a.sweeper.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if a.rabbitCh != nil {
			if cerr := a.rabbitCh.Close(); cerr != nil {
				a.logger.Error("failed to close rabbitmq channel", sl.Err(cerr))
			}
		}
		if a.rabbitConn != nil {
			if cerr := a.rabbitConn.Close(); cerr != nil {
				a.logger.Error("failed to close rabbitmq connection", sl.Err(cerr))
			}
		}
		if cerr := a.db.DB.Close(); cerr != nil {
			a.logger.Error("failed to close database", sl.Err(cerr))
		}
		return err
	}
}
