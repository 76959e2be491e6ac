package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"iap-bridge/internal/backend"
	"iap-bridge/internal/bridge"
	"iap-bridge/internal/config"
	"iap-bridge/internal/consumer"
	"iap-bridge/internal/handler"
	"iap-bridge/internal/metrics"
	"iap-bridge/internal/platform"
	"iap-bridge/internal/publisher"
	"iap-bridge/internal/repository"
	"iap-bridge/internal/sender"
	"iap-bridge/internal/service"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)

	if err := godotenv.Load(); err != nil {
		log.Warn("Could not load .env file.")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Could not load configuration")
	}
	log.SetLevel(cfg.Level())
	log.Info("Starting purchase bridge...")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	events := bridge.Init(bridge.WithObserver(m.ObserveDelivery))

	// This binary links no native store bindings, so the unsupported backend
	// is selected and the acknowledger stays unregistered.
	b := platform.Current(platform.Natives{
		PackageName: cfg.PackageName,
		WindowLabel: cfg.WindowLabel,
	}, events)
	svc := service.NewPurchaseService(b, m)
	if backend.NameOf(b) != "unsupported" {
		mustRegister(events, cfg.EventName, service.NewAcknowledger(svc))
	}

	if cfg.DatabaseURL != "" {
		db := openDatabase(cfg)
		defer db.Close()
		mustRegister(events, cfg.EventName, repository.NewPostgresPurchaseEventRepository(db, cfg.EventName))
	} else {
		log.Warn("DATABASE_URL is not set, purchase events will not be recorded")
	}

	if cfg.SMTP.Enabled() {
		s := sender.NewSMTPEmailSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Password, cfg.SMTP.From)
		mustRegister(events, cfg.EventName, sender.NewPurchaseAlert(s, cfg.SMTP.To))
	} else {
		log.Warn("SMTP environment variables are not set, purchase alerts disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Kafka.Enabled() {
		log.WithField("kafka_servers", cfg.Kafka.BootstrapServers).Info("Connecting to Kafka")

		producer, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": cfg.Kafka.BootstrapServers})
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer func() {
			producer.Flush(5000)
			producer.Close()
		}()
		mustRegister(events, cfg.EventName, publisher.NewKafkaPublisher(producer, cfg.Kafka.UpdatesTopic))

		kc, err := kafka.NewConsumer(&kafka.ConfigMap{
			"bootstrap.servers": cfg.Kafka.BootstrapServers,
			"group.id":          cfg.Kafka.GroupID,
			"auto.offset.reset": "earliest",
		})
		if err != nil {
			log.WithError(err).Fatal("Failed to create Kafka consumer")
		}
		notifications, err := consumer.NewKafkaConsumer(kc, cfg.Kafka.NotificationsTopic,
			handler.NewNotificationHandler(events, cfg.EventName))
		if err != nil {
			log.WithError(err).Fatal("Failed to subscribe to topic")
		}
		defer notifications.Close()

		g.Go(func() error {
			return notifications.Start(ctx)
		})
	} else {
		log.Warn("KAFKA_BOOTSTRAP_SERVERS is not set, store notification intake disabled")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		log.WithField("addr", cfg.MetricsAddr).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("Purchase bridge stopped with error")
	}
	events.Close()
	log.Info("Purchase bridge stopped")
}

func openDatabase(cfg *config.Config) *sql.DB {
	mg, err := migrate.New("file://db/migrations", cfg.MigrationURL())
	if err != nil {
		log.WithError(err).Fatal("Could not create migration instance")
	}
	if err := mg.Up(); err != nil && err != migrate.ErrNoChange {
		log.WithError(err).Fatal("Could not apply migration")
	}
	log.Info("Database migration successfully applied")

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	return db
}

func mustRegister(events *bridge.Registry, event string, h bridge.Handler) {
	if _, err := events.Register(event, h); err != nil {
		log.WithError(err).WithField("event", event).Fatal("Could not register listener")
	}
}
