package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookstore/internal/app"
	"github.com/vladislavdragonenkov/bookstore/internal/version"
)

func main() {
	cfg, err := app.LoadConfig(os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация окружения")
	}
	app.ConfigureLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"build":        version.Get().String(),
	}).Info("запускаем bookstore-api")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("bookstore-api остановлен")
}
