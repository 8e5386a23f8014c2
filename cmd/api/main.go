package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Obiajulu-gif/chain-move-sub000/internal/config"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/db"
	internalhttp "github.com/Obiajulu-gif/chain-move-sub000/internal/http"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/services"
	"github.com/Obiajulu-gif/chain-move-sub000/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	st := store.NewPostgres(pool)
	paymentSvc := &services.PaymentService{
		Store:     st,
		RefPrefix: cfg.Payments.ReferencePrefix,
		PageCap:   cfg.Payments.PageCap,
	}

	h := internalhttp.NewHandler(paymentSvc, cfg.Gateway.WebhookSecret)
	srv := internalhttp.NewServer(h)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		log.Printf("api listening on %s", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}
