package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/capitalcayman/netbank/internal/api"
	"github.com/capitalcayman/netbank/internal/config"
	"github.com/capitalcayman/netbank/internal/gates"
	"github.com/capitalcayman/netbank/internal/handler"
	"github.com/capitalcayman/netbank/internal/infrastructure/kafka"
	"github.com/capitalcayman/netbank/internal/infrastructure/redis"
	"github.com/capitalcayman/netbank/internal/ledger"
	"github.com/capitalcayman/netbank/internal/observability"
	core "github.com/capitalcayman/netbank/internal/repository/postgres"
	service "github.com/capitalcayman/netbank/internal/services"
	"github.com/capitalcayman/netbank/internal/withdraw"
)

func main() {
	shutdown, _ := observability.Setup("netbank")
	defer shutdown(context.Background())

	cfg := config.Load()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	accountRepo := core.NewPostgresAccountRepository(db)
	transactionRepo := core.NewPostgresTransactionRepository(db)
	pendingRepo := core.NewPostgresPendingTransactionRepository(db)
	profileRepo := core.NewPostgresProfileRepository(db)
	auditRepo := core.NewPostgresAuditRepository(db)

	redisClient := redis.NewClient(cfg.RedisAddr)
	defer redisClient.Close()

	auditProducer := kafka.NewProducer(cfg.KafkaBrokers)
	defer auditProducer.Close()

	auditConsumer := kafka.NewConsumer(cfg.KafkaBrokers, "netbank-audit", auditRepo)
	defer auditConsumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go auditConsumer.Consume(ctx)

	ledgerClient := ledger.NewResilientClient(ledger.NewPostgresClient(db), 10*time.Second)

	verifier := gates.NewVerifier(cfg.VATCode, cfg.COTCode, redisClient, auditProducer, cfg.GateMaxAttempts, cfg.GateWindow)
	sessions := withdraw.NewSessionStore(cfg.SessionTTL)
	go sessions.RunEviction(ctx, time.Minute)
	orchestrator := withdraw.NewOrchestrator(verifier, ledgerClient, accountRepo, auditProducer, sessions)

	// Dangling requires_otp rows are swept once their code has been expired
	// for longer than the grace period.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := pendingRepo.ExpireStaleOTP(ctx, cfg.OTPSweepGrace)
				if err != nil {
					slog.Error("stale otp sweep failed", "error", err)
				} else if n > 0 {
					slog.Info("rejected stale otp transactions", "count", n)
				}
			}
		}
	}()

	authSvc := service.NewAuthService(profileRepo, redisClient, cfg.JWTSecret)
	bankingSvc := service.NewBankingService(accountRepo, transactionRepo, profileRepo, ledgerClient, redisClient)
	adminSvc := service.NewAdminService(pendingRepo, accountRepo, transactionRepo, profileRepo, ledgerClient, auditProducer)

	h := handler.NewHandler(authSvc, bankingSvc)
	wh := handler.NewWithdrawHandler(orchestrator)
	ah := handler.NewAdminHandler(adminSvc)
	router := api.SetupRouter(h, wh, ah, redisClient, cfg.JWTSecret)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	slog.Info("server stopped")
}
