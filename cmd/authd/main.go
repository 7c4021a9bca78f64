package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MustafaBasol/crm-sub006/internal/attempt"
	"github.com/MustafaBasol/crm-sub006/internal/audit"
	"github.com/MustafaBasol/crm-sub006/internal/auth"
	"github.com/MustafaBasol/crm-sub006/internal/captcha"
	"github.com/MustafaBasol/crm-sub006/internal/config"
	"github.com/MustafaBasol/crm-sub006/internal/database"
	"github.com/MustafaBasol/crm-sub006/internal/email"
	"github.com/MustafaBasol/crm-sub006/internal/logger"
	"github.com/MustafaBasol/crm-sub006/internal/repository"
	"github.com/MustafaBasol/crm-sub006/internal/service"
)

// daemon holds the wired auth core. The services are consumed in-process
// by the surrounding application; authd itself runs the background
// maintenance and the operational subcommands.
type daemon struct {
	auth    *service.AuthService
	mfa     *service.MFAService
	admin   *service.AdminService
	sweeper *service.Sweeper
	log     *logger.Logger
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", "0.1.0").Msg("starting auth core")

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Connect to Redis
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("connected to Redis")

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	tenantRepo := repository.NewTenantRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	backupCodeRepo := repository.NewBackupCodeRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	adminRepo := repository.NewAdminRepository(db)

	// Initialize token service
	tokenSvc, err := auth.NewTokenService(cfg.Security.Tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token service")
	}
	log.Info().
		Str("issuer", cfg.Security.Tokens.Issuer).
		Dur("session_ttl", tokenSvc.SessionTTL()).
		Msg("token service initialized")

	// Failed-login tracking with Redis primary and in-process fallback
	attemptStore := attempt.NewRedisStore(rdb.Client, cfg.Security.LoginThrottle.StoreTimeout)
	tracker := attempt.NewTracker(attemptStore, cfg.Security.LoginThrottle, log)

	// Human-verification challenge gate
	var verifier captcha.Verifier
	if cfg.Captcha.VerifyURL != "" {
		verifier = captcha.NewHTTPVerifier(cfg.Captcha)
	} else {
		log.Warn().Msg("no captcha endpoint configured, challenges auto-pass")
		verifier = captcha.Static{Result: true}
	}

	// Audit trail with PII masking
	masker := audit.NewMasker(cfg.Audit.PIIFields)
	recorder := audit.NewRecorder(auditRepo, masker, audit.DefaultRegistrations(), log)

	// Outbound email (log transport until a real one is wired)
	mailer := email.NewLogSender(log)

	// Single-use token ledger with Redis-backed resend cooldown
	ledger := service.NewTokenLedger(tokenRepo, rdb, cfg.Security.Tokens, log)

	hashcfg := auth.NewParams(
		cfg.Security.Password.Argon2Memory,
		cfg.Security.Password.Argon2Iterations,
		cfg.Security.Password.Argon2Parallelism,
	)
	totpEngine := auth.NewTOTPEngine(cfg.MFA.TOTP)

	// Initialize services
	mfaSvc := service.NewMFAService(userRepo, backupCodeRepo, rdb, totpEngine, hashcfg, recorder, log)
	authSvc := service.NewAuthService(service.AuthServiceDeps{
		Users:        userRepo,
		Tenants:      tenantRepo,
		Tokens:       tokenSvc,
		Ledger:       ledger,
		Tracker:      tracker,
		Captcha:      verifier,
		SecondFactor: mfaSvc,
		Mailer:       mailer,
		Recorder:     recorder,
		Config:       cfg,
		Log:          log,
	})
	adminSvc := service.NewAdminService(adminRepo, backupCodeRepo, totpEngine, hashcfg, recorder, log)
	log.Info().Msg("services initialized")

	d := &daemon{
		auth:    authSvc,
		mfa:     mfaSvc,
		admin:   adminSvc,
		sweeper: service.NewSweeper(tokenRepo, tracker, cfg.Security.Tokens.SweepInterval, log),
		log:     log,
	}

	if len(os.Args) > 1 && os.Args[1] == "bootstrap-admin" {
		os.Exit(d.bootstrapAdmin())
	}

	d.run()
}

// run blocks until SIGINT/SIGTERM, sweeping expired state in the background
func (d *daemon) run() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if ok, err := d.admin.Bootstrapped(ctx); err != nil {
		d.log.Error().Err(err).Msg("failed to check admin identity")
	} else if !ok {
		d.log.Warn().Msg("admin identity not bootstrapped, run: authd bootstrap-admin")
	}

	go d.sweeper.Run(ctx)

	<-ctx.Done()
	d.log.Info().Msg("shutdown signal received")
	d.log.Info().Msg("auth core stopped")
}

// bootstrapAdmin initializes the out-of-band admin identity from
// CRMAUTH_ADMIN_USERNAME and CRMAUTH_ADMIN_PASSWORD and prints the TOTP
// provisioning URI and recovery codes exactly once.
func (d *daemon) bootstrapAdmin() int {
	username := os.Getenv("CRMAUTH_ADMIN_USERNAME")
	password := os.Getenv("CRMAUTH_ADMIN_PASSWORD")
	if username == "" || password == "" {
		fmt.Fprintln(os.Stderr, "CRMAUTH_ADMIN_USERNAME and CRMAUTH_ADMIN_PASSWORD must be set")
		return 1
	}

	creds, err := d.admin.Bootstrap(context.Background(), username, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		return 1
	}

	fmt.Println("Admin identity bootstrapped.")
	fmt.Println()
	fmt.Printf("TOTP provisioning URI:\n  %s\n\n", creds.Enrollment.URL)
	fmt.Println("Recovery codes (shown once, store them safely):")
	for _, code := range creds.RecoveryCodes {
		fmt.Printf("  %s\n", code)
	}
	return 0
}
