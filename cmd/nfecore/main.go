package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	fiscalhttp "gestaofiscal/ms_nfe_core/internal/adapters/http/fiscal"
	healthhttp "gestaofiscal/ms_nfe_core/internal/adapters/http/health"
	emitterpg "gestaofiscal/ms_nfe_core/internal/adapters/emitter/postgres"
	eventpg "gestaofiscal/ms_nfe_core/internal/adapters/event/postgres"
	invoicepg "gestaofiscal/ms_nfe_core/internal/adapters/invoice/postgres"
	"gestaofiscal/ms_nfe_core/internal/adapters/sefaz"
	"gestaofiscal/ms_nfe_core/internal/adapters/sefaz/layout"
	appfiscal "gestaofiscal/ms_nfe_core/internal/application/fiscal"
	apphealth "gestaofiscal/ms_nfe_core/internal/application/health"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/config"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/credential"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/database"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/http/server"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/logger"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/schema"
	"gestaofiscal/ms_nfe_core/internal/infrastructure/xmldsig"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "service stopped: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.App.Name, cfg.Log.Level, cfg.App.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Database:        cfg.Database.Database,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := database.RunMigrations(ctx, pool, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	cred, err := loadCredential(cfg.Credential)
	if err != nil {
		return fmt.Errorf("load signing credential: %w", err)
	}
	defer cred.Close()

	identity := cred.Identity()
	validity := cred.Validate()
	log.Info("signing credential loaded",
		"holder", identity.HolderName,
		"cnpj", identity.CNPJ,
		"expires", identity.NotAfter,
		"near_expiry", validity.NearExpiry)

	tlsCert, err := cred.TLSCertificate()
	if err != nil {
		return fmt.Errorf("prepare mTLS certificate: %w", err)
	}

	validator, err := schema.New()
	if err != nil {
		return fmt.Errorf("load schema validator: %w", err)
	}
	if reason := validator.DisabledReason(); reason != "" {
		log.Warn("schema validation disabled", "reason", reason)
	}

	resolver, err := sefaz.NewEndpointResolver()
	if err != nil {
		return fmt.Errorf("load endpoint table: %w", err)
	}

	rootCAs, err := sefaz.LoadRootCAs(cfg.Sefaz.ExtraCAPath)
	if err != nil {
		return fmt.Errorf("load extra trust anchors: %w", err)
	}

	client := sefaz.NewClient(sefaz.ClientConfig{
		Certificate:      tlsCert,
		RootCAs:          rootCAs,
		QueryTimeout:     cfg.Sefaz.QueryTimeout,
		AuthorizeTimeout: cfg.Sefaz.AuthorizeTimeout,
		MaxConcurrent:    cfg.Sefaz.MaxConcurrent,
		BreakerFailures:  cfg.Sefaz.BreakerFailures,
		BreakerCooldown:  cfg.Sefaz.BreakerCooldown,
	}, resolver, log)

	emitters := emitterpg.NewRepository(pool, log)
	invoices := invoicepg.NewRepository(pool, log)
	events := eventpg.NewRepository(pool, log)

	fiscalService := appfiscal.NewService(
		emitters, invoices, events,
		layout.NewBuilder(nil, cfg.Emission.SoftwareVersion),
		xmldsig.NewSigner(cred),
		validator,
		client,
		log,
		appfiscal.Config{
			ReceiptPollAttempts: cfg.Sefaz.ReceiptPollAttempts,
			ReceiptPollInterval: cfg.Sefaz.ReceiptPollInterval,
			BatchWorkers:        cfg.Emission.BatchWorkers,
		},
	)

	healthService := apphealth.NewService(apphealth.Metadata{
		Service:     cfg.App.Name,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
	}, pool, cred)

	srv, err := server.New(server.Options{
		Config: cfg.HTTP,
		Logger: log,
		Health: healthhttp.NewHandler(healthService),
		Fiscal: fiscalhttp.NewHandler(fiscalService, cfg.HTTP.BatchTimeout, log),
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	return srv.Run(ctx)
}

func loadCredential(cfg config.CredentialSettings) (credential.Credential, error) {
	switch cfg.Type {
	case "a1":
		return credential.LoadA1(cfg.A1Path, cfg.A1Password)
	case "a3":
		return credential.LoadA3(credential.A3Config{
			LibraryPath: cfg.A3Library,
			TokenLabel:  cfg.A3TokenLabel,
			PIN:         cfg.A3PIN,
		})
	default:
		return nil, fmt.Errorf("unsupported credential type %q", cfg.Type)
	}
}
