package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openbanking-demos/tpp-backend/bank"
	"github.com/openbanking-demos/tpp-backend/consent"
	"github.com/openbanking-demos/tpp-backend/exchange"
	"github.com/openbanking-demos/tpp-backend/internal/config"
	"github.com/openbanking-demos/tpp-backend/keys"
	"github.com/openbanking-demos/tpp-backend/server"
	"github.com/openbanking-demos/tpp-backend/server/websession"
	"github.com/openbanking-demos/tpp-backend/token"
	"github.com/openbanking-demos/tpp-backend/transport"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	setupLogging(cfg.Env)
	displayAppName(cfg.AppName)

	srv, err := buildServer(cfg)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server.ListenAndServe: %w", err)
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func buildServer(cfg *config.Config) (*server.Server, error) {
	material, err := keys.Load(keys.Paths{
		SigningKeyPath:     cfg.TLS.SigningKeyPath,
		CertificatePath:    cfg.TLS.CertificatePath,
		TransportKeyPath:   cfg.TLS.TransportKeyPath,
		TrustStorePath:     cfg.TLS.TrustStorePath,
		TrustStorePassword: cfg.TLS.TrustStorePassword,
	})
	if err != nil {
		return nil, err
	}

	signer, err := token.NewSigner(material.SigningKey, cfg.OAuth.Algorithm, cfg.OAuth.SigningKeyID, cfg.OAuth.TokenType)
	if err != nil {
		return nil, err
	}

	builder, err := token.NewAssertionBuilder(signer, token.AssertionConfig{
		ClientID:     cfg.OAuth.ClientID,
		TokenURL:     cfg.OAuth.TokenURL,
		RedirectURI:  cfg.OAuth.RedirectURI,
		ResponseType: cfg.OAuth.ResponseType,
		Scope:        cfg.OpenBanking.AccountsScope + " " + cfg.OpenBanking.PaymentsScope,
		Validity:     cfg.OAuth.AssertionValidity,
	})
	if err != nil {
		return nil, err
	}

	client := transport.New(material)

	exchanger, err := exchange.New(client, builder, exchange.Config{
		TokenURL:      cfg.OAuth.TokenURL,
		ClientID:      cfg.OAuth.ClientID,
		RedirectURI:   cfg.OAuth.RedirectURI,
		ExchangeScope: cfg.OpenBanking.AccountsScope,
	})
	if err != nil {
		return nil, err
	}

	engine, err := consent.NewEngine(exchanger, client, builder, consent.NewInMemoryRepo(), consent.Config{
		AuthorizeURL:       cfg.OAuth.AuthorizeURL,
		ClientID:           cfg.OAuth.ClientID,
		RedirectURI:        cfg.OAuth.RedirectURI,
		ResponseType:       cfg.OAuth.ResponseType,
		Prompt:             cfg.OAuth.Prompt,
		FAPIFinancialID:    cfg.OpenBanking.FAPIFinancialID,
		AccountsConsentURL: cfg.OpenBanking.AccountsBaseURL + "/account-access-consents",
		PaymentsConsentURL: cfg.OpenBanking.PaymentsBaseURL + "/payment-consents",
		AccountsScope:      cfg.OpenBanking.AccountsScope,
		PaymentsScope:      cfg.OpenBanking.PaymentsScope,
		TimeOffset:         cfg.OpenBanking.ConsentTimeOffset,
	})
	if err != nil {
		return nil, err
	}

	bankService := bank.NewService(bank.NewStore(), client, bank.Config{
		AccountsBaseURL: cfg.OpenBanking.AccountsBaseURL,
		FAPIFinancialID: cfg.OpenBanking.FAPIFinancialID,
		BankName:        cfg.Bank.Name,
		BankLogo:        cfg.Bank.Logo,
		PrimaryColor:    cfg.Bank.PrimaryColor,
		SecondaryColor:  cfg.Bank.SecondaryColor,
	})

	return server.New(cfg, server.Deps{
		Consents:  engine,
		Exchanger: exchanger,
		Refresher: exchanger,
		Sessions:  websession.NewInMemoryRepo(),
		Bank:      bankService,
	})
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if env == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func displayAppName(appName string) {
	myFigure := figure.NewFigure(appName, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
