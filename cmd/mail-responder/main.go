// Command mail-responder runs the reply-management service: it syncs
// configured mailboxes over IMAP, serves the HTTP API, and delivers
// replies over SMTP.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/api"
	"github.com/nhle/mail-responder/internal/bulk"
	"github.com/nhle/mail-responder/internal/credential"
	"github.com/nhle/mail-responder/internal/mail"
	"github.com/nhle/mail-responder/internal/mailbox"
	"github.com/nhle/mail-responder/internal/model"
	"github.com/nhle/mail-responder/internal/send"
	"github.com/nhle/mail-responder/internal/store"
	"github.com/nhle/mail-responder/internal/summary"
	syncengine "github.com/nhle/mail-responder/internal/sync"
	"github.com/nhle/mail-responder/internal/vault"
)

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	initConfig := flag.Bool("init-config", false, "write a default config file and exit")
	setPassphrase := flag.Bool("set-passphrase", false, "read the vault passphrase from stdin, store it in the OS keyring, and exit")
	deletePassphrase := flag.Bool("delete-passphrase", false, "remove the vault passphrase from the OS keyring and exit")
	flag.Parse()

	switch {
	case *initConfig:
		if err := writeDefaultConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "init-config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *configPath)
		return
	case *setPassphrase:
		if err := storePassphrase(); err != nil {
			fmt.Fprintf(os.Stderr, "set-passphrase: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("vault passphrase stored in keyring")
		return
	case *deletePassphrase:
		if err := credential.Delete(credential.KeyVaultPassphrase); err != nil {
			fmt.Fprintf(os.Stderr, "delete-passphrase: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("vault passphrase removed from keyring")
		return
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(*configPath, logger); err != nil {
		logger.Fatal("service failed", zap.Error(err))
	}
}

// writeDefaultConfig saves the default settings so a new install has a
// file to edit. An existing file is left untouched.
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	cfg, err := model.LoadConfig(path)
	if err != nil {
		return err
	}
	return model.SaveConfig(path, cfg)
}

// storePassphrase reads one line from stdin and puts it in the OS
// keyring, where resolvePassphrase picks it up at startup.
func storePassphrase() error {
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("reading passphrase: %w", err)
	}
	passphrase := strings.TrimSpace(line)
	if passphrase == "" {
		return fmt.Errorf("passphrase must be non-empty")
	}
	return credential.Set(credential.KeyVaultPassphrase, passphrase)
}

func run(configPath string, logger *zap.Logger) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return err
	}

	passphrase, err := resolvePassphrase(cfg)
	if err != nil {
		return err
	}
	v, err := vault.New(passphrase)
	if err != nil {
		return err
	}

	s, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = s.Close() }()

	fetcher := mail.NewIMAPFetcher(cfg.Mail.IMAPHost, cfg.Mail.IMAPPort)
	dialer := mail.NewSMTPDialer(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort)

	mailboxes := mailbox.NewService(s, fetcher, v, logger)
	syncer := syncengine.NewEngine(s, fetcher, v, logger)
	sender := send.NewEngine(s, dialer, v, logger)

	bulkEngine := bulk.NewEngine(s, sender, logger)
	bulkEngine.Start(cfg.Bulk.Workers)
	defer bulkEngine.Stop()

	summaryToken := resolveSummaryToken(cfg)
	summarizer := summary.New(s, cfg.Summary.URL, summaryToken, cfg.Summary.Model, cfg.Summary.MaxTokens, logger)

	if cfg.Sync.Enabled {
		interval := time.Duration(cfg.Sync.PollIntervalSec) * time.Second
		poller := syncengine.NewPoller(s, syncer, interval, logger)
		poller.Start()
		defer poller.Stop()
	}

	server := api.New(s, mailboxes, syncer, sender, bulkEngine, summarizer, logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// resolvePassphrase finds the vault passphrase: config file first, then
// environment, then the OS keyring.
func resolvePassphrase(cfg *model.AppConfig) (string, error) {
	if cfg.Vault.Passphrase != "" {
		return cfg.Vault.Passphrase, nil
	}
	if env := os.Getenv("MAILRESPONDER_PASSPHRASE"); env != "" {
		return env, nil
	}
	stored, err := credential.Get(credential.KeyVaultPassphrase)
	if err != nil {
		return "", fmt.Errorf("no vault passphrase configured: %w", err)
	}
	return stored, nil
}

// resolveSummaryToken mirrors the passphrase lookup for the summary
// API token. A missing token leaves summaries disabled rather than
// failing startup.
func resolveSummaryToken(cfg *model.AppConfig) string {
	if cfg.Summary.Token != "" {
		return cfg.Summary.Token
	}
	if env := os.Getenv("MAILRESPONDER_SUMMARY_TOKEN"); env != "" {
		return env
	}
	stored, err := credential.Get(credential.KeySummaryToken)
	if err != nil {
		return ""
	}
	return stored
}
