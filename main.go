package main

import (
	"fmt"
	"os"

	"kovoy/pkg/jwtauth"
	"kovoy/pkg/mailer"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// app wires the immutable configuration, the store and the token services
// behind the HTTP handlers.
type app struct {
	cfg   Config
	db    *gorm.DB
	log   *zap.Logger
	jwt   *jwtauth.Manager
	mail  mailer.Sender
	oauth *oauth2.Config // nil when Google sign-in is not configured
}

func main() {
	// Auto-load ./.env if present before reading vars; existing env wins.
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := loadConfig()

	db, err := openDB(cfg, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}

	// Support a lightweight migrate command: `./kovoy migrate` runs
	// AutoMigrate then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		migrateDB(db, log)
		fmt.Println("migration completed")
		return
	}

	a := &app{
		cfg:   cfg,
		db:    db,
		log:   log,
		jwt:   jwtauth.New(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.TwoFactorTTL),
		mail:  newMailSender(cfg, log),
		oauth: newGoogleOAuthConfig(cfg),
	}

	r := gin.Default()
	a.setupRoutes(r)

	log.Info("listening", zap.String("addr", cfg.HTTPAddr))
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

// newMailSender selects the mail implementation once at startup: a real SMTP
// sender when configured, otherwise the logging no-op.
func newMailSender(cfg Config, log *zap.Logger) mailer.Sender {
	if cfg.SMTPHost == "" {
		log.Info("SMTP_HOST not set, outbound mail will be logged only")
		return mailer.NewLogSender(log)
	}
	return mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
}
