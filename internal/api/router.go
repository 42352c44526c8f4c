package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/keyloom/keyloom/internal/app"
	"github.com/keyloom/keyloom/internal/handlers"
	"github.com/keyloom/keyloom/internal/middleware"
	"github.com/keyloom/keyloom/internal/passkey"
	"github.com/keyloom/keyloom/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers the recipe
// routes.
func NewRouter(db *gorm.DB, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	users, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	credentials, err := services.NewCredentialService(db)
	if err != nil {
		return nil, err
	}
	views, err := services.NewUserViewService(db, credentials)
	if err != nil {
		return nil, err
	}
	tokens, err := services.NewRecoveryTokenService(db, users,
		services.WithTokenLifetime(cfg.Recovery.TokenLifetime),
		services.WithTokenSize(cfg.Recovery.TokenLength),
	)
	if err != nil {
		return nil, err
	}
	passkeys, err := passkey.NewService(db, passkey.Config{
		RPID:          cfg.Webauthn.RPID,
		RPDisplayName: cfg.Webauthn.RPDisplayName,
		RPOrigins:     cfg.Webauthn.Origins,
		OptionsTTL:    cfg.Webauthn.OptionsTTL,
	})
	if err != nil {
		return nil, err
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.RateLimit(cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health(db))
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	webauthnHandler := handlers.NewWebauthnHandler(users, views, tokens, credentials, passkeys)
	emailPasswordHandler := handlers.NewEmailPasswordHandler(users, views)

	webauthn := r.Group("/recipe/webauthn")
	{
		webauthn.POST("/options/register", webauthnHandler.RegisterOptions)
		webauthn.POST("/signup", webauthnHandler.SignUp)
		webauthn.POST("/user/recover/token", webauthnHandler.CreateRecoveryToken)
		webauthn.GET("/user/recover", webauthnHandler.ConsumeRecoveryToken)
		webauthn.POST("/user/credential/register", webauthnHandler.RegisterCredential)
		webauthn.GET("/user/credential/list", webauthnHandler.ListCredentials)
		webauthn.POST("/user/credential/remove", webauthnHandler.RemoveCredential)
	}

	emailpassword := r.Group("/recipe/emailpassword")
	{
		emailpassword.POST("/signup", emailPasswordHandler.SignUp)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
