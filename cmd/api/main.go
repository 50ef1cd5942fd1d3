package main

import (
	"context"
	"os"
	"time"

	_ "fieldops/api/swagger" // swagger docs
	"fieldops/internal/authz"
	"fieldops/internal/database"
	"fieldops/internal/handler"
	"fieldops/internal/middleware"
	"fieldops/internal/repository"
	"fieldops/internal/service"
	"fieldops/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	permissionCacheSize = 1024
	permissionCacheTTL  = 5 * time.Minute
)

// @title           FieldOps API
// @version         1.0
// @description     Multi-tenant field service management with role-based access control.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		log.SetLevel(lvl)
	}

	if err := godotenv.Load("configs/.env"); err != nil {
		log.Info("no configs/.env file found, using environment")
	}

	dsn := buildDSN()
	db, err := database.NewConnection(dsn)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	log.Info("connected to PostgreSQL")

	// Set up WebSocket hub for the live audit feed
	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	// Repositories
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	overrideRepo := repository.NewOverrideRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	sessionRepo := repository.NewImpersonationRepository(db)
	clientRepo := repository.NewClientRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)

	// Authorization core
	cache := authz.NewPermissionCache(permissionCacheSize, permissionCacheTTL)
	resolver := authz.NewResolver(userRepo, roleRepo, overrideRepo, cache, log)
	gate := authz.NewGate(resolver)

	// Services
	auditService := service.NewAuditService(auditRepo, wsHub, log)
	roleService := service.NewRoleService(roleRepo, resolver, auditService)
	permissionService := service.NewPermissionService(userRepo, roleRepo, overrideRepo, txManager, resolver, resolver, auditService)
	userService := service.NewUserService(userRepo, roleRepo, resolver, resolver, auditService)
	impersonationService := service.NewImpersonationService(sessionRepo, userRepo, auditService, log)
	clientService := service.NewClientService(clientRepo)
	invoiceService := service.NewInvoiceService(invoiceRepo, clientRepo)

	jwtSecret := middleware.GetJWTSecret()
	authService := service.NewAuthService(userRepo, jwtSecret)
	authMW := middleware.NewAuthMiddleware(jwtSecret, gate, impersonationService, userRepo)

	// Seed the permission catalog and system roles, then verify the coarse
	// role fallback table resolves against them. A missing default role is a
	// boot failure.
	ctx := context.Background()
	if err := roleService.SeedDefaultRolesAndPermissions(ctx); err != nil {
		log.WithError(err).Fatal("failed to seed roles and permissions")
	}
	if err := resolver.ValidateLegacyDefaults(ctx); err != nil {
		log.WithError(err).Fatal("legacy role fallback table is invalid")
	}

	// Handlers
	authHandler := handler.NewAuthHandler(authService, userService, authMW)
	userHandler := handler.NewUserHandler(userService, permissionService, authMW)
	roleHandler := handler.NewRoleHandler(roleService, authMW)
	impersonationHandler := handler.NewImpersonationHandler(impersonationService, authService, authMW)
	auditHandler := handler.NewAuditHandler(auditService, authMW)
	clientHandler := handler.NewClientHandler(clientService, authMW)
	invoiceHandler := handler.NewInvoiceHandler(invoiceService, authMW)

	// Set up Gin Router
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"} // Frontend URL
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Live audit feed
	router.GET("/ws/audit", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, jwtSecret, gate)
	})

	// Register API routes
	root := router.Group("")
	authHandler.RegisterRoutes(root)
	userHandler.RegisterRoutes(root)
	roleHandler.RegisterRoutes(root)
	impersonationHandler.RegisterRoutes(root)
	auditHandler.RegisterRoutes(root)
	clientHandler.RegisterRoutes(root)
	invoiceHandler.RegisterRoutes(root)

	// Background sweep for impersonation sessions past their hard cap
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 5m", func() {
		impersonationService.SweepExpired(context.Background())
	}); err != nil {
		log.WithError(err).Fatal("failed to schedule impersonation sweep")
	}
	scheduler.Start()
	defer scheduler.Stop()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.WithField("port", port).Info("server listening")
	if err := router.Run(":" + port); err != nil {
		log.WithError(err).Fatal("server failed")
	}
}

func buildDSN() string {
	get := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	dbHost := get("DB_HOST", "localhost")
	dbPort := get("DB_PORT", "5432")
	dbUser := get("DB_USER", "postgres")
	dbPassword := get("DB_PASSWORD", "postgres")
	dbName := get("DB_NAME", "fieldops")
	dbSslMode := get("DB_SSLMODE", "disable")

	return "postgres://" + dbUser + ":" + dbPassword + "@" + dbHost + ":" + dbPort + "/" + dbName + "?sslmode=" + dbSslMode
}
