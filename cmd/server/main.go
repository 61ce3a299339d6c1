package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/buslink/booking-backend/internal/config"
	"github.com/buslink/booking-backend/internal/database"
	"github.com/buslink/booking-backend/internal/handlers"
	"github.com/buslink/booking-backend/internal/middleware"
	"github.com/buslink/booking-backend/internal/models"
	"github.com/buslink/booking-backend/internal/services"
	"github.com/buslink/booking-backend/pkg/jwt"
	"github.com/buslink/booking-backend/pkg/mail"
	"github.com/buslink/booking-backend/pkg/sms"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Buslink Booking Backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Repositories need *sqlx.DB for transactions.
	sqlxDB, ok := db.(*database.PostgresDB)
	if !ok {
		logger.Fatal("Failed to cast database connection to PostgresDB")
	}

	templateRepo := database.NewScheduleTemplateRepository(sqlxDB.DB)
	busRepo := database.NewBusRepository(sqlxDB.DB)
	tripRepo := database.NewTripRepository(sqlxDB.DB)
	bookingRepo := database.NewBookingRepository(sqlxDB.DB)
	intentRepo := database.NewPaymentIntentRepository(sqlxDB.DB)
	messageRepo := database.NewOutboundMessageRepository(sqlxDB.DB)

	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	smsTransport := sms.NewDialogGateway(sms.Config{
		Mode:     cfg.SMS.Mode,
		APIURL:   cfg.SMS.APIURL,
		Username: cfg.SMS.Username,
		Password: cfg.SMS.Password,
		Mask:     cfg.SMS.Mask,
	}, logger)
	mailTransport := mail.NewSMTPSender(mail.Config{
		Mode:     cfg.Mail.Mode,
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	}, logger)

	notificationSvc := services.NewNotificationService(
		messageRepo,
		map[models.MessageChannel]services.Transport{
			models.ChannelSMS:   smsTransport,
			models.ChannelEmail: mailTransport,
		},
		cfg.Notification.SweepInterval,
		cfg.Notification.BatchSize,
		cfg.Notification.MaxAttempts,
		logger,
	)

	projector := services.NewScheduleProjector(templateRepo)
	materializer := services.NewTripMaterializer(tripRepo, logger)
	allocator := services.NewSeatAllocator(bookingRepo, busRepo, notificationSvc, logger)
	paymentSvc := services.NewPaymentService(intentRepo, &cfg.Payment, logger)
	searchSvc := services.NewTripSearchService(projector, tripRepo, bookingRepo, busRepo, logger)

	notificationSvc.Start()

	cronService := services.NewCronService(
		bookingRepo,
		allocator,
		paymentSvc,
		notificationSvc,
		&cfg.Booking,
		&cfg.Notification,
		logger,
	)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	logger.Info("Services initialized")

	tripHandler := handlers.NewTripHandler(searchSvc, &cfg.Booking)
	bookingHandler := handlers.NewBookingHandler(tripRepo, projector, materializer, allocator, paymentSvc, logger)
	webhookHandler := handlers.NewPaymentWebhookHandler(paymentSvc, allocator, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db))

	v1 := router.Group("/api/v1")
	{
		// Public passenger routes
		v1.GET("/trips/search", tripHandler.SearchTrips)

		bookings := v1.Group("/bookings")
		{
			bookings.POST("", bookingHandler.CreateBooking)
			bookings.GET("/:reference", bookingHandler.GetBooking)
			bookings.POST("/:reference/cancel", bookingHandler.CancelBooking)
		}

		// Gateway callbacks authenticate via checkValue, not JWT.
		v1.POST("/payments/webhook", webhookHandler.HandleWebhook)

		// Staff routes
		staff := v1.Group("/staff")
		staff.Use(middleware.AuthMiddleware(jwtService))
		{
			staff.POST("/bookings/:reference/check-in", bookingHandler.CheckInBooking)
			staff.POST("/bookings/:reference/complete", bookingHandler.CompleteBooking)
			staff.POST("/bookings/:reference/refund", bookingHandler.RefundBooking)
		}
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	cronService.Stop()
	notificationSvc.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// requestLogger middleware for logging HTTP requests
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		fields := logrus.Fields{
			"status":     c.Writer.Status(),
			"method":     c.Request.Method,
			"path":       path,
			"query":      query,
			"ip":         c.ClientIP(),
			"latency_ms": latency.Milliseconds(),
			"user_agent": c.Request.UserAgent(),
		}

		entry := logger.WithFields(fields)

		if len(c.Errors) > 0 {
			for i, err := range c.Errors {
				entry = entry.WithField(fmt.Sprintf("error_%d", i), err.Error())
			}
			entry.Error("Request failed with errors")
			return
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			entry.Error("Request completed with server error")
		case status >= 400:
			entry.Warn("Request completed with client error")
		default:
			entry.Info("Request completed successfully")
		}
	}
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
