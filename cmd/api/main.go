package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campusaccess/internal/attendance"
	"campusaccess/internal/auth"
	"campusaccess/internal/config"
	"campusaccess/internal/handler"
	"campusaccess/internal/httpmiddleware"
	"campusaccess/internal/mailer"
	"campusaccess/internal/notification"
	"campusaccess/internal/qrtoken"
	"campusaccess/internal/queue"
	"campusaccess/internal/store"
	"campusaccess/internal/task"
	"campusaccess/internal/user"
)

func main() {
	cfg := config.Load()

	if err := cfg.ValidateSecrets(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		if db == nil {
			log.Fatalf("db open failed: %v", err)
		}
		log.Printf("warning: db not reachable yet: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(context.Background()); err != nil {
		log.Printf("warning: schema migration failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campus:emails")
	}

	codec := qrtoken.NewCodec(cfg.QRSecret)
	issuer := qrtoken.NewIssuer(codec, cfg.TokenTTL)

	userRepo := user.NewRepository(db.Client)
	ledger := attendance.NewRepository(db.Client)
	guard := attendance.NewRedisReplayGuard(redisClient.Client, "campus:redeemed:")
	attSvc := attendance.NewService(codec, ledger, userDirectory{repo: userRepo}, guard, cfg.TokenTTL)

	smtp := mailer.New(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	userSvc := user.NewService(userRepo, queuedMailer{q: q, smtp: smtp})

	notifRepo := notification.NewRepository(db.Client)
	notifSvc := notification.NewService(notifRepo, audience{repo: userRepo})

	taskSvc := task.NewService(task.NewRepository(db.Client))

	h := handler.New(issuer, attSvc, userSvc, notifSvc, taskSvc, smtp, cfg.ScanBaseURL, handler.SessionConfig{
		Issuer:     cfg.JWTIssuer,
		SigningKey: cfg.JWTSigningKey,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  false,
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	authAPI := r.Group("/api/auth")
	{
		authAPI.POST("/login", h.Login)
		authAPI.POST("/register", h.Register)
		authAPI.POST("/change-password", h.ChangePassword)
	}

	admin := r.Group("/api/admin")
	// Scan stays public: a bare phone camera carries no bearer token.
	admin.GET("/scan-attendance", h.ScanAttendance)
	if cfg.AuthRequired {
		admin.Use(auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer), auth.RequireRole("admin", "guard"))
	}
	{
		admin.GET("/dashboard", h.Dashboard)
		admin.GET("/dashboard-with-activity", h.DashboardWithActivity)
		admin.GET("/users", h.Users)
		admin.POST("/create-user", h.CreateUser)
		admin.POST("/generate-qr", h.GenerateQR)
		admin.GET("/qr-image", h.QRImage)
		admin.POST("/record-attendance", h.RecordAttendance)
		admin.GET("/recent-attendance", h.RecentAttendance)
		admin.GET("/attendance/:userId", h.UserAttendance)
		admin.POST("/send-notification", h.SendNotification)
		admin.GET("/notifications/:userId", h.UserNotifications)
		admin.PATCH("/notifications/:notificationId/read", h.MarkNotificationRead)
		admin.POST("/test-email", h.TestEmail)
	}

	teacher := r.Group("/api/teacher")
	if cfg.AuthRequired {
		teacher.Use(auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer), auth.RequireRole("admin", "teacher"))
	}
	{
		teacher.POST("/tasks/add", h.AddTask)
		teacher.GET("/tasks", h.ListTasks)
		teacher.GET("/students", h.TeacherStudents)
	}

	student := r.Group("/api/student")
	if cfg.AuthRequired {
		student.Use(auth.UserAuth(cfg.JWTSigningKey, cfg.JWTIssuer))
	}
	student.GET("/tasks/:userId", h.StudentTasks)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// userDirectory adapts the user repository to the ledger's batched join.
type userDirectory struct {
	repo *user.Repository
}

func (d userDirectory) Lookup(ctx context.Context, ids []string) (map[string]attendance.UserInfo, error) {
	users, err := d.repo.Basics(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]attendance.UserInfo, len(users))
	for id, u := range users {
		out[id] = attendance.UserInfo{Name: u.FullName, Email: u.Email}
	}
	return out, nil
}

// audience adapts the user repository to notification fan-out targeting.
type audience struct {
	repo *user.Repository
}

func (a audience) Recipients(ctx context.Context, role string) ([]notification.Recipient, error) {
	users, err := a.repo.ByRole(ctx, role)
	if err != nil {
		return nil, err
	}
	out := make([]notification.Recipient, 0, len(users))
	for _, u := range users {
		out = append(out, notification.Recipient{UserID: u.ID, Email: u.Email})
	}
	return out, nil
}

// queuedMailer hands credential mail to the delivery worker instead of
// blocking the request on SMTP. Enqueueing is refused when SMTP is not
// configured so callers see the delivery failure immediately.
type queuedMailer struct {
	q    queue.Queue
	smtp *mailer.Mailer
}

func (m queuedMailer) Send(to, subject, body string) error {
	if !m.smtp.Configured() {
		return mailer.ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.q.Publish(ctx, queue.Message{Type: "email", Body: mailer.Job{To: to, Subject: subject, Body: body}.Encode()})
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
