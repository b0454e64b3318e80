package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FRC5892/HeroHours/internal/attendance"
	"github.com/FRC5892/HeroHours/internal/auth"
	"github.com/FRC5892/HeroHours/internal/config"
	"github.com/FRC5892/HeroHours/internal/export"
	"github.com/FRC5892/HeroHours/internal/httpmiddleware"
	"github.com/FRC5892/HeroHours/internal/queue"
	"github.com/FRC5892/HeroHours/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	var (
		attStore attendance.Store
		db       *store.DB
	)
	if cfg.StoreBackend == "memory" {
		attStore = attendance.NewMemoryStore()
		log.Println("using in-memory store (state is not durable)")
	} else {
		var err error
		db, err = store.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		pg := attendance.NewPostgresStore(db.Client, cfg.LockTimeout)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		attStore = pg
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "herohours:jobs")
	}

	engine := attendance.NewEngine(attStore, cfg.Debug)
	dispatcher := attendance.NewDispatcher(engine)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db == nil || db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	r.POST("/v1/auth/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !auth.CheckCredentials(req.Username, req.Password, cfg.OperatorUser, cfg.OperatorPass) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		tokens, err := auth.Issue(req.Username, "staff", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.StaffAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	authGroup.POST("/entries", func(c *gin.Context) {
		var req struct {
			Input string `json:"input"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		now := time.Now().UTC()
		outcome, err := dispatcher.Dispatch(c.Request.Context(), req.Input, now)
		if err != nil {
			if errors.Is(err, attendance.ErrEmptyInput) {
				c.JSON(http.StatusBadRequest, gin.H{"status": attendance.StatusError, "message": "No input provided"})
				return
			}
			log.Printf("dispatch %q failed: %v", req.Input, err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"status": attendance.StatusError,
				"newlog": outcome.Entry,
				"count":  outcome.Count,
			})
			return
		}

		switch outcome.Kind {
		case attendance.OutcomeControl:
			if outcome.Control == attendance.ControlSend {
				job := queue.NewMessage(queue.TypeExport, nil)
				if err := q.Publish(c.Request.Context(), job); err != nil {
					log.Printf("export enqueue failed: %v", err)
					c.JSON(http.StatusBadGateway, gin.H{"control": outcome.Control, "error": "export enqueue failed"})
					return
				}
				c.JSON(http.StatusAccepted, gin.H{"control": outcome.Control, "job_id": job.ID})
				return
			}
			c.JSON(http.StatusOK, gin.H{"control": outcome.Control})

		case attendance.OutcomeBulk:
			c.JSON(http.StatusOK, gin.H{"status": outcome.Status, "count": outcome.Count})

		default:
			if outcome.Status == attendance.StatusSuccess {
				publishLive(c.Request.Context(), redisClient, cfg.LiveChannel, outcome, now)
			}
			c.JSON(http.StatusOK, gin.H{
				"status": responseStatus(outcome.TransitionResult),
				"state":  outcome.CheckedIn,
				"newlog": outcome.Entry,
				"count":  outcome.Count,
			})
		}
	})

	authGroup.GET("/members", func(c *gin.Context) {
		filter := attendance.MemberFilter{}
		if v := c.Query("active"); v != "" {
			active := v == "true" || v == "1"
			filter.Active = &active
		}
		members, err := attStore.ListMembers(c.Request.Context(), filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		count, err := attStore.CountCheckedIn(c.Request.Context(), true)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"members": members, "checked_in": count})
	})

	authGroup.GET("/count", func(c *gin.Context) {
		count, err := attStore.CountCheckedIn(c.Request.Context(), true)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	})

	authGroup.GET("/logs", func(c *gin.Context) {
		limit, offset := 50, 0
		if v := c.Query("limit"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				limit = parsed
			}
		}
		if v := c.Query("offset"); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				offset = parsed
			}
		}
		logs, err := engine.RecentLogs(c.Request.Context(), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": logs})
	})

	authGroup.POST("/admin/bulk", func(c *gin.Context) {
		var req struct {
			Direction attendance.Direction `json:"direction" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		n, err := engine.BulkTransition(c.Request.Context(), req.Direction, time.Now().UTC())
		if err != nil {
			if errors.Is(err, attendance.ErrUnknownDirection) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			log.Printf("bulk %s failed: %v", req.Direction, err)
			c.JSON(http.StatusInternalServerError, gin.H{"status": attendance.StatusError})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": attendance.StatusSuccess, "updated": n})
	})

	authGroup.POST("/admin/reset", func(c *gin.Context) {
		var req struct {
			MemberIDs []int64 `json:"member_ids" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := engine.Reset(c.Request.Context(), req.MemberIDs, time.Now().UTC()); err != nil {
			log.Printf("reset failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"status": attendance.StatusError})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": attendance.StatusSuccess})
	})

	authGroup.POST("/admin/members", func(c *gin.Context) {
		var req struct {
			ID        int64  `json:"id" binding:"required"`
			FirstName string `json:"first_name" binding:"required,max=50"`
			LastName  string `json:"last_name" binding:"required,max=50"`
			Active    *bool  `json:"active"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		active := true
		if req.Active != nil {
			active = *req.Active
		}
		m := attendance.Member{ID: req.ID, FirstName: req.FirstName, LastName: req.LastName, Active: active}
		if err := attStore.UpsertMember(c.Request.Context(), m); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"member": m})
	})

	authGroup.GET("/export.csv", func(c *gin.Context) {
		members, err := attStore.ListMembers(c.Request.Context(), attendance.MemberFilter{})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="members.csv"`)
		c.Status(http.StatusOK)
		if err := export.WriteCSV(c.Writer, members); err != nil {
			log.Printf("csv export failed: %v", err)
		}
	})

	authGroup.POST("/export", func(c *gin.Context) {
		job := queue.NewMessage(queue.TypeExport, nil)
		if err := q.Publish(c.Request.Context(), job); err != nil {
			log.Printf("export enqueue failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "export enqueue failed"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
	})

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// responseStatus preserves the kiosk display contract: a successful
// check-out reports "Check Out" while its log entry records Success.
func responseStatus(res attendance.TransitionResult) attendance.Status {
	if res.Status == attendance.StatusSuccess && res.Operation == attendance.OpCheckOut {
		return attendance.Status(attendance.OpCheckOut)
	}
	return res.Status
}

// publishLive fans a successful transition out to the live view channel.
// Best effort: a broadcast failure never fails the request.
func publishLive(ctx context.Context, r *store.Redis, channel string, outcome attendance.Outcome, now time.Time) {
	event := map[string]any{
		"operation": outcome.Operation,
		"state":     outcome.CheckedIn,
		"count":     outcome.Count,
		"at":        now,
	}
	if outcome.Entry != nil && outcome.Entry.MemberID != nil {
		event["member_id"] = *outcome.Entry.MemberID
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := r.Broadcast(ctx, channel, payload); err != nil {
		log.Printf("live broadcast failed: %v", err)
	}
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
