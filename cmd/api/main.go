package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/sekolahku/sis-core-api/api/swagger"
	"github.com/sekolahku/sis-core-api/internal/handler"
	"github.com/sekolahku/sis-core-api/internal/middleware"
	"github.com/sekolahku/sis-core-api/internal/repository"
	"github.com/sekolahku/sis-core-api/internal/service"
	"github.com/sekolahku/sis-core-api/pkg/cache"
	"github.com/sekolahku/sis-core-api/pkg/config"
	"github.com/sekolahku/sis-core-api/pkg/database"
	"github.com/sekolahku/sis-core-api/pkg/jobs"
	"github.com/sekolahku/sis-core-api/pkg/logger"
	corsmiddleware "github.com/sekolahku/sis-core-api/pkg/middleware/cors"
	reqidmiddleware "github.com/sekolahku/sis-core-api/pkg/middleware/requestid"
	"github.com/sekolahku/sis-core-api/pkg/storage"
)

// @title SIS Core API
// @version 1.0.0
// @description Academic scheduling and grading consistency core.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	exportStore, err := storage.NewLocalStorage(cfg.Reports.ExportDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	reportSigner := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	userRepo := repository.NewUserRepository(db)
	yearRepo := repository.NewAcademicYearRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	reportRepo := repository.NewReportRepository(db)

	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	yearSvc := service.NewAcademicYearService(yearRepo, nil, logr)
	classSvc := service.NewClassService(classRepo, nil, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, classRepo, yearRepo, nil, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, nil, logr)
	gradeSvc := service.NewGradeService(gradeRepo, enrollmentRepo, cacheRepo, nil, logr)
	submissionSvc := service.NewSubmissionService(assignmentRepo, submissionRepo, uploadStore, nil, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, enrollmentRepo, nil, logr)
	announcementSvc := service.NewAnnouncementService(announcementRepo, nil, logr)
	metricsSvc := service.NewMetricsService()

	reportSvc := service.NewReportService(reportRepo, gradeRepo, attendanceRepo, enrollmentRepo, exportStore, reportSigner, service.ReportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, nil, logr)

	gradeSvc.SetMetrics(metricsSvc)
	submissionSvc.SetMetrics(metricsSvc)
	reportSvc.SetMetrics(metricsSvc)

	reportQueue := jobs.NewQueue("reports", reportSvc.Process, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		Logger:     logr,
	})
	reportSvc.SetQueue(reportQueue)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reportQueue.Start(ctx)
	defer reportQueue.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, authSvc, userRepo, handler.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		AcademicYears: handler.NewAcademicYearHandler(yearSvc),
		Classes:       handler.NewClassHandler(classSvc),
		Subjects:      handler.NewSubjectHandler(subjectSvc),
		Enrollments:   handler.NewEnrollmentHandler(enrollmentSvc),
		Schedules:     handler.NewScheduleHandler(scheduleSvc),
		Grades:        handler.NewGradeHandler(gradeSvc),
		Assignments:   handler.NewAssignmentHandler(submissionSvc),
		Submissions:   handler.NewSubmissionHandler(submissionSvc, cfg.Uploads.MaxFileSizeBytes),
		Attendance:    handler.NewAttendanceHandler(attendanceSvc),
		Announcements: handler.NewAnnouncementHandler(announcementSvc),
		Reports:       handler.NewReportHandler(reportSvc),
		Metrics:       handler.NewMetricsHandler(metricsSvc),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
