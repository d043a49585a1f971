package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sekolahku/sis-core-api/internal/middleware"
	"github.com/sekolahku/sis-core-api/internal/models"
	"github.com/sekolahku/sis-core-api/internal/repository"
	"github.com/sekolahku/sis-core-api/internal/service"
)

// Handlers bundles every HTTP handler so route registration stays in one
// place.
type Handlers struct {
	Auth          *AuthHandler
	AcademicYears *AcademicYearHandler
	Classes       *ClassHandler
	Subjects      *SubjectHandler
	Enrollments   *EnrollmentHandler
	Schedules     *ScheduleHandler
	Grades        *GradeHandler
	Assignments   *AssignmentHandler
	Submissions   *SubmissionHandler
	Attendance    *AttendanceHandler
	Announcements *AnnouncementHandler
	Reports       *ReportHandler
	Metrics       *MetricsHandler
}

// RegisterRoutes wires all endpoints under the API prefix. Auth and RBAC are
// applied per route group so the access matrix is readable in one place.
// Mutations on consistency-critical resources also get an audit trail.
func RegisterRoutes(engine *gin.Engine, prefix string, auth *service.AuthService, users *repository.UserRepository, h Handlers) {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := engine.Group(prefix)

	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(users, action, resource)
	}

	api.POST("/auth/login", h.Auth.Login)
	api.GET("/auth/profile", middleware.JWT(auth), h.Auth.Profile)
	api.GET("/users/:id", middleware.JWT(auth), middleware.RBAC(string(models.RoleAdmin), "SELF"), h.Auth.GetUser)

	staff := []models.Role{models.RoleAdmin, models.RoleTeacher}

	years := api.Group("/academic-years", middleware.JWT(auth))
	{
		years.GET("", h.AcademicYears.List)
		years.GET("/current", h.AcademicYears.Current)
		years.GET("/upcoming", h.AcademicYears.Upcoming)
		years.GET("/previous", h.AcademicYears.Previous)
		years.GET("/:id", h.AcademicYears.Get)
		years.POST("", middleware.RequireRoles(models.RoleAdmin), audit("create", "academic_year"), h.AcademicYears.Create)
		years.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), audit("update", "academic_year"), h.AcademicYears.Update)
		years.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), audit("delete", "academic_year"), h.AcademicYears.Delete)
		years.POST("/:id/set-current", middleware.RequireRoles(models.RoleAdmin), audit("set_current", "academic_year"), h.AcademicYears.SetCurrent)
	}

	classes := api.Group("/classes", middleware.JWT(auth))
	{
		classes.GET("", h.Classes.List)
		classes.GET("/:id", h.Classes.Get)
		classes.POST("", middleware.RequireRoles(models.RoleAdmin), h.Classes.Create)
		classes.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), h.Classes.Update)
	}

	subjects := api.Group("/subjects", middleware.JWT(auth))
	{
		subjects.GET("", h.Subjects.List)
		subjects.GET("/:id", h.Subjects.Get)
		subjects.POST("", middleware.RequireRoles(models.RoleAdmin), h.Subjects.Create)
		subjects.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), h.Subjects.Update)
	}

	enrollments := api.Group("/enrollments", middleware.JWT(auth))
	{
		enrollments.GET("", h.Enrollments.List)
		enrollments.GET("/:id", h.Enrollments.Get)
		enrollments.GET("/:id/summary", h.Enrollments.Summary)
		enrollments.POST("", middleware.RequireRoles(models.RoleAdmin), audit("create", "enrollment"), h.Enrollments.Enroll)
		enrollments.PATCH("/:id/status", middleware.RequireRoles(staff...), audit("change_status", "enrollment"), h.Enrollments.ChangeStatus)
		enrollments.POST("/promote", middleware.RequireRoles(models.RoleAdmin), audit("promote", "enrollment"), h.Enrollments.Promote)
		enrollments.POST("/recompute-ranks", middleware.RequireRoles(staff...), h.Enrollments.RecomputeRanks)
	}

	schedules := api.Group("/schedules", middleware.JWT(auth))
	{
		schedules.GET("", h.Schedules.List)
		schedules.GET("/timetable", h.Schedules.Timetable)
		schedules.GET("/:id", h.Schedules.Get)
		schedules.GET("/:id/status", h.Schedules.Status)
		schedules.POST("", middleware.RequireRoles(models.RoleAdmin), h.Schedules.Create)
		schedules.POST("/check-conflicts", middleware.RequireRoles(staff...), h.Schedules.CheckConflicts)
		schedules.PUT("/:id", middleware.RequireRoles(models.RoleAdmin), h.Schedules.Update)
		schedules.PATCH("/:id/active", middleware.RequireRoles(models.RoleAdmin), h.Schedules.SetActive)
		schedules.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), h.Schedules.Delete)
	}

	grades := api.Group("/grades", middleware.JWT(auth))
	{
		grades.GET("", h.Grades.List)
		grades.GET("/statistics/class", h.Grades.ClassStatistics)
		grades.GET("/statistics/student", h.Grades.StudentStatistics)
		grades.GET("/distribution", h.Grades.Distribution)
		grades.POST("", middleware.RequireRoles(staff...), audit("record", "grade"), h.Grades.Record)
		grades.POST("/bulk", middleware.RequireRoles(staff...), audit("bulk_record", "grade"), h.Grades.BulkRecord)
	}

	assignments := api.Group("/assignments", middleware.JWT(auth))
	{
		assignments.GET("", h.Assignments.List)
		assignments.GET("/:id", h.Assignments.Get)
		assignments.GET("/:id/progress", middleware.RequireRoles(staff...), h.Assignments.Progress)
		assignments.POST("", middleware.RequireRoles(staff...), h.Assignments.Create)
		assignments.PUT("/:id", middleware.RequireRoles(staff...), h.Assignments.Update)
		assignments.PATCH("/:id/publish", middleware.RequireRoles(staff...), h.Assignments.Publish)
	}

	submissions := api.Group("/submissions", middleware.JWT(auth))
	{
		submissions.GET("", h.Submissions.List)
		submissions.GET("/:id", h.Submissions.Get)
		submissions.POST("", middleware.RequireRoles(models.RoleStudent), h.Submissions.Submit)
		submissions.PUT("/:id", middleware.RequireRoles(models.RoleStudent), h.Submissions.Resubmit)
		submissions.POST("/:id/grade", middleware.RequireRoles(staff...), audit("grade", "submission"), h.Submissions.Grade)
		submissions.POST("/:id/return", middleware.RequireRoles(staff...), h.Submissions.Return)
	}

	attendance := api.Group("/attendance", middleware.JWT(auth))
	{
		attendance.GET("", h.Attendance.List)
		attendance.GET("/summary/:enrollmentId", h.Attendance.Summary)
		attendance.GET("/class-summary", h.Attendance.ClassSummary)
		attendance.POST("", middleware.RequireRoles(staff...), h.Attendance.Record)
		attendance.POST("/bulk", middleware.RequireRoles(staff...), h.Attendance.BulkRecord)
		attendance.PUT("/:id", middleware.RequireRoles(staff...), h.Attendance.Update)
	}

	announcements := api.Group("/announcements")
	{
		announcements.GET("", middleware.OptionalJWT(auth), h.Announcements.List)
		announcements.GET("/feed", middleware.OptionalJWT(auth), h.Announcements.Feed)
		announcements.GET("/:id", middleware.OptionalJWT(auth), h.Announcements.Get)
		announcements.POST("", middleware.JWT(auth), middleware.RequireRoles(staff...), h.Announcements.Create)
		announcements.PUT("/:id", middleware.JWT(auth), middleware.RequireRoles(staff...), h.Announcements.Update)
		announcements.DELETE("/:id", middleware.JWT(auth), middleware.RequireRoles(staff...), h.Announcements.Delete)
	}

	reports := api.Group("/reports")
	{
		reports.POST("", middleware.JWT(auth), middleware.RequireRoles(staff...), h.Reports.Request)
		reports.GET("", middleware.JWT(auth), h.Reports.ListMine)
		reports.GET("/:id", middleware.JWT(auth), h.Reports.Status)
		// Token is the credential here, links must work outside a session.
		reports.GET("/download/:token", h.Reports.Download)
	}

	engine.GET("/metrics", h.Metrics.Prometheus)
	api.GET("/metrics/snapshot", middleware.JWT(auth), middleware.RequireRoles(models.RoleAdmin), h.Metrics.Snapshot)
}
