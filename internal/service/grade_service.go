package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

type gradeRepo interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	Create(ctx context.Context, grade *models.Grade) error
	BulkCreate(ctx context.Context, grades []*models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	SoftDelete(ctx context.Context, id string, deletedBy *string) error
	ListScoresByClass(ctx context.Context, classID, academicYearID string, semester int) ([]models.GradeDetail, error)
	ListScoresByStudent(ctx context.Context, studentID, academicYearID string, semester int) ([]models.GradeDetail, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// RecordGradeRequest is the single grade entry payload.
type RecordGradeRequest struct {
	EnrollmentID   string                `json:"enrollment_id" validate:"required"`
	SubjectID      string                `json:"subject_id" validate:"required"`
	TeacherID      string                `json:"teacher_id" validate:"required"`
	AssessmentType models.AssessmentType `json:"assessment_type" validate:"required"`
	Score          float64               `json:"score" validate:"min=0,max=100"`
	Weight         float64               `json:"weight" validate:"omitempty,gt=0"`
	Semester       int                   `json:"semester" validate:"required,oneof=1 2"`
	AssessmentDate string                `json:"assessment_date" validate:"required,datetime=2006-01-02"`
	Notes          *string               `json:"notes"`
	AcademicYearID string                `json:"academic_year_id" validate:"required"`
}

// BulkRecordGradesRequest records one assessment across many enrollments.
type BulkRecordGradesRequest struct {
	SubjectID      string                `json:"subject_id" validate:"required"`
	TeacherID      string                `json:"teacher_id" validate:"required"`
	AssessmentType models.AssessmentType `json:"assessment_type" validate:"required"`
	Semester       int                   `json:"semester" validate:"required,oneof=1 2"`
	AssessmentDate string                `json:"assessment_date" validate:"required,datetime=2006-01-02"`
	AcademicYearID string                `json:"academic_year_id" validate:"required"`
	Items          []BulkGradeItem       `json:"items" validate:"required,min=1,dive"`
}

// BulkGradeItem is one enrollment's score within a bulk payload.
type BulkGradeItem struct {
	EnrollmentID string  `json:"enrollment_id" validate:"required"`
	Score        float64 `json:"score" validate:"min=0,max=100"`
	Weight       float64 `json:"weight" validate:"omitempty,gt=0"`
}

// statisticsCacheTTL bounds staleness of cached aggregations.
const statisticsCacheTTL = 10 * time.Minute

// GradeService records assessment scores and derives statistics: letter
// grades, per-class and per-student aggregations, and fixed-range score
// distributions. Aggregations are cached and invalidated on writes.
type GradeService struct {
	grades      gradeRepo
	enrollments enrollmentReader
	cache       statsCache
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService. Cache may be nil.
func NewGradeService(grades gradeRepo, enrollments enrollmentReader, cache statsCache, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{grades: grades, enrollments: enrollments, cache: cache, validator: validate, logger: logger}
}

// SetMetrics attaches instrumentation after construction. A nil receiver on
// the metrics side keeps every call safe.
func (s *GradeService) SetMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// cachedGet reads a statistics entry and reports the lookup to the cache
// hit-ratio metric.
func (s *GradeService) cachedGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	start := time.Now()
	err := s.cache.Get(ctx, key, dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	return err == nil
}

// LetterGrade maps a numeric score to its letter band.
func LetterGrade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "E"
	}
}

// List returns grade entries with pagination metadata.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	grades, total, err := s.grades.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, total, nil
}

// Record validates and persists a single grade entry.
func (s *GradeService) Record(ctx context.Context, req RecordGradeRequest, actorID *string) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if !req.AssessmentType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown assessment type")
	}

	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	date, err := time.Parse("2006-01-02", req.AssessmentDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid assessment date")
	}
	weight := req.Weight
	if weight == 0 {
		weight = 1
	}

	score := req.Score
	grade := &models.Grade{
		EnrollmentID:   req.EnrollmentID,
		SubjectID:      req.SubjectID,
		TeacherID:      req.TeacherID,
		AssessmentType: req.AssessmentType,
		Score:          &score,
		Weight:         weight,
		Semester:       req.Semester,
		AssessmentDate: date,
		Notes:          req.Notes,
		AcademicYearID: req.AcademicYearID,
	}
	grade.CreatedBy = actorID
	grade.UpdatedBy = actorID
	if err := s.grades.Create(ctx, grade); err != nil {
		return nil, err
	}
	s.invalidateStatistics(ctx, enrollment.ClassID, enrollment.StudentID)
	return grade, nil
}

// BulkRecord persists one assessment's scores for many enrollments in a single
// transaction. Any duplicate aborts the whole batch.
func (s *GradeService) BulkRecord(ctx context.Context, req BulkRecordGradesRequest, actorID *string) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk grade payload")
	}
	if !req.AssessmentType.Valid() {
		return 0, appErrors.Clone(appErrors.ErrValidation, "unknown assessment type")
	}
	date, err := time.Parse("2006-01-02", req.AssessmentDate)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid assessment date")
	}

	grades := make([]*models.Grade, 0, len(req.Items))
	for _, item := range req.Items {
		weight := item.Weight
		if weight == 0 {
			weight = 1
		}
		score := item.Score
		grade := &models.Grade{
			EnrollmentID:   item.EnrollmentID,
			SubjectID:      req.SubjectID,
			TeacherID:      req.TeacherID,
			AssessmentType: req.AssessmentType,
			Score:          &score,
			Weight:         weight,
			Semester:       req.Semester,
			AssessmentDate: date,
			AcademicYearID: req.AcademicYearID,
		}
		grade.CreatedBy = actorID
		grade.UpdatedBy = actorID
		grades = append(grades, grade)
	}

	if err := s.grades.BulkCreate(ctx, grades); err != nil {
		return 0, err
	}
	s.invalidateStatistics(ctx, "", "")
	s.logger.Info("grades bulk recorded",
		zap.String("subject_id", req.SubjectID),
		zap.Int("count", len(grades)))
	return len(grades), nil
}

// ClassStatistics aggregates a class's scored entries overall, per assessment
// type and per subject. Results are served from cache when fresh.
func (s *GradeService) ClassStatistics(ctx context.Context, classID, academicYearID string, semester int) (*models.ClassGradeStatistics, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class is required")
	}

	cacheKey := fmt.Sprintf("stats:grades:class:%s:%s:%d", classID, academicYearID, semester)
	var cached models.ClassGradeStatistics
	if s.cachedGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	queryStart := time.Now()
	grades, err := s.grades.ListScoresByClass(ctx, classID, academicYearID, semester)
	s.metrics.ObserveDBQuery("grades_by_class", time.Since(queryStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class scores")
	}

	stats := &models.ClassGradeStatistics{
		ClassID:          classID,
		AcademicYearID:   academicYearID,
		Overall:          summarize(grades, func(models.GradeDetail) bool { return true }),
		ByAssessmentType: summarizeByType(grades),
		BySubject:        summarizeBySubject(grades),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, stats, statisticsCacheTTL); err != nil {
			s.logger.Warn("failed to cache class statistics", zap.Error(err))
		}
	}
	return stats, nil
}

// StudentStatistics aggregates one student's scored entries.
func (s *GradeService) StudentStatistics(ctx context.Context, studentID, academicYearID string, semester int) (*models.StudentGradeStatistics, error) {
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student is required")
	}

	cacheKey := fmt.Sprintf("stats:grades:student:%s:%s:%d", studentID, academicYearID, semester)
	var cached models.StudentGradeStatistics
	if s.cachedGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	queryStart := time.Now()
	grades, err := s.grades.ListScoresByStudent(ctx, studentID, academicYearID, semester)
	s.metrics.ObserveDBQuery("grades_by_student", time.Since(queryStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student scores")
	}

	stats := &models.StudentGradeStatistics{
		StudentID:        studentID,
		AcademicYearID:   academicYearID,
		Overall:          summarize(grades, func(models.GradeDetail) bool { return true }),
		ByAssessmentType: summarizeByType(grades),
		BySubject:        summarizeBySubject(grades),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, stats, statisticsCacheTTL); err != nil {
			s.logger.Warn("failed to cache student statistics", zap.Error(err))
		}
	}
	return stats, nil
}

// Distribution counts a class's scores into the five fixed letter bands, in
// display order, including empty buckets.
func (s *GradeService) Distribution(ctx context.Context, classID, academicYearID string, semester int) ([]models.GradeBucket, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class is required")
	}
	grades, err := s.grades.ListScoresByClass(ctx, classID, academicYearID, semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class scores")
	}
	return DistributeScores(grades), nil
}

// DistributeScores buckets scored entries into the fixed letter bands.
func DistributeScores(grades []models.GradeDetail) []models.GradeBucket {
	counts := make([]int, len(models.GradeDistributionLabels))
	for _, grade := range grades {
		if grade.Score == nil {
			continue
		}
		counts[bucketIndex(*grade.Score)]++
	}

	buckets := make([]models.GradeBucket, 0, len(models.GradeDistributionLabels))
	for i, label := range models.GradeDistributionLabels {
		buckets = append(buckets, models.GradeBucket{Label: label, Count: counts[i]})
	}
	return buckets
}

func (s *GradeService) invalidateStatistics(ctx context.Context, classID, studentID string) {
	if s.cache == nil {
		return
	}
	patterns := []string{"stats:grades:*"}
	if classID != "" && studentID != "" {
		patterns = []string{
			fmt.Sprintf("stats:grades:class:%s:*", classID),
			fmt.Sprintf("stats:grades:student:%s:*", studentID),
		}
	}
	for _, pattern := range patterns {
		if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
			s.logger.Warn("failed to invalidate statistics cache", zap.Error(err))
		}
	}
}

func summarize(grades []models.GradeDetail, keep func(models.GradeDetail) bool) models.ScoreSummary {
	var summary models.ScoreSummary
	var sum float64
	for _, grade := range grades {
		if grade.Score == nil || !keep(grade) {
			continue
		}
		score := *grade.Score
		if summary.Count == 0 {
			summary.Max = &score
			summary.Min = &score
		} else {
			if score > *summary.Max {
				max := score
				summary.Max = &max
			}
			if score < *summary.Min {
				min := score
				summary.Min = &min
			}
		}
		sum += score
		summary.Count++
	}
	if summary.Count > 0 {
		avg := sum / float64(summary.Count)
		summary.Average = &avg
	}
	return summary
}

func summarizeByType(grades []models.GradeDetail) map[models.AssessmentType]models.ScoreSummary {
	byType := make(map[models.AssessmentType]models.ScoreSummary)
	types := make(map[models.AssessmentType]struct{})
	for _, grade := range grades {
		types[grade.AssessmentType] = struct{}{}
	}
	for assessmentType := range types {
		at := assessmentType
		byType[at] = summarize(grades, func(g models.GradeDetail) bool { return g.AssessmentType == at })
	}
	return byType
}

func summarizeBySubject(grades []models.GradeDetail) []models.SubjectStatistics {
	seen := make(map[string]models.SubjectStatistics)
	var order []string
	for _, grade := range grades {
		if _, ok := seen[grade.SubjectID]; !ok {
			seen[grade.SubjectID] = models.SubjectStatistics{
				SubjectID:   grade.SubjectID,
				SubjectName: grade.SubjectName,
				SubjectCode: grade.SubjectCode,
			}
			order = append(order, grade.SubjectID)
		}
	}
	sort.Strings(order)

	subjects := make([]models.SubjectStatistics, 0, len(order))
	for _, subjectID := range order {
		stat := seen[subjectID]
		id := subjectID
		stat.ScoreSummary = summarize(grades, func(g models.GradeDetail) bool { return g.SubjectID == id })
		subjects = append(subjects, stat)
	}
	return subjects
}

// bucketIndex fixes a score into its distribution band position.
// Kept separate so the boundary semantics stay testable: 90 is an A, 89.99 a B.
func bucketIndex(score float64) int {
	switch {
	case score >= 90:
		return 0
	case score >= 80:
		return 1
	case score >= 70:
		return 2
	case score >= 60:
		return 3
	default:
		return 4
	}
}
