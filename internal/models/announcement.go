package models

import (
	"time"

	"github.com/lib/pq"
)

// AudienceKind discriminates the announcement audience union.
type AudienceKind string

const (
	AudienceAll         AudienceKind = "all"
	AudienceSchoolLevel AudienceKind = "school_level"
	AudienceClass       AudienceKind = "class"
	AudienceUsers       AudienceKind = "users"
)

// Audience is a tagged union over the four audience kinds. Only the field
// matching Kind carries data; the rest stay empty.
type Audience struct {
	Kind          AudienceKind   `db:"audience_kind" json:"kind"`
	SchoolLevelID *string        `db:"audience_school_level_id" json:"school_level_id,omitempty"`
	ClassID       *string        `db:"audience_class_id" json:"class_id,omitempty"`
	UserIDs       pq.StringArray `db:"audience_user_ids" json:"user_ids,omitempty"`
}

// Valid checks the variant carries exactly the data its kind requires.
func (a Audience) Valid() bool {
	switch a.Kind {
	case AudienceAll:
		return a.SchoolLevelID == nil && a.ClassID == nil && len(a.UserIDs) == 0
	case AudienceSchoolLevel:
		return a.SchoolLevelID != nil && a.ClassID == nil && len(a.UserIDs) == 0
	case AudienceClass:
		return a.ClassID != nil && a.SchoolLevelID == nil && len(a.UserIDs) == 0
	case AudienceUsers:
		return len(a.UserIDs) > 0 && a.SchoolLevelID == nil && a.ClassID == nil
	}
	return false
}

// Announcement is a school-wide or targeted notice with a publish window.
type Announcement struct {
	ID             string     `db:"id" json:"id"`
	SchoolID       string     `db:"school_id" json:"school_id"`
	AcademicYearID *string    `db:"academic_year_id" json:"academic_year_id,omitempty"`
	Title          string     `db:"title" json:"title"`
	Body           string     `db:"body" json:"body"`
	Audience       Audience   `json:"audience"`
	PublishAt      time.Time  `db:"publish_at" json:"publish_at"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	IsPublished    bool       `db:"is_published" json:"is_published"`
	AuditFields
}

// VisibleAt reports whether the announcement should be shown at time t.
func (a Announcement) VisibleAt(t time.Time) bool {
	if !a.IsPublished || t.Before(a.PublishAt) {
		return false
	}
	return a.ExpiresAt == nil || t.Before(*a.ExpiresAt)
}

// AnnouncementFilter defines filters supported by list endpoints.
type AnnouncementFilter struct {
	SchoolID       string
	AcademicYearID string
	Kind           AudienceKind
	ClassID        string
	OnlyVisible    bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
