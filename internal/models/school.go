package models

// School is the tenant boundary: academic years, classes and announcements all
// hang off a school.
type School struct {
	ID       string  `db:"id" json:"id"`
	Name     string  `db:"name" json:"name"`
	Code     string  `db:"code" json:"code"`
	LevelID  *string `db:"level_id" json:"level_id,omitempty"`
	Address  *string `db:"address" json:"address,omitempty"`
	Phone    *string `db:"phone" json:"phone,omitempty"`
	Email    *string `db:"email" json:"email,omitempty"`
	IsActive bool    `db:"is_active" json:"is_active"`
	AuditFields
}

// SchoolLevel groups schools by education stage (elementary, junior, senior).
type SchoolLevel struct {
	ID    string `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Code  string `db:"code" json:"code"`
	Order int    `db:"display_order" json:"order"`
	AuditFields
}
