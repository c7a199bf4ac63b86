package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FilterAny disables a filter predicate, as does the empty string.
const FilterAny = "any"

// EducationEntry is one education record of a profile.
type EducationEntry struct {
	Institution string `json:"institution"`
	Degree      string `json:"degree,omitempty"`
	Field       string `json:"field,omitempty"`
	StartYear   string `json:"start_year,omitempty"`
	EndYear     string `json:"end_year,omitempty"`
}

// ExperienceEntry is one work record. EndDate may be "Present".
type ExperienceEntry struct {
	Company   string `json:"company"`
	Title     string `json:"title,omitempty"`
	Location  string `json:"location,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// CurrentCompany is the explicitly declared employer of a profile.
type CurrentCompany struct {
	Name     string `json:"name"`
	Title    string `json:"title,omitempty"`
	Location string `json:"location,omitempty"`
}

// Scan implements sql.Scanner for a JSONB column.
func (c *CurrentCompany) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// Value implements driver.Valuer.
func (c CurrentCompany) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// JSONList stores a slice in a JSONB column. NULL scans as an empty list.
type JSONList[T any] []T

// Scan implements sql.Scanner.
func (l *JSONList[T]) Scan(src interface{}) error {
	if src == nil {
		*l = JSONList[T]{}
		return nil
	}
	return scanJSON(src, (*[]T)(l))
}

// Value implements driver.Valuer.
func (l JSONList[T]) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]T(l))
}

func scanJSON(src interface{}, dst interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON source %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// AlumniProfile is a directory entry. Batch, Branch, GraduationYear and
// CurrentCompanyName are derived from Education and Experience and are
// recomputed on every ingest; they are never the source of truth.
type AlumniProfile struct {
	ID             string                    `db:"id" json:"id"`
	Name           string                    `db:"name" json:"name"`
	Position       *string                   `db:"position" json:"position,omitempty"`
	Location       *string                   `db:"location" json:"location,omitempty"`
	Avatar         *string                   `db:"avatar" json:"avatar,omitempty"`
	About          *string                   `db:"about" json:"about,omitempty"`
	ProfileURL     *string                   `db:"profile_url" json:"url,omitempty"`
	CurrentCompany *CurrentCompany           `db:"current_company" json:"current_company,omitempty"`
	Education      JSONList[EducationEntry]  `db:"education" json:"education"`
	Experience     JSONList[ExperienceEntry] `db:"experience" json:"experience"`

	Batch              *string `db:"batch" json:"batch,omitempty"`
	Branch             *string `db:"branch" json:"branch,omitempty"`
	GraduationYear     *string `db:"graduation_year" json:"graduation_year,omitempty"`
	CurrentCompanyName *string `db:"current_company_name" json:"current_company_name,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// FilterSpec selects directory profiles. Empty or "any" removes a predicate.
type FilterSpec struct {
	SearchTerm string `form:"search" json:"search"`
	Degree     string `form:"degree" json:"degree"`
	Branch     string `form:"branch" json:"branch"`
	Batch      string `form:"batch" json:"batch"`
}

// Active reports whether v constrains the result. Blank values and any
// casing of "any" do not.
func Active(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && !strings.EqualFold(v, FilterAny)
}

// AlumniQuery is the directory listing request.
type AlumniQuery struct {
	FilterSpec
	Page  int `form:"page" validate:"omitempty,min=1"`
	Limit int `form:"limit" validate:"omitempty,min=1,max=200"`
}

// Facets lists the distinct filter values present in the directory.
type Facets struct {
	Branches []string `json:"branches"`
	Degrees  []string `json:"degrees"`
	Batches  []string `json:"batches"`
}

// AlumniPage is one page of filtered profiles.
type AlumniPage struct {
	Items      []AlumniProfile `json:"items"`
	Pagination *Pagination     `json:"-"`
	Facets     Facets          `json:"facets"`
}

// ImportSummary reports the outcome of an import request.
type ImportSummary struct {
	JobID    string `json:"job_id"`
	Received int    `json:"received"`
	Accepted int    `json:"accepted"`
	Skipped  int    `json:"skipped"`
}

// FlexString decodes a JSON string or number into a string.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// RawCurrentCompany accepts either a bare company name or an object.
type RawCurrentCompany struct {
	CurrentCompany
	Set bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RawCurrentCompany) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.CurrentCompany = CurrentCompany{Name: name}
		r.Set = name != ""
		return nil
	}
	var obj struct {
		Name     *string `json:"name"`
		Title    *string `json:"title"`
		Location *string `json:"location"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.New("current_company must be a string or an object")
	}
	r.CurrentCompany = CurrentCompany{Name: deref(obj.Name), Title: deref(obj.Title), Location: deref(obj.Location)}
	r.Set = true
	return nil
}

// RawEducationEntry is an imported education record. Scraped exports name
// the institution "title".
type RawEducationEntry struct {
	Title       string     `json:"title"`
	Institution string     `json:"institution"`
	Institute   string     `json:"institute"`
	Degree      string     `json:"degree"`
	Field       string     `json:"field"`
	StartYear   FlexString `json:"start_year"`
	EndYear     FlexString `json:"end_year"`
}

// RawEducation accepts an array of entries or a legacy single string.
type RawEducation struct {
	Entries []RawEducationEntry
	Legacy  string
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RawEducation) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, &r.Legacy); err == nil {
		return nil
	}
	if err := json.Unmarshal(data, &r.Entries); err != nil {
		return errors.New("education must be an array or a string")
	}
	return nil
}

// RawPosition is a nested role inside a grouped experience record.
type RawPosition struct {
	Title     string `json:"title"`
	Location  string `json:"location"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// RawExperienceEntry is an imported experience record.
type RawExperienceEntry struct {
	Company   string        `json:"company"`
	Title     string        `json:"title"`
	Location  string        `json:"location"`
	StartDate string        `json:"start_date"`
	EndDate   string        `json:"end_date"`
	Positions []RawPosition `json:"positions"`
}

// RawInput carries the scrape input of a profile.
type RawInput struct {
	URL string `json:"url"`
}

// RawProfileRecord is the loosely typed import shape. It never leaves the
// ingestion boundary.
type RawProfileRecord struct {
	ID                 string               `json:"id"`
	LinkedInID         string               `json:"linkedin_id"`
	URL                string               `json:"url"`
	InputURL           string               `json:"input_url"`
	Input              *RawInput            `json:"input"`
	Name               string               `json:"name"`
	Position           string               `json:"position"`
	Location           string               `json:"location"`
	City               string               `json:"city"`
	Avatar             string               `json:"avatar"`
	About              string               `json:"about"`
	CurrentCompany     RawCurrentCompany    `json:"current_company"`
	CurrentCompanyName string               `json:"current_company_name"`
	Education          RawEducation         `json:"education"`
	Experience         []RawExperienceEntry `json:"experience"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
