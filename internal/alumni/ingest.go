package alumni

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/noah-isme/alumni-portal-api/internal/models"
)

var (
	legacyYears  = regexp.MustCompile(`(\d{4})\s*-\s*(\d{4})`)
	parenthetics = regexp.MustCompile(`\s*\([^)]*\)`)
)

// FromRaw converts an import record into a strict profile with derived
// fields populated. Records without an id or a profile URL to take one from
// are rejected.
func (n *Normalizer) FromRaw(rec models.RawProfileRecord) (models.AlumniProfile, bool) {
	profileURL := firstNonEmpty(rec.URL, rec.InputURL)
	if profileURL == "" && rec.Input != nil {
		profileURL = rec.Input.URL
	}

	id := firstNonEmpty(rec.ID, rec.LinkedInID, slugOf(profileURL))
	if id == "" {
		return models.AlumniProfile{}, false
	}

	p := models.AlumniProfile{
		ID:         id,
		Name:       firstNonEmpty(rec.Name, "Unknown"),
		Position:   nonEmpty(rec.Position),
		Location:   nonEmpty(firstNonEmpty(rec.Location, rec.City)),
		Avatar:     nonEmpty(rec.Avatar),
		About:      nonEmpty(rec.About),
		ProfileURL: nonEmpty(profileURL),
		Education:  educationOf(rec.Education),
		Experience: experienceOf(rec.Experience),
	}

	switch {
	case rec.CurrentCompany.Set && strings.TrimSpace(rec.CurrentCompany.Name) != "":
		cc := rec.CurrentCompany.CurrentCompany
		p.CurrentCompany = &cc
	case strings.TrimSpace(rec.CurrentCompanyName) != "":
		p.CurrentCompany = &models.CurrentCompany{Name: strings.TrimSpace(rec.CurrentCompanyName)}
	}

	return n.Derive(p), true
}

func educationOf(raw models.RawEducation) models.JSONList[models.EducationEntry] {
	if len(raw.Entries) == 0 {
		return ParseLegacyEducation(raw.Legacy)
	}
	out := make(models.JSONList[models.EducationEntry], 0, len(raw.Entries))
	for _, e := range raw.Entries {
		out = append(out, models.EducationEntry{
			Institution: strings.TrimSpace(firstNonEmpty(e.Title, e.Institution, e.Institute)),
			Degree:      strings.TrimSpace(e.Degree),
			Field:       strings.TrimSpace(e.Field),
			StartYear:   strings.TrimSpace(string(e.StartYear)),
			EndYear:     strings.TrimSpace(string(e.EndYear)),
		})
	}
	return out
}

// experienceOf fills missing details of grouped records from their first
// nested position.
func experienceOf(raw []models.RawExperienceEntry) models.JSONList[models.ExperienceEntry] {
	out := make(models.JSONList[models.ExperienceEntry], 0, len(raw))
	for _, e := range raw {
		var first models.RawPosition
		if len(e.Positions) > 0 {
			first = e.Positions[0]
		}
		out = append(out, models.ExperienceEntry{
			Company:   strings.TrimSpace(e.Company),
			Title:     strings.TrimSpace(firstNonEmpty(e.Title, first.Title)),
			Location:  strings.TrimSpace(firstNonEmpty(e.Location, first.Location)),
			StartDate: strings.TrimSpace(firstNonEmpty(e.StartDate, first.StartDate)),
			EndDate:   strings.TrimSpace(firstNonEmpty(e.EndDate, first.EndDate)),
		})
	}
	return out
}

// ParseLegacyEducation parses the single-string export format
// "Institute, Degree (Abbrev), Field, 2017-2021". The institute name may
// itself contain commas, so fields are taken from the right.
func ParseLegacyEducation(s string) models.JSONList[models.EducationEntry] {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.JSONList[models.EducationEntry]{}
	}

	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	var entry models.EducationEntry
	if m := legacyYears.FindStringSubmatch(parts[len(parts)-1]); m != nil && len(parts) >= 2 {
		entry.StartYear, entry.EndYear = m[1], m[2]
		parts = parts[:len(parts)-1]
	}

	switch {
	case len(parts) >= 3:
		entry.Field = parts[len(parts)-1]
		entry.Degree = cleanDegree(parts[len(parts)-2])
		entry.Institution = strings.Join(parts[:len(parts)-2], ", ")
	case len(parts) == 2:
		entry.Degree = cleanDegree(parts[1])
		entry.Institution = parts[0]
	default:
		entry.Institution = parts[0]
	}

	return models.JSONList[models.EducationEntry]{entry}
}

// cleanDegree drops a trailing abbreviation such as "(BTech)" unless it is
// the only place the degree family is named.
func cleanDegree(label string) string {
	stripped := strings.TrimSpace(parenthetics.ReplaceAllString(label, ""))
	if stripped == "" || (!IsRelevantDegree(stripped) && IsRelevantDegree(label)) {
		return label
	}
	return stripped
}

func slugOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	slug := path.Base(strings.TrimRight(p, "/"))
	if slug == "." || slug == "/" {
		return ""
	}
	return slug
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
