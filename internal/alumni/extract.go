package alumni

import (
	"strings"

	"github.com/noah-isme/alumni-portal-api/internal/models"
)

// Qualifies reports whether e is at the tracked institution with either no
// degree label or a recognised one.
func (n *Normalizer) Qualifies(e models.EducationEntry) bool {
	if !n.IsKnownInstitution(e.Institution) {
		return false
	}
	return strings.TrimSpace(e.Degree) == "" || IsRelevantDegree(e.Degree)
}

// HomeEducation returns the first qualifying entry in array order.
func (n *Normalizer) HomeEducation(entries []models.EducationEntry) (models.EducationEntry, bool) {
	for _, e := range entries {
		if n.Qualifies(e) {
			return e, true
		}
	}
	return models.EducationEntry{}, false
}

// ExtractBatch returns the start year of the home entry.
func (n *Normalizer) ExtractBatch(entries []models.EducationEntry) *string {
	home, ok := n.HomeEducation(entries)
	if !ok {
		return nil
	}
	return nonEmpty(home.StartYear)
}

// ExtractBranch returns the canonical branch of the home entry.
func (n *Normalizer) ExtractBranch(entries []models.EducationEntry) *string {
	home, ok := n.HomeEducation(entries)
	if !ok || strings.TrimSpace(home.Field) == "" {
		return nil
	}
	return nonEmpty(n.NormalizeBranch(home.Field))
}

// ExtractGraduationYear returns the end year of the home entry.
func (n *Normalizer) ExtractGraduationYear(entries []models.EducationEntry) *string {
	home, ok := n.HomeEducation(entries)
	if !ok {
		return nil
	}
	return nonEmpty(home.EndYear)
}

// ExtractCurrentCompany prefers the declared current company and falls back
// to the first experience entry.
func ExtractCurrentCompany(current *models.CurrentCompany, experience []models.ExperienceEntry) *string {
	if current != nil {
		if name := nonEmpty(current.Name); name != nil {
			return name
		}
	}
	if len(experience) > 0 {
		return nonEmpty(experience[0].Company)
	}
	return nil
}

// Derive returns p with every derived field recomputed from its education
// and experience. p is not modified.
func (n *Normalizer) Derive(p models.AlumniProfile) models.AlumniProfile {
	p.Batch, p.Branch, p.GraduationYear = nil, nil, nil
	if home, ok := n.HomeEducation(p.Education); ok {
		p.Batch = nonEmpty(home.StartYear)
		p.GraduationYear = nonEmpty(home.EndYear)
		if strings.TrimSpace(home.Field) != "" {
			p.Branch = nonEmpty(n.NormalizeBranch(home.Field))
		}
	}
	p.CurrentCompanyName = ExtractCurrentCompany(p.CurrentCompany, p.Experience)
	return p
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
