package alumni

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alumni-portal-api/internal/models"
)

func strPtr(s string) *string { return &s }

func TestExtractScenario(t *testing.T) {
	n := NewNormalizer(nil, nil)
	edu := []models.EducationEntry{{
		Institution: "IIIT Naya Raipur",
		Field:       "computer science and engineering",
		Degree:      "B.Tech",
		StartYear:   "2018",
		EndYear:     "2022",
	}}

	assert.Equal(t, strPtr("CSE"), n.ExtractBranch(edu))
	assert.Equal(t, strPtr("2018"), n.ExtractBatch(edu))
	assert.Equal(t, strPtr("2022"), n.ExtractGraduationYear(edu))
}

func TestExtractUsesFirstQualifyingEntry(t *testing.T) {
	n := NewNormalizer(nil, nil)
	edu := []models.EducationEntry{
		{Institution: "Delhi Public School", Field: "Science", StartYear: "2012", EndYear: "2014"},
		{Institution: "IIIT-NR", Degree: "MBA", Field: "Management", StartYear: "2014", EndYear: "2016"},
		{Institution: "IIIT-NR", Degree: "M.Tech", Field: "VLSI", StartYear: "2022", EndYear: "2024"},
		{Institution: "IIIT-NR", Degree: "B.Tech", Field: "CSE", StartYear: "2018", EndYear: "2022"},
	}

	assert.Equal(t, strPtr("2022"), n.ExtractBatch(edu))
	assert.Equal(t, strPtr("ECE"), n.ExtractBranch(edu))
	assert.Equal(t, strPtr("2024"), n.ExtractGraduationYear(edu))
}

func TestExtractEmptyDegreeQualifies(t *testing.T) {
	n := NewNormalizer(nil, nil)
	edu := []models.EducationEntry{{Institution: "iiitnr", Field: "Quantum Basket Weaving", StartYear: "2019"}}

	assert.Equal(t, strPtr("2019"), n.ExtractBatch(edu))
	assert.Equal(t, strPtr("Quantum Basket Weaving"), n.ExtractBranch(edu))
	assert.Nil(t, n.ExtractGraduationYear(edu))
}

func TestExtractAllNullWhenNothingQualifies(t *testing.T) {
	n := NewNormalizer(nil, nil)
	inputs := [][]models.EducationEntry{
		nil,
		{},
		{{Institution: "IIT Bombay", Degree: "B.Tech", Field: "CSE", StartYear: "2018"}},
		{{Institution: "IIIT Naya Raipur", Degree: "Diploma", Field: "CSE", StartYear: "2018"}},
	}
	for _, edu := range inputs {
		assert.Nil(t, n.ExtractBatch(edu))
		assert.Nil(t, n.ExtractBranch(edu))
		assert.Nil(t, n.ExtractGraduationYear(edu))
	}
}

func TestExtractCurrentCompany(t *testing.T) {
	exp := []models.ExperienceEntry{{Company: "Globex"}, {Company: "Initech"}}

	assert.Equal(t, strPtr("Acme"), ExtractCurrentCompany(&models.CurrentCompany{Name: "Acme"}, exp))
	assert.Equal(t, strPtr("Globex"), ExtractCurrentCompany(&models.CurrentCompany{Name: " "}, exp))
	assert.Equal(t, strPtr("Globex"), ExtractCurrentCompany(nil, exp))
	assert.Nil(t, ExtractCurrentCompany(nil, nil))
}

func TestDeriveIsIdempotentAndPure(t *testing.T) {
	n := NewNormalizer(nil, nil)
	stale := "1999"
	p := models.AlumniProfile{
		ID:        "asha",
		Batch:     &stale,
		Education: models.JSONList[models.EducationEntry]{{Institution: "IIIT Naya Raipur", Degree: "B.Tech", Field: "ece", StartYear: "2017", EndYear: "2021"}},
		Experience: models.JSONList[models.ExperienceEntry]{
			{Company: "Acme"},
		},
	}

	first := n.Derive(p)
	second := n.Derive(first)

	require.Equal(t, first, second)
	assert.Equal(t, strPtr("2017"), first.Batch)
	assert.Equal(t, strPtr("ECE"), first.Branch)
	assert.Equal(t, strPtr("2021"), first.GraduationYear)
	assert.Equal(t, strPtr("Acme"), first.CurrentCompanyName)
	assert.Equal(t, "1999", *p.Batch)
}
