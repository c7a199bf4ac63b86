package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/alumni-portal-api/internal/models"
)

var alumniColumnNames = []string{"id", "name", "position", "location", "avatar", "about", "profile_url", "current_company", "education", "experience", "batch", "branch", "graduation_year", "current_company_name", "created_at", "updated_at"}

func TestListAllDecodesJSONColumns(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAlumniRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(alumniColumnNames).
		AddRow("asha", "Asha Verma", nil, "Bengaluru", nil, nil, nil,
			[]byte(`{"name":"Acme","title":"SDE"}`),
			[]byte(`[{"institution":"IIIT Naya Raipur","degree":"B.Tech","field":"CSE","start_year":"2018"}]`),
			[]byte(`[{"company":"Acme","start_date":"2022"}]`),
			"2018", "CSE", nil, "Acme", now, now).
		AddRow("ravi", "Ravi", nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + alumniColumns + " FROM alumni_profiles ORDER BY name ASC, id ASC")).WillReturnRows(rows)

	profiles, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 2)

	asha := profiles[0]
	require.NotNil(t, asha.CurrentCompany)
	assert.Equal(t, "Acme", asha.CurrentCompany.Name)
	require.Len(t, asha.Education, 1)
	assert.Equal(t, "IIIT Naya Raipur", asha.Education[0].Institution)
	assert.Equal(t, "2022", asha.Experience[0].StartDate)
	assert.Equal(t, "CSE", *asha.Branch)

	ravi := profiles[1]
	assert.Nil(t, ravi.CurrentCompany)
	assert.NotNil(t, ravi.Education)
	assert.Empty(t, ravi.Education)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchRunsInTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAlumniRepository(db)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO alumni_profiles")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	profiles := []models.AlumniProfile{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}
	require.NoError(t, repo.UpsertBatch(context.Background(), profiles))
	assert.False(t, profiles[0].CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAlumniRepository(db)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO alumni_profiles")
	prep.ExpectExec().WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.UpsertBatch(context.Background(), []models.AlumniProfile{{ID: "a", Name: "A"}})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	require.NoError(t, NewAlumniRepository(db).UpsertBatch(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
