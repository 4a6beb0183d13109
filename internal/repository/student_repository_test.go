package repository

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tkd-admin-api/internal/models"
)

var studentRowColumns = []string{"id", "full_name", "course", "belt_level", "phone", "email", "guardian_name", "joined_at", "active", "created_at", "updated_at"}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(studentRowColumns).
		AddRow("1", "Min-ji Park", "Junior", "Green", "555", "minji@example.com", "Soo Park", now, true, now, now)
	active := true
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + studentColumns + " FROM students WHERE 1=1 AND belt_level = $1 AND active = $2 ORDER BY full_name ASC LIMIT 20 OFFSET 0")).
		WithArgs("Green", true).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE 1=1 AND belt_level = $1 AND active = $2")).
		WithArgs("Green", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	students, total, err := repo.List(context.Background(), models.StudentFilter{BeltLevel: "Green", Active: &active, SortBy: "full_name", SortOrder: "asc"})
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "Green", students[0].BeltLevel)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	args := make([]driver.Value, len(studentRowColumns))
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO students").WithArgs(args...).WillReturnResult(sqlmock.NewResult(1, 1))

	student := &models.Student{FullName: "Arjun Rao", Course: "Adult", BeltLevel: "White", Active: true}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	assert.False(t, student.JoinedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
