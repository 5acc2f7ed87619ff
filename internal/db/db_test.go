package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "papers", []string{"id", "title"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"papers"}, []string{"id", "title"}).WillReturnResult(3)

	rows := [][]any{{"a", "one"}, {"b", "two"}, {"c", "three"}}
	n, err := CopyFrom(context.Background(), mock, "papers", []string{"id", "title"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"papers"}, []string{"id", "title"}).
		WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "papers", []string{"id", "title"}, [][]any{{"a", "one"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO papers")
	assert.NoError(t, mock.ExpectationsWereMet())
}
