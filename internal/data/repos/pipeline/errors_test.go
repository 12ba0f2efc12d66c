package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestMapWriteError_UniqueViolationBecomesConflict(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "idx_projects_folder_name"}
	err := mapWriteError(fmt.Errorf("create project: %w", pgErr))
	require.ErrorIs(t, err, ErrConflict)
}

func TestMapWriteError_OtherErrorsPassThrough(t *testing.T) {
	orig := errors.New("connection refused")
	require.Equal(t, orig, mapWriteError(orig))
	require.NotErrorIs(t, mapWriteError(&pgconn.PgError{Code: "23503"}), ErrConflict)
	require.NoError(t, mapWriteError(nil))
}
