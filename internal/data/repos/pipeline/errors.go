package pipeline

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	pkgerrors "github.com/yungbote/reelforge/internal/pkg/errors"
)

// ErrConflict indicates a uniqueness conflict (duplicate folder_name).
var ErrConflict = pkgerrors.ErrConflict

const pgUniqueViolation = "23505"

// mapWriteError tags Postgres unique-violation failures as ErrConflict so
// callers can branch with errors.Is instead of inspecting driver codes.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errors.Join(ErrConflict, err)
	}
	return err
}
