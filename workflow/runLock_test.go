package workflow

import (
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	return gdb, mock
}

func TestWithCartMergeLock_ReleasesBeforeCommit(t *testing.T) {
	gdb, mock := setupMockDB(t)
	lockName := "cartmerge:t1:7:9:2026-09-02"

	// Expectations are ordered: RELEASE_LOCK after COMMIT would never reach
	// the connection and would pin the advisory lock until the pool recycles
	// it, blocking a same-date re-run on another connection.
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, 30)")).
		WithArgs(lockName).
		WillReturnRows(sqlmock.NewRows([]string{"l"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT RELEASE_LOCK(?)")).
		WithArgs(lockName).
		WillReturnRows(sqlmock.NewRows([]string{"l"}).AddRow(1))
	mock.ExpectCommit()

	ran := false
	err := withCartMergeLock(gdb, "t1:7:9:2026-09-02", func(tx *gorm.DB) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("withCartMergeLock returned %v", err)
	}
	if !ran {
		t.Fatal("merge body never ran")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("lock must be released inside the live transaction: %v", err)
	}
}

func TestWithCartMergeLock_ReleasesBeforeRollback(t *testing.T) {
	gdb, mock := setupMockDB(t)
	lockName := "cartmerge:t1:7:9:2026-09-02"
	mergeErr := errors.New("merge failed")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, 30)")).
		WithArgs(lockName).
		WillReturnRows(sqlmock.NewRows([]string{"l"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT RELEASE_LOCK(?)")).
		WithArgs(lockName).
		WillReturnRows(sqlmock.NewRows([]string{"l"}).AddRow(1))
	mock.ExpectRollback()

	err := withCartMergeLock(gdb, "t1:7:9:2026-09-02", func(tx *gorm.DB) error {
		return mergeErr
	})
	if !errors.Is(err, mergeErr) {
		t.Fatalf("withCartMergeLock returned %v, want the merge error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("lock must be released before the rollback: %v", err)
	}
}

func TestWithCartMergeLock_LockNotGranted(t *testing.T) {
	gdb, mock := setupMockDB(t)
	lockName := "cartmerge:t1:7:9:2026-09-02"

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, 30)")).
		WithArgs(lockName).
		WillReturnRows(sqlmock.NewRows([]string{"l"}).AddRow(0))
	mock.ExpectRollback()

	err := withCartMergeLock(gdb, "t1:7:9:2026-09-02", func(tx *gorm.DB) error {
		t.Fatal("merge body must not run without the lock")
		return nil
	})
	if err == nil {
		t.Fatal("expected an error when GET_LOCK times out")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected statement flow: %v", err)
	}
}
