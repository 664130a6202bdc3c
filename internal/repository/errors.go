package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Категории ошибок. Конкретные ошибки оборачивают одну из категорий,
// поэтому вызывающий код классифицирует их через errors.Is.
var (
	// ErrNotFound означает, что запрошенная сущность не существует.
	ErrNotFound = errors.New("not found")
	// ErrConflict означает, что состояние сущности не допускает операцию.
	ErrConflict = errors.New("conflict")
	// ErrTransient означает временный сбой хранилища; запрос можно повторить целиком.
	ErrTransient = errors.New("transient store failure")
	// ErrValidation означает некорректные входные данные.
	ErrValidation = errors.New("validation failed")
)

var (
	// ErrCardNotFound возвращается, если карточка не найдена в событии.
	ErrCardNotFound = fmt.Errorf("card %w", ErrNotFound)
	// ErrVendorNotFound возвращается, если продавец не найден.
	ErrVendorNotFound = fmt.Errorf("vendor %w", ErrNotFound)
	// ErrSaleNotFound возвращается, если продажа не найдена.
	ErrSaleNotFound = fmt.Errorf("sale %w", ErrNotFound)
	// ErrCardAlreadySold возвращается при попытке продать или изменить проданную карточку.
	ErrCardAlreadySold = fmt.Errorf("%w: card already sold", ErrConflict)
	// ErrCardNoTaken возвращается, если номер карточки уже занят в событии.
	ErrCardNoTaken = fmt.Errorf("%w: card number already exists for event", ErrConflict)
	// ErrVendorInUse возвращается при удалении продавца с командой, продажами или назначенными карточками.
	ErrVendorInUse = fmt.Errorf("%w: vendor has team, sales history or assigned cards", ErrConflict)
)

// classify переводит ошибки драйвера в категории хранилища.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		return err
	}
	if isTransient(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.SerializationFailure,
			pgerrcode.DeadlockDetected,
			pgerrcode.LockNotAvailable,
			pgerrcode.AdminShutdown,
			pgerrcode.CannotConnectNow,
			pgerrcode.TooManyConnections:
			return true
		}
		return false
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}
