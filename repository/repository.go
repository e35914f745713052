package repository

import (
	"errors"
	"fmt"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ribon-matchalatte/backend/inventory"
	"github.com/ribon-matchalatte/backend/repository/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgreSQL error codes as constants
const (
	// Class 23: Integrity Constraint Violation
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrNotNullViolation    = "23502" // not_null_violation

	// Class 22: Data Exception
	PgErrNumericValueOutOfRange = "22003" // numeric_value_out_of_range

	// Class 08: Connection Exception
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure

	// Class 40: Transaction Rollback
	PgErrTransactionRollback  = "40000" // transaction_rollback
	PgErrSerializationFailure = "40001" // serialization_failure
	PgErrDeadlockDetected     = "40P01" // deadlock_detected

	// Class 57: Operator Intervention
	PgErrAdminShutdown = "57P01" // admin_shutdown
)

// RepositoryError represent an error in the repository layer that has no domain
// meaning (connection loss, malformed data, ...)
type RepositoryError struct {
	Code    string
	Message string
	Detail  string
}

func (e *RepositoryError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

// Repository is the PostgreSQL implementation of the storefront storage
type Repository struct {
	db     *gorm.DB
	logger cmtlog.Logger
}

func NewRepository(logger cmtlog.Logger) *Repository {
	if logger == nil {
		logger = cmtlog.NewNopLogger()
	}
	return &Repository{
		logger: logger.With("module", "repository"),
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// ConnectDB opens the connection, retrying while the database starts up
func (r *Repository) ConnectDB(dsn string, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := range attempts {
		r.logger.Info("Connecting to Postgres", "attempt", i+1)
		db, err := gorm.Open(postgres.Open(dsn), gormConfig())
		if err == nil {
			r.db = db
			r.logger.Info("Connected to Postgres")
			return nil
		}
		lastErr = err
		r.logger.Error("Connection attempt failed", "attempt", i+1, "err", err)
		if i < attempts-1 {
			time.Sleep(2 * time.Second)
		}
	}
	return fmt.Errorf("failed to connect to postgres after %d attempts: %w", attempts, lastErr)
}

// Migrate creates or updates the storefront tables
func (r *Repository) Migrate() error {
	err := r.db.AutoMigrate(
		&models.Category{},
		&models.Ingredient{},
		&models.Product{},
		&models.RecipeEntry{},
		&models.Order{},
		&models.OrderItem{},
		&models.StockMovement{},
		&models.Contact{},
		&models.Review{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	r.logger.Info("Database migration completed successfully")
	return nil
}

func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translateError maps a driver error to the domain error it means. Errors with no
// domain meaning become *RepositoryError.
func translateError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return inventory.NewNotFound(entity, id)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case PgErrCheckViolation:
			if pgErr.ConstraintName == "chk_ingredients_stock_nonneg" {
				return &inventory.InsufficientStockError{}
			}
			return fmt.Errorf("%w: %s", inventory.ErrInvalidAmount, pgErr.Message)
		case PgErrUniqueViolation:
			return fmt.Errorf("%w: %s", inventory.ErrDuplicate, pgErr.Detail)
		case PgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s", inventory.NewNotFound(entity, id), pgErr.Detail)
		case PgErrSerializationFailure, PgErrDeadlockDetected:
			return fmt.Errorf("%w: %s", inventory.ErrConflict, pgErr.Message)
		}
		return &RepositoryError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
		}
	}

	return &RepositoryError{
		Code:    "DATABASE_ERROR",
		Message: "Database error occured",
		Detail:  err.Error(),
	}
}
