package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/wso2/abdm-integration-api/internal/config"
)

// DB is the MySQL pool behind the consent, fetch and record stores
type DB struct {
	*sqlx.DB
	logger *logrus.Logger
}

// Transaction is handed to store methods suffixed WithTx
type Transaction struct {
	*sqlx.Tx
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// Open connects to the store and waits up to cfg.ConnectTimeout for it to answer.
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger *logrus.Logger) (*DB, error) {
	log := logger.WithFields(logrus.Fields{
		"hostname": cfg.Hostname,
		"port":     cfg.Port,
		"database": cfg.Database,
	})
	log.Info("Opening database pool")

	driver := cfg.Type
	if driver == "" {
		driver = "mysql"
	}
	conn, err := sqlx.Open(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = cfg.ConnectTimeout
	if err := waitForPing(ctx, conn, b, log); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("Database pool ready")
	return New(conn, logger), nil
}

// waitForPing pings until the store answers or the policy gives up
func waitForPing(ctx context.Context, p pinger, policy backoff.BackOff, log *logrus.Entry) error {
	attempt := 0
	ping := func() error {
		attempt++
		return p.PingContext(ctx)
	}
	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"wait":    wait,
		}).Warn("Database not reachable yet")
	}
	if err := backoff.RetryNotify(ping, backoff.WithContext(policy, ctx), notify); err != nil {
		return fmt.Errorf("failed to ping database after %d attempts: %w", attempt, err)
	}
	return nil
}

// New wraps an open pool
func New(conn *sqlx.DB, logger *logrus.Logger) *DB {
	return &DB{DB: conn, logger: logger}
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	db.logger.Info("Closing database pool")
	return db.DB.Close()
}

// HealthCheck backs GET /health
func (db *DB) HealthCheck(ctx context.Context) error {
	if db.DB == nil {
		return errors.New("database pool is not open")
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// WithTransaction runs fn in a READ COMMITTED transaction. Row locks taken with
// SELECT ... FOR UPDATE inside fn are held until it returns. fn's error or panic
// rolls the transaction back.
func (db *DB) WithTransaction(ctx context.Context, fn func(*Transaction) error) error {
	sqlTx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	tx := &Transaction{Tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			db.rollback(tx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		db.rollback(tx)
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) rollback(tx *Transaction) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		db.logger.WithError(err).Error("Failed to roll back transaction")
	}
}
