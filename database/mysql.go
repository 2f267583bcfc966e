package database

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"campusline/config"
)

func Connect(cfg config.DatabaseConfig, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.MysqlDSN)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	logger.Info("database connected")
	return db, nil
}

func CreateTables(db *sql.DB, logger *zap.Logger) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id          VARCHAR(36) PRIMARY KEY,
			username    VARCHAR(50) NOT NULL,
			nickname    VARCHAR(100) NOT NULL DEFAULT '',
			avatar      VARCHAR(255) NOT NULL DEFAULT '',
			password    VARCHAR(255) NOT NULL,
			role        ENUM('STUDENT', 'INSTRUCTOR', 'ADMIN') NOT NULL DEFAULT 'STUDENT',
			is_online   TINYINT(1) NOT NULL DEFAULT 0,
			last_active DATETIME(3) NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uk_username (username)
		)`,
		// user_low/user_high hold the ordered pair so that one row exists per unordered pair.
		`CREATE TABLE IF NOT EXISTS friendships (
			id          VARCHAR(36) PRIMARY KEY,
			sender_id   VARCHAR(36) NOT NULL,
			receiver_id VARCHAR(36) NOT NULL,
			user_low    VARCHAR(36) NOT NULL,
			user_high   VARCHAR(36) NOT NULL,
			status      ENUM('PENDING', 'ACCEPTED', 'REJECTED') NOT NULL DEFAULT 'PENDING',
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			UNIQUE KEY uk_pair (user_low, user_high),
			INDEX idx_receiver_status (receiver_id, status),
			INDEX idx_sender_status (sender_id, status)
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id          VARCHAR(36) PRIMARY KEY,
			user_id     VARCHAR(36) NOT NULL,
			title       VARCHAR(200) NOT NULL,
			message     TEXT NOT NULL,
			type        VARCHAR(50) NOT NULL,
			is_read     TINYINT(1) NOT NULL DEFAULT 0,
			link        VARCHAR(500) NULL,
			metadata    JSON NULL,
			created_at  DATETIME(3) NOT NULL,
			INDEX idx_user_time (user_id, created_at)
		)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id          VARCHAR(36) PRIMARY KEY,
			actor_id    VARCHAR(36) NOT NULL,
			target_id   VARCHAR(36) NOT NULL,
			action      VARCHAR(50) NOT NULL,
			old_value   VARCHAR(255) NOT NULL DEFAULT '',
			new_value   VARCHAR(255) NOT NULL DEFAULT '',
			created_at  DATETIME(3) NOT NULL,
			INDEX idx_target_time (target_id, created_at)
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return err
		}
	}

	logger.Info("database tables created")
	return nil
}
