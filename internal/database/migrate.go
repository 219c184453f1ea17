package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email         VARCHAR(255) NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		role          VARCHAR(16)  NOT NULL DEFAULT 'DRIVER',
		is_active     BOOLEAN      NOT NULL DEFAULT TRUE,
		created_at    DATETIME(3)  NOT NULL,
		updated_at    DATETIME(3)  NOT NULL,
		UNIQUE KEY uq_users_email (email)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64)    NOT NULL,
		expires_at DATETIME(3) NOT NULL,
		revoked_at DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL,
		UNIQUE KEY uq_refresh_hash (token_hash),
		KEY idx_refresh_user (user_id),
		CONSTRAINT fk_refresh_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS wallet_accounts (
		user_id    BIGINT UNSIGNED PRIMARY KEY,
		balance    DECIMAL(12,2) NOT NULL DEFAULT 0,
		updated_at DATETIME(3)   NOT NULL,
		CONSTRAINT chk_wallet_balance CHECK (balance >= 0),
		CONSTRAINT fk_wallet_user FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS parking_spaces (
		id            BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		space_number  VARCHAR(32) NOT NULL,
		current_state ENUM('available','reserved','occupied','unauthorized') NOT NULL DEFAULT 'available',
		updated_at    DATETIME(3) NOT NULL,
		UNIQUE KEY uq_space_number (space_number)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS space_state_history (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		space_id   BIGINT UNSIGNED NOT NULL,
		prev_state VARCHAR(16) NOT NULL,
		new_state  VARCHAR(16) NOT NULL,
		source     VARCHAR(16) NOT NULL,
		created_at DATETIME(3) NOT NULL,
		KEY idx_history_space (space_id, created_at),
		CONSTRAINT fk_history_space FOREIGN KEY (space_id) REFERENCES parking_spaces (id) ON DELETE CASCADE
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id        BIGINT UNSIGNED NOT NULL,
		space_id       BIGINT UNSIGNED NOT NULL,
		qr_code        CHAR(16)      NOT NULL,
		deposit_amount DECIMAL(12,2) NOT NULL,
		deposit_status ENUM('held','captured','released') NOT NULL DEFAULT 'held',
		status         ENUM('reserved','checked-in','cancelled','expired','completed') NOT NULL DEFAULT 'reserved',
		start_time     DATETIME(3)   NOT NULL,
		end_time       DATETIME(3)   NOT NULL,
		checked_in_at  DATETIME(3)   NULL,
		checked_out_at DATETIME(3)   NULL,
		total_fee      DECIMAL(12,2) NULL,
		created_at     DATETIME(3)   NOT NULL,
		updated_at     DATETIME(3)   NOT NULL,
		UNIQUE KEY uq_reservation_qr (qr_code),
		KEY idx_res_space_window (space_id, status, start_time, end_time),
		KEY idx_res_user (user_id, created_at),
		KEY idx_res_status_end (status, end_time),
		CONSTRAINT chk_res_window CHECK (start_time < end_time),
		CONSTRAINT fk_res_user FOREIGN KEY (user_id) REFERENCES users (id),
		CONSTRAINT fk_res_space FOREIGN KEY (space_id) REFERENCES parking_spaces (id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS wallet_transactions (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id        BIGINT UNSIGNED NOT NULL,
		reservation_id BIGINT UNSIGNED NULL,
		tx_type        ENUM('hold','debit','release','topup') NOT NULL,
		amount         DECIMAL(12,2) NOT NULL,
		note           VARCHAR(255)  NOT NULL DEFAULT '',
		created_at     DATETIME(3)   NOT NULL,
		KEY idx_wtx_user (user_id, created_at),
		KEY idx_wtx_reservation (reservation_id),
		CONSTRAINT fk_wtx_user FOREIGN KEY (user_id) REFERENCES wallet_accounts (user_id)
	) ENGINE=InnoDB`,

	`CREATE TABLE IF NOT EXISTS settings (
		key_name      VARCHAR(64) PRIMARY KEY,
		value_int     INT NULL,
		value_decimal DECIMAL(12,2) NULL
	) ENGINE=InnoDB`,

	`INSERT IGNORE INTO settings (key_name, value_int, value_decimal) VALUES
		('free_minutes', 0, NULL),
		('billing_block_min', 30, NULL),
		('rate_per_30min', NULL, 20.00)`,
}

// Migrate creates any missing table and seeds the default pricing rows.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
