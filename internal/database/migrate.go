package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS plans (
		id                   BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name                 VARCHAR(64)  NOT NULL,
		display_name         VARCHAR(128) NOT NULL,
		max_vehicles         INT          NOT NULL DEFAULT 0,
		max_operators        INT          NOT NULL DEFAULT 0,
		max_trips_per_period INT          NOT NULL DEFAULT 0,
		UNIQUE KEY uq_plans_name (name)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS tenants (
		id                      BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name                    VARCHAR(191) NOT NULL,
		contact_email           VARCHAR(191) NOT NULL,
		phone                   VARCHAR(32)  NOT NULL DEFAULT '',
		country_code            CHAR(2)      NOT NULL DEFAULT '',
		plan_id                 BIGINT UNSIGNED NOT NULL,
		status                  VARCHAR(16)  NOT NULL,
		trial_expires_at        DATETIME     NULL,
		email_verified          TINYINT(1)   NOT NULL DEFAULT 0,
		verification_hash       CHAR(64)     NULL,
		verification_expires_at DATETIME     NULL,
		vehicle_count           INT          NOT NULL DEFAULT 0,
		operator_count          INT          NOT NULL DEFAULT 0,
		trip_count              INT          NOT NULL DEFAULT 0,
		trip_period             INT          NOT NULL DEFAULT 0,
		created_at              DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at              DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		KEY idx_tenants_verification (verification_hash),
		CONSTRAINT fk_tenants_plan FOREIGN KEY (plan_id) REFERENCES plans (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS principals (
		id                 BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		email              VARCHAR(191) NOT NULL,
		name               VARCHAR(191) NOT NULL DEFAULT '',
		password_hash      VARCHAR(255) NOT NULL,
		role               VARCHAR(32)  NOT NULL,
		tenant_id          BIGINT UNSIGNED NULL,
		token_generation   BIGINT UNSIGNED NOT NULL DEFAULT 0,
		refresh_token_hash CHAR(64)     NULL,
		is_active          TINYINT(1)   NOT NULL DEFAULT 1,
		last_login_at      DATETIME     NULL,
		created_at         DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at         DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uq_principals_email (email),
		KEY idx_principals_tenant (tenant_id),
		CONSTRAINT fk_principals_tenant FOREIGN KEY (tenant_id) REFERENCES tenants (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`INSERT IGNORE INTO plans (name, display_name, max_vehicles, max_operators, max_trips_per_period) VALUES
		('basic', 'Basic', 5, 3, 100),
		('pro', 'Professional', 25, 15, 1000),
		('enterprise', 'Enterprise', 200, 100, 20000)`,
}

// Migrate creates the tables the access core needs and seeds the default
// plans.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
