package database

import (
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/viper"
)

// Connect opens the Postgres pool used by the postgres store backend.
func Connect() (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", viper.GetString("DB_DSN"))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}
