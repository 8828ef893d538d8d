// Package database opens the MySQL pool and carries transactions on the
// request context.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Open connects to the allocation schema and pings it.
//
// Subscription and token expiry is evaluated lazily by comparing stored
// DATETIMEs with the engine's clock, so the session must read and write
// them as UTC: loc=UTC makes the driver decode DATETIME as UTC and the
// repositories always bind t.UTC().
func Open(user, pass, host, port, name string) (*sql.DB, error) {
	auth := user
	if pass != "" {
		auth = fmt.Sprintf("%s:%s", user, pass)
	}
	dsn := fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&time_zone=%%27%%2B00%%3A00%%27",
		auth, host, port, name)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Every activation holds the trainer row lock for one short
	// transaction; a small pool keeps lock waits bounded.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql %s:%s/%s: %w", host, port, name, err)
	}
	return db, nil
}
