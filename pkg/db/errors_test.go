package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "gorm translated", err: fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), want: true},
		{name: "pgx code", err: &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_open_table"}, want: true},
		{name: "pgx matching constraint", err: &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_open_table"}, constraint: "ux_orders_open_table", want: true},
		{name: "pgx other constraint", err: &pgconn.PgError{Code: "23505", ConstraintName: "ingredients_name_key"}, constraint: "ux_orders_open_table", want: false},
		{name: "pq code", err: &pq.Error{Code: "23505"}, want: true},
		{name: "sqlite message", err: errors.New("UNIQUE constraint failed: orders.table_id"), want: true},
		{name: "sqlite message with column filter", err: errors.New("UNIQUE constraint failed: orders.table_id"), constraint: "orders.table_id", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Fatalf("IsUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsSerializationFailure(t *testing.T) {
	if !IsSerializationFailure(&pgconn.PgError{Code: "40001"}) {
		t.Fatal("40001 should be a serialization failure")
	}
	if !IsSerializationFailure(fmt.Errorf("tx: %w", &pq.Error{Code: "40P01"})) {
		t.Fatal("deadlock should be treated as a serialization failure")
	}
	if IsSerializationFailure(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique violation is not a serialization failure")
	}
	if IsSerializationFailure(nil) {
		t.Fatal("nil is not a serialization failure")
	}
}
