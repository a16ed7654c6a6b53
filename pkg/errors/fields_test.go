package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestLogFieldsCarriesPgxDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_order_number", TableName: "orders"}
	err := Wrap(CodeConflict, fmt.Errorf("insert order: %w", pgErr), "order number taken")

	fields := LogFields(err)
	if fields["error_code"] != string(CodeConflict) {
		t.Fatalf("unexpected code %v", fields["error_code"])
	}
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "ux_orders_order_number" {
		t.Fatalf("missing pg diagnostics: %v", fields)
	}
	if _, ok := fields["pg_detail"]; ok {
		t.Fatal("empty pg fields should be omitted")
	}
	if chain := fields["error_chain"].([]string); len(chain) != 3 {
		t.Fatalf("expected 3 links in chain, got %v", chain)
	}
}

func TestLogFieldsCarriesPqDiagnostics(t *testing.T) {
	err := fmt.Errorf("insert payment: %w", &pq.Error{Code: "23505", Constraint: "ux_payments_idempotency_key"})
	fields := LogFields(err)
	if fields["pg_constraint"] != "ux_payments_idempotency_key" {
		t.Fatalf("missing pq constraint: %v", fields)
	}
	if _, ok := fields["error_code"]; ok {
		t.Fatal("untyped error has no code")
	}
}

func TestLogFieldsNil(t *testing.T) {
	if len(LogFields(nil)) != 0 {
		t.Fatal("expected no fields for nil")
	}
	if LogFields(stdErrors.New("x"))["error"] != "x" {
		t.Fatal("expected error message")
	}
}
