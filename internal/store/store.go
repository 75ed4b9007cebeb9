package store

import (
	"fmt"

	"netwatch/internal/config"
	"netwatch/internal/model"
)

// NewStore creates the event store backend selected by the configuration.
func NewStore(cfg config.StoreConfig) (model.EventStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.SQLite.DSN)
	case "clickhouse":
		return NewClickHouse(cfg.ClickHouse)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// columnFor maps a query field to its column name. The switch doubles as an
// injection guard: only enumerated fields ever reach a SQL statement.
func columnFor(field model.Field) (string, error) {
	switch field {
	case model.FieldSrcAddr:
		return "src_addr", nil
	case model.FieldDstAddr:
		return "dst_addr", nil
	case model.FieldProtocol:
		return "protocol", nil
	default:
		return "", fmt.Errorf("%w: unknown field %q", model.ErrInvalidParameter, field)
	}
}

// storeErr wraps a backend failure into the retryable taxonomy error.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", model.ErrStoreUnavailable, op, err)
}
