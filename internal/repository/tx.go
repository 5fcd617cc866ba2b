package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/ronaldofilardo/Qwork-sub006/internal/domain"
	"gorm.io/gorm"
)

type txKey struct{}

const setActorStmt = "SELECT set_config('qwork.actor_id', ?, true)"

// TxManager runs a function inside a database transaction that establishes
// the acting identity on the session. Repositories called with the returned
// context join the same transaction, so a failure anywhere rolls back every
// write made during the operation.
type TxManager interface {
	InTx(ctx context.Context, actor domain.Actor, fn func(ctx context.Context) error) error
}

type GormTxManager struct {
	db *gorm.DB
}

func NewGormTxManager(db *gorm.DB) *GormTxManager {
	return &GormTxManager{db: db}
}

func (m *GormTxManager) InTx(ctx context.Context, actor domain.Actor, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if actor.ID != "" {
			// set_config with is_local=true scopes the variable to this
			// transaction. SET LOCAL cannot take bind parameters over the
			// extended protocol, set_config can. The immutability trigger
			// reads it to name the offender in its violation message.
			if err := tx.Exec(setActorStmt, actor.ID).Error; err != nil {
				return err
			}
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// conn returns the transaction bound to ctx when present, the base handle
// otherwise. All repository methods go through it.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if ctx != nil {
		if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok && tx != nil {
			return tx.WithContext(ctx)
		}
	}
	return db.WithContext(ctx)
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
