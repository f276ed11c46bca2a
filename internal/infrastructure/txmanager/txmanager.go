// Package txmanager 提供基于 pgx 的事务管理抽象。
// Repository 方法接受可空的 Session 参数：nil 时直接使用连接池，
// 非 nil 时复用事务内连接，使多表写入可以组合进同一事务。
package txmanager

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session 暴露事务内的 pgx.Tx，供 Repository 绑定查询。
type Session interface {
	Tx() pgx.Tx
}

// Manager 在单个闭包内执行事务：提交、回滚与错误传播由 Manager 负责。
type Manager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, sess Session) error) error
}

type session struct {
	tx pgx.Tx
}

func (s *session) Tx() pgx.Tx { return s.tx }

type manager struct {
	pool *pgxpool.Pool
	log  *log.Helper
}

// NewManager 构造基于连接池的事务管理器。
func NewManager(pool *pgxpool.Pool, logger log.Logger) Manager {
	return &manager{
		pool: pool,
		log:  log.NewHelper(logger),
	}
}

// WithinTx 开启事务执行 fn：fn 返回 nil 时提交，否则回滚并返回原错误。
func (m *manager) WithinTx(ctx context.Context, fn func(ctx context.Context, sess Session) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		// 提交成功后 Rollback 返回 ErrTxClosed，忽略即可。
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			m.log.WithContext(ctx).Warnf("rollback failed: %v", rbErr)
		}
	}()

	if err := fn(ctx, &session{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
