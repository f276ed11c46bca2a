package repositories

import (
	"context"

	"github.com/bionicotaku/lingo-services-media/internal/infrastructure/txmanager"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// dbtx 抽象连接池与事务的公共查询面，使同一份 SQL 可在两种上下文执行。
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// querier 根据是否处于事务内选择执行载体。
func querier(pool *pgxpool.Pool, sess txmanager.Session) dbtx {
	if sess != nil {
		return sess.Tx()
	}
	return pool
}
