/*
Package database provides GORM-based connection pool management with health
checking, stats collection, and retrying transactions.

The proxy runtime opens two independent databases — config.db (engines,
proxy profiles, active handles) and security.db (API keys, security
policy, IP blocklist, audit log) — each behind its own PoolManager, so a
slow or locked security.db write never blocks config reads.

# Core types

  - PoolManager: holds a gorm.DB and its underlying sql.DB, exposing
    DB()/Ping()/Stats()/Close().
  - PoolConfig: idle/open connection limits, lifetime, health-check
    interval.
  - PoolStats: JSON-friendly pool statistics.
  - TransactionFunc: unit of work run inside a transaction.

# Capabilities

  - Pool tuning via MaxIdleConns/MaxOpenConns/ConnMaxLifetime.
  - Background PingContext health check, logged via zap.
  - WithTransaction for a single transaction, WithTransactionRetry for
    exponential backoff on deadlocks and serialization failures.
*/
package database
