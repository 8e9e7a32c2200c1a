/*
Package migration manages schema migrations for the proxy runtime's two
logical databases — config.db (engines, proxy profiles, active handles)
and security.db (API keys, security policy, IP blocklist, audit log,
DNS credential profiles) — across postgres, mysql, and sqlite, built on
golang-migrate.

# Overview

Each (Schema, DatabaseType) pair embeds its own SQL migration set via
embed.FS. Up/Down/Steps/Goto/Force/Version/Status/Info/Close cover the full
golang-migrate operation set.

# Core types

  - Migrator: the full migration operation interface.
  - DefaultMigrator: golang-migrate-backed implementation.
  - Config: schema, database type, connection URL, table name, lock timeout.
  - Schema: selects config.db or security.db.
  - DatabaseType: postgres/mysql/sqlite.
  - CLI: formats migrator output for a terminal.

# Capabilities

  - Factory functions: NewMigratorFromConfig / NewMigratorFromDatabaseConfig
    / NewMigratorFromURL build a migrator for one schema from different
    configuration sources.
  - ParseDatabaseType / BuildDatabaseURL translate driver names and
    connection parameters into dialect-specific URLs.
*/
package migration
