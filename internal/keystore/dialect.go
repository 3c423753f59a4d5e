package keystore

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// DefaultTable is the name of the dedup table.
const DefaultTable = "promo_codes"

// Dialect carries the driver-specific SQL for one database/sql driver.
type Dialect struct {
	// Driver is the name registered with database/sql.
	Driver string

	// MaxOpenConns limits the pool; 0 leaves it unlimited.
	MaxOpenConns int

	createTable string
	exists      string
	insert      string
	list        string

	// isUniqueViolation recognises the driver error raised by the primary key.
	isUniqueViolation func(error) bool
}

func (d Dialect) withTable(table string) Dialect {
	d.createTable = fmt.Sprintf(d.createTable, table)
	d.exists = fmt.Sprintf(d.exists, table)
	d.insert = fmt.Sprintf(d.insert, table)
	d.list = fmt.Sprintf(d.list, table)
	return d
}

var dialects = map[string]Dialect{
	"sqlite3":  SQLite,
	"postgres": Postgres,
	"mysql":    MySQL,
}

// SQLite serialises all access through one connection; concurrent writers
// would otherwise fail with SQLITE_BUSY.
var SQLite = Dialect{
	Driver:       "sqlite3",
	MaxOpenConns: 1,
	createTable: `CREATE TABLE IF NOT EXISTS %s (
    code TEXT PRIMARY KEY,
    platform TEXT NOT NULL
)`,
	exists: `SELECT 1 FROM %s WHERE code = ? LIMIT 1`,
	insert: `INSERT INTO %s (code, platform) VALUES (?, ?)`,
	list:   `SELECT code, platform FROM %s ORDER BY code`,
	isUniqueViolation: func(err error) bool {
		var se sqlite3.Error
		if !errors.As(err, &se) {
			return false
		}
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			se.ExtendedCode == sqlite3.ErrConstraintUnique
	},
}

var Postgres = Dialect{
	Driver: "postgres",
	createTable: `CREATE TABLE IF NOT EXISTS %s (
    code TEXT PRIMARY KEY,
    platform TEXT NOT NULL
)`,
	exists: `SELECT 1 FROM %s WHERE code = $1 LIMIT 1`,
	insert: `INSERT INTO %s (code, platform) VALUES ($1, $2)`,
	list:   `SELECT code, platform FROM %s ORDER BY code`,
	isUniqueViolation: func(err error) bool {
		var pe *pq.Error
		return errors.As(err, &pe) && pe.Code == "23505"
	},
}

var MySQL = Dialect{
	Driver: "mysql",
	createTable: `CREATE TABLE IF NOT EXISTS %s (
    code VARCHAR(255) NOT NULL PRIMARY KEY,
    platform VARCHAR(64) NOT NULL
)`,
	exists: `SELECT 1 FROM %s WHERE code = ? LIMIT 1`,
	insert: `INSERT INTO %s (code, platform) VALUES (?, ?)`,
	list:   `SELECT code, platform FROM %s ORDER BY code`,
	isUniqueViolation: func(err error) bool {
		var me *mysql.MySQLError
		return errors.As(err, &me) && me.Number == 1062
	},
}
