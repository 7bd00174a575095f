package repository

import (
	"strconv"
	"strings"
)

// Dialect SQL 方言：postgres 使用 $n 占位符，sqlite 使用 ?
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DialectFor 根据数据库驱动名返回方言
func DialectFor(driver string) Dialect {
	switch driver {
	case "sqlite", "sqlite3":
		return DialectSQLite
	default:
		return DialectPostgres
	}
}

// Rebind 将 ? 占位符转换为当前方言的占位符
// 查询中不含字符串字面量里的 ?
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
