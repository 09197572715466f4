// Copyright 2021-present The SchemaKit Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"context"
	"fmt"

	"github.com/schemakit/schemakit/sql/internal/sqlx"
	"github.com/schemakit/schemakit/sql/migrate"
	"github.com/schemakit/schemakit/sql/mysql/internal/mysqlversion"
	"github.com/schemakit/schemakit/sql/schema"
)

type (
	// Driver represents a MySQL driver for introspecting database schemas,
	// generating diff between schema elements and apply migrations changes.
	Driver struct {
		conn
		schema.Differ
		schema.Inspector
		migrate.PlanApplier
	}

	// database connection and its information.
	conn struct {
		schema.ExecQuerier
		// The system variables below are set on `Open`.
		mysqlversion.V
		collate string
		charset string
	}
)

// DriverName holds the name used for registration.
const DriverName = "mysql"

// Open opens a new MySQL driver.
func Open(db schema.ExecQuerier) (migrate.Driver, error) {
	c := conn{ExecQuerier: db}
	rows, err := db.QueryContext(context.Background(), variablesQuery)
	if err != nil {
		return nil, fmt.Errorf("mysql: query system variables: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("mysql: query system variables: %w", err)
		}
		return nil, fmt.Errorf("mysql: no rows returned for system variables")
	}
	var version string
	if err := rows.Scan(&version, &c.collate, &c.charset); err != nil {
		return nil, fmt.Errorf("mysql: scan system variables: %w", err)
	}
	c.V = mysqlversion.V(version)
	return &Driver{
		conn:        c,
		Differ:      &sqlx.Diff{DiffDriver: &diff{conn: c}},
		Inspector:   &inspect{c},
		PlanApplier: &planApply{c},
	}, nil
}

// variablesQuery returns the server variables the driver relies on.
const variablesQuery = "SELECT @@version, @@collation_server, @@character_set_server"

type (
	// AutoIncrement attribute for columns with "AUTO_INCREMENT" as a default.
	// V represent an optional start value for the counter.
	AutoIncrement struct {
		schema.Attr
		V int64
	}

	// OnUpdate attribute for columns with "ON UPDATE CURRENT_TIMESTAMP" as a default.
	OnUpdate struct {
		schema.Attr
		A string
	}

	// SubPart attribute defines an option index prefix length for columns.
	SubPart struct {
		schema.Attr
		Len int
	}

	// Enforced attribute defines the ENFORCED flag for CHECK constraint.
	Enforced struct {
		schema.Attr
	}

	// The DisplayWidth represents a display width of an integer type.
	DisplayWidth struct {
		schema.Attr
		N int
	}

	// The ZeroFill represents the ZEROFILL attribute which is
	// deprecated for MySQL version >= 8.0.17.
	ZeroFill struct {
		schema.Attr
		A string
	}

	// CreateOptions attribute for describing extra options used with CREATE TABLE.
	CreateOptions struct {
		schema.Attr
		V string
	}

	// IndexType represents an index type.
	IndexType struct {
		schema.Attr
		T string // BTREE, HASH, FULLTEXT, SPATIAL
	}

	// BitType represents a bit type.
	BitType struct {
		schema.Type
		T    string
		Size int
	}

	// SetType represents a set type.
	SetType struct {
		schema.Type
		Values []string
	}
)

// IndexType (MYSQL) constants.
const (
	IndexTypeBTree    = "BTREE"
	IndexTypeHash     = "HASH"
	IndexTypeFullText = "FULLTEXT"
	IndexTypeSpatial  = "SPATIAL"
)

// MySQL standard column types as defined in its codebase. Name and order
// is organized differently than MySQL.
//
// https://github.com/mysql/mysql-server/blob/8.0/include/field_types.h
// https://github.com/mysql/mysql-server/blob/8.0/sql/dd/types/column.h
// https://github.com/mysql/mysql-server/blob/8.0/sql/sql_show.cc
// https://github.com/mysql/mysql-server/blob/8.0/sql/gis/geometries.cc
const (
	tBit       = "bit"       // MYSQL_TYPE_BIT
	tInt       = "int"       // MYSQL_TYPE_LONG
	tTinyInt   = "tinyint"   // MYSQL_TYPE_TINY
	tSmallInt  = "smallint"  // MYSQL_TYPE_SHORT
	tMediumInt = "mediumint" // MYSQL_TYPE_INT24
	tBigInt    = "bigint"    // MYSQL_TYPE_LONGLONG

	tDecimal = "decimal" // MYSQL_TYPE_DECIMAL
	tNumeric = "numeric" // MYSQL_TYPE_DECIMAL (numeric_type rule in sql_yacc.yy)
	tFloat   = "float"   // MYSQL_TYPE_FLOAT
	tDouble  = "double"  // MYSQL_TYPE_DOUBLE
	tReal    = "real"    // MYSQL_TYPE_FLOAT or MYSQL_TYPE_DOUBLE (real_type in sql_yacc.yy)

	tTimestamp = "timestamp" // MYSQL_TYPE_TIMESTAMP
	tDate      = "date"      // MYSQL_TYPE_DATE
	tTime      = "time"      // MYSQL_TYPE_TIME
	tDateTime  = "datetime"  // MYSQL_TYPE_DATETIME
	tYear      = "year"      // MYSQL_TYPE_YEAR

	tVarchar    = "varchar"    // MYSQL_TYPE_VAR_STRING, MYSQL_TYPE_VARCHAR
	tChar       = "char"       // MYSQL_TYPE_STRING
	tVarBinary  = "varbinary"  // MYSQL_TYPE_VAR_STRING + NULL CHARACTER_SET.
	tBinary     = "binary"     // MYSQL_TYPE_STRING + NULL CHARACTER_SET.
	tBlob       = "blob"       // MYSQL_TYPE_BLOB
	tTinyBlob   = "tinyblob"   // MYSQL_TYPE_TINYBLOB
	tMediumBlob = "mediumblob" // MYSQL_TYPE_MEDIUM_BLOB
	tLongBlob   = "longblob"   // MYSQL_TYPE_LONG_BLOB
	tText       = "text"       // MYSQL_TYPE_BLOB + CHARACTER_SET utf8mb4
	tTinyText   = "tinytext"   // MYSQL_TYPE_TINYBLOB + CHARACTER_SET utf8mb4
	tMediumText = "mediumtext" // MYSQL_TYPE_MEDIUM_BLOB + CHARACTER_SET utf8mb4
	tLongText   = "longtext"   // MYSQL_TYPE_LONG_BLOB with + CHARACTER_SET utf8mb4

	tEnum = "enum" // MYSQL_TYPE_ENUM
	tSet  = "set"  // MYSQL_TYPE_SET
	tJSON = "json" // MYSQL_TYPE_JSON

	tGeometry           = "geometry"           // MYSQL_TYPE_GEOMETRY
	tPoint              = "point"              // Geometry_type::kPoint
	tMultiPoint         = "multipoint"         // Geometry_type::kMultipoint
	tLineString         = "linestring"         // Geometry_type::kLinestring
	tMultiLineString    = "multilinestring"    // Geometry_type::kMultilinestring
	tPolygon            = "polygon"            // Geometry_type::kPolygon
	tMultiPolygon       = "multipolygon"       // Geometry_type::kMultipolygon
	tGeoCollection      = "geomcollection"     // Geometry_type::kGeometrycollection
	tGeometryCollection = "geometrycollection" // Geometry_type::kGeometrycollection
)
