// Copyright 2021-present The SchemaKit Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"context"
	"fmt"
	"testing"

	"github.com/schemakit/schemakit/sql/internal/sqltest"
	"github.com/schemakit/schemakit/sql/schema"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestDriver_InspectSchema(t *testing.T) {
	tests := []struct {
		name    string
		version string
		schema  string
		before  func(mock)
		expect  func(*require.Assertions, *schema.Schema, error)
	}{
		{
			name:    "table columns",
			version: "8.0.19",
			before: func(m mock) {
				m.schema("public")
				m.tables("public", "users")
				m.ExpectQuery(sqltest.Escape(columnsExprQuery)).
					WithArgs("public", "users").
					WillReturnRows(sqltest.Rows(`
+------------+------------------------------+----------------+-------------+------------+-------------------+-----------------------------------------------+--------------------+--------------------+-----------------------+
| COLUMN_NAME| COLUMN_TYPE                  | COLUMN_COMMENT | IS_NULLABLE | COLUMN_KEY | COLUMN_DEFAULT    | EXTRA                                         | CHARACTER_SET_NAME | COLLATION_NAME     | GENERATION_EXPRESSION |
+------------+------------------------------+----------------+-------------+------------+-------------------+-----------------------------------------------+--------------------+--------------------+-----------------------+
| id         | bigint                       |                | NO          | PRI        | NULL              | auto_increment                                | NULL               | NULL               | NULL                  |
| active     | tinyint(1)                   |                | NO          |            | 1                 |                                               | NULL               | NULL               | NULL                  |
| score      | bigint(20)                   |                | NO          |            | NULL              |                                               | NULL               | NULL               | NULL                  |
| rank       | bigint(20) unsigned zerofill |                | NO          |            | NULL              |                                               | NULL               | NULL               | NULL                  |
| name       | varchar(255)                 | name comment   | YES         |            | unknown           |                                               | utf8mb4            | utf8mb4_0900_ai_ci | NULL                  |
| spouse_id  | bigint                       |                | YES         |            | NULL              |                                               | NULL               | NULL               | NULL                  |
| created_at | timestamp                    |                | NO          |            | CURRENT_TIMESTAMP | DEFAULT_GENERATED on update CURRENT_TIMESTAMP | NULL               | NULL               | NULL                  |
| display    | varchar(255)                 |                | YES         |            | NULL              | VIRTUAL GENERATED                             | utf8mb4            | utf8mb4_0900_ai_ci | concat(_utf8mb4\' \',` + "`name`" + `) |
+------------+------------------------------+----------------+-------------+------------+-------------------+-----------------------------------------------+--------------------+--------------------+-----------------------+
`))
				m.ExpectQuery(sqltest.Escape(indexesExprQuery)).
					WithArgs("public", "users").
					WillReturnRows(sqltest.Rows(`
+------------+-------------+------------+--------------+------------+-----------+---------------+----------+---------------+
| INDEX_NAME | COLUMN_NAME | NON_UNIQUE | SEQ_IN_INDEX | INDEX_TYPE | COLLATION | INDEX_COMMENT | SUB_PART | EXPRESSION    |
+------------+-------------+------------+--------------+------------+-----------+---------------+----------+---------------+
| PRIMARY    | id          | 0          | 1            | BTREE      | A         |               | NULL     | NULL          |
| name_idx   | name        | 1          | 1            | BTREE      | D         |               | 100      | NULL          |
| lower_name | NULL        | 1          | 1            | BTREE      | A         | comment       | NULL     | lower(` + "`name`" + `) |
+------------+-------------+------------+--------------+------------+-----------+---------------+----------+---------------+
`))
				m.ExpectQuery(sqltest.Escape(fksQuery)).
					WithArgs("public", "users").
					WillReturnRows(sqltest.Rows(`
+-----------------+------------+-------------+--------------+-----------------------+------------------------+-------------------------+-------------+-------------+
| CONSTRAINT_NAME | TABLE_NAME | COLUMN_NAME | TABLE_SCHEMA | REFERENCED_TABLE_NAME | REFERENCED_COLUMN_NAME | REFERENCED_TABLE_SCHEMA | UPDATE_RULE | DELETE_RULE |
+-----------------+------------+-------------+--------------+-----------------------+------------------------+-------------------------+-------------+-------------+
| spouse          | users      | spouse_id   | public       | users                 | id                     | public                  | NO ACTION   | SET NULL    |
+-----------------+------------+-------------+--------------+-----------------------+------------------------+-------------------------+-------------+-------------+
`))
				m.ExpectQuery(sqltest.Escape(myChecksQuery)).
					WithArgs("public", "users").
					WillReturnRows(sqltest.Rows(`
+-----------------+----------+------------------+
| CONSTRAINT_NAME | ENFORCED | CHECK_CLAUSE     |
+-----------------+----------+------------------+
| users_chk1      | YES      | (` + "`score` > 0" + `) |
| users_chk2      | NO       | (` + "`rank` > 0" + `)  |
+-----------------+----------+------------------+
`))
			},
			expect: func(require *require.Assertions, s *schema.Schema, err error) {
				require.NoError(err)
				require.Equal("public", s.Name)
				users, ok := s.Table("users")
				require.True(ok)
				columns := users.Columns
				require.Len(columns, 8)

				id := columns[0]
				require.Equal("id", id.Name)
				require.Equal(&schema.IntegerType{T: "bigint"}, id.Type.Type)
				require.Equal([]schema.Attr{&AutoIncrement{}}, id.Attrs)
				require.NotNil(users.PrimaryKey)
				require.Len(users.PrimaryKey.Parts, 1)
				require.Equal(id, users.PrimaryKey.Parts[0].C)

				active := columns[1]
				require.Equal(&schema.BoolType{T: "bool"}, active.Type.Type)
				require.Equal(&schema.Literal{V: "1"}, active.Default)

				// The display width is dropped unless
				// the zerofill attribute is defined.
				require.Equal(&schema.IntegerType{T: "bigint"}, columns[2].Type.Type)
				require.Equal(&schema.IntegerType{
					T:        "bigint",
					Unsigned: true,
					Attrs: []schema.Attr{
						&DisplayWidth{N: 20},
						&ZeroFill{A: "zerofill"},
					},
				}, columns[3].Type.Type)

				name := columns[4]
				require.Equal(&schema.StringType{T: "varchar", Size: 255}, name.Type.Type)
				require.Equal(&schema.Literal{V: "unknown"}, name.Default)
				require.Equal([]schema.Attr{
					&schema.Charset{V: "utf8mb4"},
					&schema.Collation{V: "utf8mb4_0900_ai_ci"},
					&schema.Comment{Text: "name comment"},
				}, name.Attrs)

				createdAt := columns[6]
				require.Equal(&schema.RawExpr{X: "CURRENT_TIMESTAMP"}, createdAt.Default)
				require.Equal([]schema.Attr{&OnUpdate{A: "current_timestamp"}}, createdAt.Attrs)

				display := columns[7]
				require.Equal([]schema.Attr{
					&schema.GeneratedExpr{Expr: "concat(_utf8mb4' ',`name`)", Type: "VIRTUAL"},
					&schema.Charset{V: "utf8mb4"},
					&schema.Collation{V: "utf8mb4_0900_ai_ci"},
				}, display.Attrs)

				require.Len(users.Indexes, 2)
				nameIdx := users.Indexes[0]
				require.Equal("name_idx", nameIdx.Name)
				require.False(nameIdx.Unique)
				require.Len(nameIdx.Parts, 1)
				require.Equal(name, nameIdx.Parts[0].C)
				require.True(nameIdx.Parts[0].Desc)
				require.Equal([]schema.Attr{&SubPart{Len: 100}}, nameIdx.Parts[0].Attrs)
				lowerName := users.Indexes[1]
				require.Equal(&schema.RawExpr{X: "lower(`name`)"}, lowerName.Parts[0].X)
				require.Equal([]schema.Attr{
					&IndexType{T: IndexTypeBTree},
					&schema.Comment{Text: "comment"},
				}, lowerName.Attrs)

				require.Len(users.ForeignKeys, 1)
				fk := users.ForeignKeys[0]
				require.Equal("spouse", fk.Symbol)
				require.Equal(users, fk.RefTable)
				require.Equal([]*schema.Column{columns[5]}, fk.Columns)
				require.Equal([]*schema.Column{id}, fk.RefColumns)
				require.Equal(schema.SetNull, fk.OnDelete)
				require.Equal(schema.NoAction, fk.OnUpdate)

				cks := checks(users.Attrs)
				require.Len(cks, 2)
				require.Equal(&schema.Check{Name: "users_chk1", Expr: "(`score` > 0)"}, cks[0])
				require.Equal(&schema.Check{Name: "users_chk2", Expr: "(`rank` > 0)", Attrs: []schema.Attr{&Enforced{}}}, cks[1])
			},
		},
		{
			name:    "maria json column",
			version: "10.5.8-MariaDB",
			before: func(m mock) {
				m.schema("public")
				m.tables("public", "t1")
				m.ExpectQuery(sqltest.Escape(columnsExprQuery)).
					WithArgs("public", "t1").
					WillReturnRows(sqltest.Rows(`
+------------+-------------+----------------+-------------+------------+----------------+-------+--------------------+--------------------+-----------------------+
| COLUMN_NAME| COLUMN_TYPE | COLUMN_COMMENT | IS_NULLABLE | COLUMN_KEY | COLUMN_DEFAULT | EXTRA | CHARACTER_SET_NAME | COLLATION_NAME     | GENERATION_EXPRESSION |
+------------+-------------+----------------+-------------+------------+----------------+-------+--------------------+--------------------+-----------------------+
| c1         | longtext    |                | YES         |            | NULL           |       | utf8mb4            | utf8mb4_bin        | NULL                  |
| c2         | datetime(6) |                | YES         |            | NULL           |       | NULL               | NULL               | NULL                  |
+------------+-------------+----------------+-------------+------------+----------------+-------+--------------------+--------------------+-----------------------+
`))
				m.ExpectQuery(sqltest.Escape(indexesQuery)).
					WithArgs("public", "t1").
					WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME", "NON_UNIQUE", "SEQ_IN_INDEX", "INDEX_TYPE", "COLLATION", "INDEX_COMMENT", "SUB_PART"}))
				m.ExpectQuery(sqltest.Escape(fksQuery)).
					WithArgs("public", "t1").
					WillReturnRows(sqlmock.NewRows([]string{"CONSTRAINT_NAME", "TABLE_NAME", "COLUMN_NAME", "TABLE_SCHEMA", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "REFERENCED_TABLE_SCHEMA", "UPDATE_RULE", "DELETE_RULE"}))
				m.ExpectQuery(sqltest.Escape(marChecksQuery)).
					WithArgs("public", "t1").
					WillReturnRows(sqltest.Rows(`
+-----------------+----------+------------------+
| CONSTRAINT_NAME | ENFORCED | CHECK_CLAUSE     |
+-----------------+----------+------------------+
| c1              | YES      | json_valid(` + "`c1`" + `) |
+-----------------+----------+------------------+
`))
			},
			expect: func(require *require.Assertions, s *schema.Schema, err error) {
				require.NoError(err)
				t1, ok := s.Table("t1")
				require.True(ok)
				// A LONGTEXT column with a json_valid CHECK
				// constraint describes a JSON column.
				c1 := t1.Columns[0]
				require.Equal("json", c1.Type.Raw)
				require.Equal(&schema.JSONType{T: "json"}, c1.Type.Type)
				require.Empty(checks(t1.Attrs))
				c2 := t1.Columns[1]
				p := 6
				require.Equal(&schema.TimeType{T: "datetime", Precision: &p}, c2.Type.Type)
			},
		},
		{
			name:    "schema does not exist",
			version: "8.0.19",
			schema:  "missing",
			before: func(m mock) {
				m.ExpectQuery(sqltest.Escape(fmt.Sprintf(schemasQueryArgs, "IN (?)"))).
					WithArgs("missing").
					WillReturnRows(sqlmock.NewRows([]string{"SCHEMA_NAME", "DEFAULT_CHARACTER_SET_NAME", "DEFAULT_COLLATION_NAME"}))
			},
			expect: func(require *require.Assertions, s *schema.Schema, err error) {
				require.Nil(s)
				require.Error(err)
				require.True(schema.IsNotExistError(err), "expect a not exist error: %v", err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mk, err := sqlmock.New()
			require.NoError(t, err)
			m := mock{mk}
			m.version(tt.version)
			tt.before(m)
			drv, err := Open(db)
			require.NoError(t, err)
			if tt.schema == "" {
				tt.schema = "public"
			}
			s, err := drv.InspectSchema(context.Background(), tt.schema, nil)
			tt.expect(require.New(t), s, err)
		})
	}
}

func (m mock) schema(name string) {
	m.ExpectQuery(sqltest.Escape(fmt.Sprintf(schemasQueryArgs, "IN (?)"))).
		WithArgs(name).
		WillReturnRows(sqltest.Rows(`
+-------------+----------------------------+------------------------+
| SCHEMA_NAME | DEFAULT_CHARACTER_SET_NAME | DEFAULT_COLLATION_NAME |
+-------------+----------------------------+------------------------+
| ` + name + ` | utf8mb4                   | utf8mb4_0900_ai_ci     |
+-------------+----------------------------+------------------------+
`))
}

func (m mock) tables(schema string, names ...string) {
	rows := sqlmock.NewRows([]string{"TABLE_NAME", "CHARACTER_SET_NAME", "TABLE_COLLATION", "AUTO_INCREMENT", "TABLE_COMMENT", "CREATE_OPTIONS"})
	for _, n := range names {
		rows.AddRow(n, "utf8mb4", "utf8mb4_0900_ai_ci", nil, "", "")
	}
	m.ExpectQuery(sqltest.Escape(fmt.Sprintf(tablesQuery, "?"))).
		WithArgs(schema).
		WillReturnRows(rows)
}
