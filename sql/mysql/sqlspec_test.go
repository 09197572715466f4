// Copyright 2021-present The SchemaKit Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"testing"

	"github.com/schemakit/schemakit/sql/internal/sqlx"
	"github.com/schemakit/schemakit/sql/schema"

	"github.com/stretchr/testify/require"
)

func TestMarshalSpec(t *testing.T) {
	s := schema.New("public").SetCharset("utf8mb4")
	users := schema.NewTable("users").AddColumns(
		schema.NewIntColumn("id", "bigint"),
		schema.NewStringColumn("name", "varchar", schema.StringSize(255)).
			SetDefault(&schema.Literal{V: "'unknown'"}),
	)
	users.SetPrimaryKey(schema.NewPrimaryKey(users.Columns[0]))
	users.AddIndexes(schema.NewUniqueIndex("name_idx").AddColumns(users.Columns[1]))
	s.AddTables(users)
	b, err := MarshalSpec(s)
	require.NoError(t, err)
	require.Equal(t, `schema "public" {
  charset = "utf8mb4"
}
table "users" {
  schema = schema.public
  column "id" {
    type = "bigint"
  }
  column "name" {
    type    = "varchar(255)"
    default = "'unknown'"
  }
  primary_key {
    columns = [table.users.column.id]
  }
  index "name_idx" {
    unique  = true
    columns = [table.users.column.name]
  }
}
`, string(b))
}

func TestUnmarshalSpec(t *testing.T) {
	f := `schema "public" {
  charset = "utf8mb4"
}
table "users" {
  schema = schema.public
  column "id" {
    type = "bigint"
  }
  column "active" {
    type    = "tinyint(1)"
    default = "1"
  }
  column "created_at" {
    type         = "timestamp"
    default_expr = "CURRENT_TIMESTAMP"
    on_update    = "current_timestamp()"
  }
  primary_key {
    columns = [table.users.column.id]
  }
}
table "pets" {
  schema = schema.public
  column "id" {
    type           = "bigint"
    auto_increment = true
  }
  column "owner_id" {
    type = "bigint"
    null = true
  }
  index "owner_idx" {
    columns = [table.pets.column.owner_id]
  }
  foreign_key "owner" {
    columns    = [table.pets.column.owner_id]
    references = [table.users.column.id]
    on_delete  = reference_option.set_null
  }
  check "positive_id" {
    expr = "(` + "`id`" + ` > 0)"
  }
  auto_increment = 1000
}
`
	var s schema.Schema
	require.NoError(t, UnmarshalSpec([]byte(f), &s))
	require.Equal(t, "public", s.Name)
	var cs schema.Charset
	require.True(t, sqlx.Has(s.Attrs, &cs))
	require.Equal(t, "utf8mb4", cs.V)

	users, ok := s.Table("users")
	require.True(t, ok)
	require.Equal(t, s.Tables[0], users)
	require.Equal(t, &schema.IntegerType{T: "bigint"}, users.Columns[0].Type.Type)
	require.NotNil(t, users.PrimaryKey)
	require.Equal(t, users.Columns[0], users.PrimaryKey.Parts[0].C)
	require.Equal(t, &schema.BoolType{T: "bool"}, users.Columns[1].Type.Type)
	require.Equal(t, &schema.Literal{V: "1"}, users.Columns[1].Default)
	created, ok := users.Column("created_at")
	require.True(t, ok)
	require.Equal(t, &schema.RawExpr{X: "CURRENT_TIMESTAMP"}, created.Default)
	var ou OnUpdate
	require.True(t, sqlx.Has(created.Attrs, &ou))
	require.Equal(t, "current_timestamp()", ou.A)

	pets, ok := s.Table("pets")
	require.True(t, ok)
	var ai AutoIncrement
	require.True(t, sqlx.Has(pets.Columns[0].Attrs, &ai))
	require.True(t, pets.Columns[1].Type.Null)
	require.Len(t, pets.Indexes, 1)
	require.Equal(t, "owner_idx", pets.Indexes[0].Name)
	require.Equal(t, pets.Columns[1], pets.Indexes[0].Parts[0].C)
	require.Len(t, pets.ForeignKeys, 1)
	fk := pets.ForeignKeys[0]
	require.Equal(t, "owner", fk.Symbol)
	require.Equal(t, pets, fk.Table)
	require.Equal(t, []*schema.Column{pets.Columns[1]}, fk.Columns)
	require.Equal(t, users, fk.RefTable)
	require.Equal(t, []*schema.Column{users.Columns[0]}, fk.RefColumns)
	require.Equal(t, schema.SetNull, fk.OnDelete)
	cks := checks(pets.Attrs)
	require.Len(t, cks, 1)
	require.Equal(t, "positive_id", cks[0].Name)
	require.Equal(t, "(`id` > 0)", cks[0].Expr)
	require.True(t, sqlx.Has(pets.Attrs, &ai))
	require.Equal(t, int64(1000), ai.V)
}

func TestUnmarshalSpec_Errors(t *testing.T) {
	var s schema.Schema
	// A schema block is required.
	err := UnmarshalSpec([]byte(`table "users" {
  column "id" {
    type = "bigint"
  }
}
`), &s)
	require.EqualError(t, err, "mysql: expected 1 schema block, got 0")

	// Literal and expression defaults are mutually exclusive.
	err = UnmarshalSpec([]byte(`schema "public" {
}
table "users" {
  column "id" {
    type         = "bigint"
    default      = "1"
    default_expr = "(rand())"
  }
}
`), &s)
	require.EqualError(t, err, `mysql: both default and default_expr were set for column "id"`)

	// References to undeclared columns are rejected on evaluation.
	err = UnmarshalSpec([]byte(`schema "public" {
}
table "users" {
  column "id" {
    type = "bigint"
  }
  primary_key {
    columns = [table.users.column.oid]
  }
}
`), &s)
	require.Error(t, err)
}

func TestSpecRoundTrip(t *testing.T) {
	s := schema.New("public").SetCharset("utf8mb4").SetCollation("utf8mb4_bin")
	users := schema.NewTable("users").AddColumns(
		schema.NewIntColumn("id", "bigint").AddAttrs(&AutoIncrement{}),
		schema.NewNullStringColumn("name", "varchar", schema.StringSize(255)),
	)
	users.SetPrimaryKey(schema.NewPrimaryKey(users.Columns[0]))
	posts := schema.NewTable("posts").AddColumns(
		schema.NewIntColumn("id", "bigint"),
		schema.NewNullIntColumn("author_id", "bigint"),
	)
	posts.AddIndexes(schema.NewIndex("author_idx").AddColumns(posts.Columns[1]))
	posts.AddForeignKeys(
		schema.NewForeignKey("author").
			AddColumns(posts.Columns[1]).
			SetRefTable(users).
			AddRefColumns(users.Columns[0]).
			SetOnDelete(schema.Cascade),
	)
	posts.AddChecks(schema.NewCheck().SetName("id_positive").SetExpr("(`id` > 0)"))
	s.AddTables(users, posts)

	b1, err := MarshalSpec(s)
	require.NoError(t, err)
	var got schema.Schema
	require.NoError(t, UnmarshalSpec(b1, &got))
	b2, err := MarshalSpec(&got)
	require.NoError(t, err)
	require.Equal(t, string(b1), string(b2))
}
