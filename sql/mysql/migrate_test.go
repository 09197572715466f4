// Copyright 2021-present The SchemaKit Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"context"
	"strconv"
	"testing"

	"github.com/schemakit/schemakit/sql/internal/sqltest"
	"github.com/schemakit/schemakit/sql/migrate"
	"github.com/schemakit/schemakit/sql/schema"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

type mock struct {
	sqlmock.Sqlmock
}

func (m mock) version(version string) {
	m.systemVars(version, "utf8_general_ci", "utf8")
}

func (m mock) systemVars(version, collation, charset string) {
	m.ExpectQuery(sqltest.Escape(variablesQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"@@version", "@@collation_server", "@@character_set_server"}).
			AddRow(version, collation, charset))
}

func TestPlanChanges(t *testing.T) {
	tests := []struct {
		version string
		changes []schema.Change
		options []migrate.PlanOption
		plan    *migrate.Plan
		wantErr bool
	}{
		{
			version: "8.0.19",
			changes: []schema.Change{
				&schema.AddSchema{S: schema.New("test").SetCharset("utf8mb4")},
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "CREATE DATABASE `test` CHARSET utf8mb4",
						Reverse: "DROP DATABASE `test`",
					},
				},
			},
		},
		{
			// The default server charset is omitted.
			version: "8.0.19",
			changes: []schema.Change{
				&schema.AddSchema{S: schema.New("test").SetCharset("utf8"), Extra: []schema.Clause{&schema.IfNotExists{}}},
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "CREATE DATABASE IF NOT EXISTS `test`",
						Reverse: "DROP DATABASE `test`",
					},
				},
			},
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				&schema.DropSchema{S: schema.New("test"), Extra: []schema.Clause{&schema.IfExists{}}},
			},
			plan: &migrate.Plan{
				Changes: []*migrate.Change{
					{Cmd: "DROP DATABASE IF EXISTS `test`"},
				},
			},
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				&schema.ModifySchema{
					S: schema.New("test").SetCharset("latin1"),
					Changes: []schema.Change{
						&schema.AddAttr{A: &schema.Charset{V: "latin1"}},
					},
				},
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "ALTER DATABASE `test` CHARSET latin1",
						Reverse: "ALTER DATABASE `test` CHARSET utf8",
					},
				},
			},
		},
		{
			// Setting the default server charset is a no-op.
			version: "8.0.19",
			changes: []schema.Change{
				&schema.ModifySchema{
					S: schema.New("test").SetCharset("utf8"),
					Changes: []schema.Change{
						&schema.AddAttr{A: &schema.Charset{V: "utf8"}},
					},
				},
			},
			plan: &migrate.Plan{Reversible: true},
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				func() *schema.AddTable {
					t := schema.NewTable("pets").
						AddColumns(
							schema.NewIntColumn("a", "int").SetDefault(&schema.RawExpr{X: "(int(rand()))"}),
							schema.NewIntColumn("b", "bigint").SetDefault(&schema.Literal{V: "1"}),
							schema.NewNullIntColumn("c", "bigint"),
						)
					t.SetPrimaryKey(schema.NewPrimaryKey(t.Columns[0], t.Columns[1]))
					t.AddIndexes(schema.NewUniqueIndex("b_c_unique").AddColumns(t.Columns[1], t.Columns[2]).SetComment("comment"))
					return &schema.AddTable{T: t, Extra: []schema.Clause{&schema.IfNotExists{}}}
				}(),
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "CREATE TABLE IF NOT EXISTS `pets` (`a` int NOT NULL DEFAULT (int(rand())), `b` bigint NOT NULL DEFAULT 1, `c` bigint NULL, PRIMARY KEY (`a`, `b`), UNIQUE INDEX `b_c_unique` (`b`, `c`) COMMENT \"comment\")",
						Reverse: "DROP TABLE `pets`",
					},
				},
			},
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				func() *schema.AddTable {
					t := schema.NewTable("posts").
						SetCharset("utf8mb4").
						SetCollation("utf8mb4_bin").
						SetComment("posts comment").
						AddAttrs(&CreateOptions{V: `COMPRESSION="ZLIB"`}).
						AddColumns(
							schema.NewIntColumn("id", "bigint").AddAttrs(&AutoIncrement{V: 100}),
							schema.NewNullStringColumn("text", "text"),
						)
					t.SetPrimaryKey(schema.NewPrimaryKey(t.Columns[0]))
					return &schema.AddTable{T: t}
				}(),
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "CREATE TABLE `posts` (`id` bigint NOT NULL AUTO_INCREMENT, `text` text NULL, PRIMARY KEY (`id`)) CHARSET utf8mb4 COLLATE utf8mb4_bin COMMENT \"posts comment\" COMPRESSION=\"ZLIB\" AUTO_INCREMENT 100",
						Reverse: "DROP TABLE `posts`",
					},
				},
			},
		},
		{
			// Expression defaults are wrapped with parentheses, except for
			// literals, simple temporal functions, and defaults carrying an
			// ON UPDATE clause that MySQL rejects when parenthesized.
			version: "8.0.19",
			changes: []schema.Change{
				&schema.AddTable{
					T: schema.NewTable("logs").
						AddColumns(
							schema.NewTimeColumn("created_at", "timestamp").
								SetDefault(&schema.RawExpr{X: "current_timestamp()"}),
							schema.NewTimeColumn("updated_at", "timestamp").
								SetDefault(&schema.RawExpr{X: "current_timestamp() on update current_timestamp()"}),
							schema.NewNullStringColumn("uid", "varchar", schema.StringSize(36)).
								SetDefault(&schema.RawExpr{X: "uuid()"}),
						),
				},
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "CREATE TABLE `logs` (`created_at` timestamp NOT NULL DEFAULT current_timestamp(), `updated_at` timestamp NOT NULL DEFAULT current_timestamp() on update current_timestamp(), `uid` varchar(36) NULL DEFAULT (uuid()))",
						Reverse: "DROP TABLE `logs`",
					},
				},
			},
		},
		{
			// Versions without expression default support
			// write all defaults verbatim.
			version: "5.6.35",
			changes: []schema.Change{
				&schema.AddTable{
					T: schema.NewTable("logs").
						AddColumns(
							schema.NewTimeColumn("updated_at", "timestamp").
								SetDefault(&schema.RawExpr{X: "CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP"}),
							schema.NewNullStringColumn("uid", "varchar", schema.StringSize(36)).
								SetDefault(&schema.RawExpr{X: "uuid()"}),
						),
				},
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "CREATE TABLE `logs` (`updated_at` timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP, `uid` varchar(36) NULL DEFAULT uuid())",
						Reverse: "DROP TABLE `logs`",
					},
				},
			},
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				&schema.ModifyTable{
					T: schema.NewTable("logs").AddColumns(schema.NewIntColumn("id", "bigint")),
					Changes: []schema.Change{
						&schema.AddColumn{
							C: schema.NewTimeColumn("updated_at", "timestamp").
								SetDefault(&schema.RawExpr{X: "CURRENT_TIMESTAMP"}).
								AddAttrs(&OnUpdate{A: "CURRENT_TIMESTAMP"}),
						},
					},
				},
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "ALTER TABLE `logs` ADD COLUMN `updated_at` timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP",
						Reverse: "ALTER TABLE `logs` DROP COLUMN `updated_at`",
					},
				},
			},
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				func() *schema.ModifyTable {
					users := schema.NewTable("users").AddColumns(schema.NewIntColumn("id", "bigint"))
					return &schema.ModifyTable{
						T: users,
						Changes: []schema.Change{
							&schema.AddColumn{C: schema.NewStringColumn("name", "varchar", schema.StringSize(255))},
							&schema.AddIndex{
								I: schema.NewIndex("id_key").
									AddColumns(users.Columns[0]).
									AddAttrs(&IndexType{T: IndexTypeHash}).
									SetComment("comment"),
							},
							&schema.AddCheck{
								C: schema.NewCheck().
									SetName("id_nonzero").
									SetExpr("(id > 0)").
									AddAttrs(&Enforced{}),
							},
							&schema.ModifyAttr{
								From: &AutoIncrement{V: 1},
								To:   &AutoIncrement{V: 1000},
							},
						},
					}
				}(),
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "ALTER TABLE `users` ADD COLUMN `name` varchar(255) NOT NULL, ADD INDEX `id_key` USING HASH (`id`) COMMENT \"comment\", ADD CONSTRAINT `id_nonzero` CHECK (id > 0) ENFORCED, AUTO_INCREMENT 1000",
						Reverse: "ALTER TABLE `users` DROP COLUMN `name`, DROP INDEX `id_key`, DROP CONSTRAINT `id_nonzero`, AUTO_INCREMENT 1",
					},
				},
			},
		},
		{
			// Index modification is planned as a drop
			// and add in two separate statements.
			version: "8.0.19",
			changes: []schema.Change{
				func() *schema.ModifyTable {
					users := schema.NewTable("users").AddColumns(
						schema.NewIntColumn("id", "bigint"),
						schema.NewIntColumn("rank", "int"),
					)
					return &schema.ModifyTable{
						T: users,
						Changes: []schema.Change{
							&schema.ModifyIndex{
								From: schema.NewIndex("rank_idx").AddColumns(users.Columns[1]),
								To:   schema.NewUniqueIndex("rank_idx").AddColumns(users.Columns[1]),
							},
						},
					}
				}(),
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "ALTER TABLE `users` DROP INDEX `rank_idx`",
						Reverse: "ALTER TABLE `users` ADD INDEX `rank_idx` (`rank`)",
					},
					{
						Cmd:     "ALTER TABLE `users` ADD UNIQUE INDEX `rank_idx` (`rank`)",
						Reverse: "ALTER TABLE `users` DROP INDEX `rank_idx`",
					},
				},
			},
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				func() *schema.ModifyTable {
					users := schema.NewTable("users").AddColumns(
						schema.NewStringColumn("text", "text"),
					)
					return &schema.ModifyTable{
						T: users,
						Changes: []schema.Change{
							&schema.AddIndex{
								I: func() *schema.Index {
									idx := schema.NewIndex("text_prefix").AddParts(
										schema.NewColumnPart(users.Columns[0]).SetDesc(true).AddAttrs(&SubPart{Len: 100}),
									)
									return idx
								}(),
							},
						},
					}
				}(),
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "ALTER TABLE `users` ADD INDEX `text_prefix` (`text` (100) DESC)",
						Reverse: "ALTER TABLE `users` DROP INDEX `text_prefix`",
					},
				},
			},
		},
		{
			// Tables are planned after the tables they depend on.
			version: "8.0.19",
			changes: func() []schema.Change {
				users := schema.NewTable("users").AddColumns(
					schema.NewIntColumn("id", "bigint"),
					schema.NewNullIntColumn("spouse_id", "bigint"),
				)
				posts := schema.NewTable("posts").AddColumns(
					schema.NewIntColumn("id", "bigint"),
					schema.NewNullIntColumn("author_id", "bigint"),
				)
				posts.AddForeignKeys(
					schema.NewForeignKey("author").
						AddColumns(posts.Columns[1]).
						SetRefTable(users).
						AddRefColumns(users.Columns[0]),
				)
				return []schema.Change{
					&schema.AddTable{T: posts},
					&schema.ModifyTable{
						T: users,
						Changes: []schema.Change{
							&schema.AddForeignKey{
								F: schema.NewForeignKey("spouse").
									SetTable(users).
									AddColumns(users.Columns[1]).
									SetRefTable(users).
									AddRefColumns(users.Columns[0]).
									SetOnDelete(schema.SetNull),
							},
						},
					},
				}
			}(),
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "ALTER TABLE `users` ADD CONSTRAINT `spouse` FOREIGN KEY (`spouse_id`) REFERENCES `users` (`id`) ON DELETE SET NULL",
						Reverse: "ALTER TABLE `users` DROP FOREIGN KEY `spouse`",
					},
					{
						Cmd:     "CREATE TABLE `posts` (`id` bigint NOT NULL, `author_id` bigint NULL, CONSTRAINT `author` FOREIGN KEY (`author_id`) REFERENCES `users` (`id`))",
						Reverse: "DROP TABLE `posts`",
					},
				},
			},
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				&schema.ModifyTable{
					T: schema.NewTable("users").AddColumns(schema.NewIntColumn("id", "bigint")),
					Changes: []schema.Change{
						&schema.ModifyCheck{
							From: schema.NewCheck().SetName("check1").SetExpr("(id > 0)").AddAttrs(&Enforced{}),
							To:   schema.NewCheck().SetName("check1").SetExpr("(id > 0)"),
						},
						&schema.ModifyCheck{
							From: schema.NewCheck().SetName("check2").SetExpr("(id > 0)"),
							To:   schema.NewCheck().SetName("check2").SetExpr("(id > 0)").AddAttrs(&Enforced{}),
						},
						&schema.ModifyCheck{
							From: schema.NewCheck().SetName("check3").SetExpr("(id > 0)"),
							To:   schema.NewCheck().SetName("check3").SetExpr("(id >= 0)"),
						},
					},
				},
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "ALTER TABLE `users` ALTER CHECK `check1` ENFORCED, ALTER CHECK `check2` NOT ENFORCED, DROP CHECK `check3`, ADD CONSTRAINT `check3` CHECK (id >= 0)",
						Reverse: "ALTER TABLE `users` ALTER CHECK `check1` NOT ENFORCED, ALTER CHECK `check2` ENFORCED, DROP CHECK `check3`, ADD CONSTRAINT `check3` CHECK (id > 0)",
					},
				},
			},
		},
		{
			// MariaDB accepts CHECK constraints
			// but not the ENFORCED option.
			version: "10.5.8-MariaDB",
			changes: []schema.Change{
				&schema.ModifyTable{
					T: schema.NewTable("users").AddColumns(schema.NewIntColumn("id", "bigint")),
					Changes: []schema.Change{
						&schema.AddCheck{
							C: schema.NewCheck().
								SetName("id_nonzero").
								SetExpr("(id > 0)").
								AddAttrs(&Enforced{}),
						},
					},
				},
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "ALTER TABLE `users` ADD CONSTRAINT `id_nonzero` CHECK (id > 0)",
						Reverse: "ALTER TABLE `users` DROP CONSTRAINT `id_nonzero`",
					},
				},
			},
		},
		{
			// Changing constraint enforcement requires
			// support for the ENFORCED syntax.
			version: "10.5.8-MariaDB",
			changes: []schema.Change{
				&schema.ModifyTable{
					T: schema.NewTable("users").AddColumns(schema.NewIntColumn("id", "bigint")),
					Changes: []schema.Change{
						&schema.ModifyCheck{
							From: schema.NewCheck().SetName("check1").SetExpr("(id > 0)").AddAttrs(&Enforced{}),
							To:   schema.NewCheck().SetName("check1").SetExpr("(id > 0)"),
						},
					},
				},
			},
			wantErr: true,
		},
		{
			// Index comments were added in 5.5.3 and are
			// skipped on servers that predate them.
			version: "5.1.60",
			changes: []schema.Change{
				func() *schema.AddTable {
					t := schema.NewTable("pets").AddColumns(schema.NewIntColumn("a", "int"))
					t.AddIndexes(schema.NewIndex("a_idx").AddColumns(t.Columns[0]).SetComment("comment"))
					return &schema.AddTable{T: t}
				}(),
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "CREATE TABLE `pets` (`a` int NOT NULL, INDEX `a_idx` (`a`))",
						Reverse: "DROP TABLE `pets`",
					},
				},
			},
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				&schema.RenameTable{
					From: schema.NewTable("t1"),
					To:   schema.NewTable("t2"),
				},
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "RENAME TABLE `t1` TO `t2`",
						Reverse: "RENAME TABLE `t2` TO `t1`",
					},
				},
			},
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				&schema.ModifyTable{
					T: schema.NewTable("users").AddColumns(schema.NewIntColumn("a", "int")),
					Changes: []schema.Change{
						&schema.RenameColumn{
							From: schema.NewIntColumn("a", "int"),
							To:   schema.NewIntColumn("b", "int"),
						},
					},
				},
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "ALTER TABLE `users` RENAME COLUMN `a` TO `b`",
						Reverse: "ALTER TABLE `users` RENAME COLUMN `b` TO `a`",
					},
				},
			},
		},
		{
			// The RENAME COLUMN clause is not supported before 8.0.
			version: "5.7.26",
			changes: []schema.Change{
				&schema.ModifyTable{
					T: schema.NewTable("users").AddColumns(schema.NewIntColumn("a", "int")),
					Changes: []schema.Change{
						&schema.RenameColumn{
							From: schema.NewIntColumn("a", "int"),
							To:   schema.NewIntColumn("b", "int"),
						},
					},
				},
			},
			wantErr: true,
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				&schema.AddTable{
					T: schema.NewTable("pets").AddColumns(
						schema.NewIntColumn("a", "int").SetCharset("utf8"),
					),
				},
			},
			wantErr: true,
		},
		{
			version: "8.0.19",
			changes: []schema.Change{
				&schema.DropTable{
					T:     schema.New("public").AddTables(schema.NewTable("pets")).Tables[0],
					Extra: []schema.Clause{&schema.IfExists{}},
				},
			},
			plan: &migrate.Plan{
				Changes: []*migrate.Change{
					{Cmd: "DROP TABLE IF EXISTS `public`.`pets`"},
				},
			},
		},
		{
			// An empty qualifier drops the schema prefix.
			version: "8.0.19",
			options: []migrate.PlanOption{
				migrate.PlanWithSchemaQualifier(""),
			},
			changes: []schema.Change{
				&schema.DropTable{
					T: schema.New("public").AddTables(schema.NewTable("pets")).Tables[0],
				},
			},
			plan: &migrate.Plan{
				Changes: []*migrate.Change{
					{Cmd: "DROP TABLE `pets`"},
				},
			},
		},
		{
			version: "8.0.19",
			options: []migrate.PlanOption{
				migrate.PlanWithIndent("  "),
			},
			changes: []schema.Change{
				&schema.AddTable{
					T: schema.NewTable("pets").AddColumns(schema.NewIntColumn("a", "int")),
				},
			},
			plan: &migrate.Plan{
				Reversible: true,
				Changes: []*migrate.Change{
					{
						Cmd:     "CREATE TABLE `pets` (\n  `a` int NOT NULL\n)",
						Reverse: "DROP TABLE `pets`",
					},
				},
			},
		},
	}
	for n, tt := range tests {
		t.Run(strconv.Itoa(n), func(t *testing.T) {
			db, mk, err := sqlmock.New()
			require.NoError(t, err)
			mock{mk}.version(tt.version)
			drv, err := Open(db)
			require.NoError(t, err)
			plan, err := drv.PlanChanges(context.Background(), "wantPlan", tt.changes, tt.options...)
			if tt.wantErr {
				require.Error(t, err, "expect plan to fail")
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.plan.Reversible, plan.Reversible)
			require.Equal(t, tt.plan.Transactional, plan.Transactional)
			require.Equal(t, len(tt.plan.Changes), len(plan.Changes))
			for i, c := range plan.Changes {
				require.Equal(t, tt.plan.Changes[i].Cmd, c.Cmd)
				require.Equal(t, tt.plan.Changes[i].Reverse, c.Reverse)
			}
		})
	}
}

func TestDefaultPlan(t *testing.T) {
	plan, err := DefaultPlan.PlanChanges(context.Background(), "plan", []schema.Change{
		&schema.AddTable{T: schema.NewTable("users").AddColumns(schema.NewIntColumn("id", "bigint"))},
	})
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	require.Equal(t, "CREATE TABLE `users` (`id` bigint NOT NULL)", plan.Changes[0].Cmd)
}
