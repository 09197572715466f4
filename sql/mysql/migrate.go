// Copyright 2021-present The SchemaKit Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/schemakit/schemakit/sql/internal/sqlx"
	"github.com/schemakit/schemakit/sql/migrate"
	"github.com/schemakit/schemakit/sql/schema"
)

// DefaultPlan provides basic planning capabilities for MySQL dialects.
// Note, it is recommended to call Open, create a new Driver and use its
// migrate.PlanApplier when a database connection is available.
var DefaultPlan migrate.PlanApplier = &planApply{conn: conn{ExecQuerier: sqlx.NoRows}}

// A planApply provides migration capabilities for schema elements.
type planApply struct{ conn }

// PlanChanges returns a migration plan for the given schema changes.
func (p *planApply) PlanChanges(ctx context.Context, name string, changes []schema.Change, opts ...migrate.PlanOption) (*migrate.Plan, error) {
	s := &state{
		conn: p.conn,
		// A plan is marked as transactional only if all
		// statements can be applied in a single transaction.
		Plan: migrate.Plan{Name: name},
	}
	for _, o := range opts {
		o(&s.PlanOptions)
	}
	if err := s.plan(ctx, changes); err != nil {
		return nil, err
	}
	if err := sqlx.SetReversible(&s.Plan); err != nil {
		return nil, err
	}
	return &s.Plan, nil
}

// ApplyChanges applies the changes on the database. An error is returned
// if the driver is unable to produce a plan to it, or one of the statements
// is failed or unsupported.
func (p *planApply) ApplyChanges(ctx context.Context, changes []schema.Change, opts ...migrate.PlanOption) error {
	return sqlx.ApplyChanges(ctx, changes, p, opts...)
}

// state represents the state of a planning. It is not part of
// planApply so that multiple planning/applying can be called
// in parallel.
type state struct {
	conn
	migrate.Plan
	migrate.PlanOptions
}

// Build instantiates a new builder and writes the given phrase to it.
func (s *state) Build(phrases ...string) *sqlx.Builder {
	b := &sqlx.Builder{QuoteChar: '`', Schema: s.SchemaQualifier, Indent: s.Indent}
	return b.P(phrases...)
}

// plan builds the migration plan for applying the
// given changes on the attached connection.
func (s *state) plan(ctx context.Context, changes []schema.Change) error {
	if s.SchemaQualifier != nil {
		if err := sqlx.CheckChangesScope(s.PlanOptions, changes); err != nil {
			return err
		}
	}
	planned, err := s.topLevel(changes)
	if err != nil {
		return err
	}
	planned, err = sqlx.DetachCycles(planned)
	if err != nil {
		return err
	}
	for _, c := range planned {
		switch c := c.(type) {
		case *schema.AddTable:
			err = s.addTable(ctx, c)
		case *schema.DropTable:
			err = s.dropTable(ctx, c)
		case *schema.ModifyTable:
			err = s.modifyTable(ctx, c)
		case *schema.RenameTable:
			s.renameTable(c)
		default:
			err = fmt.Errorf("unsupported change %T", c)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// topLevel appends the top-level changes (schemas) to the plan
// and returns the table-level changes to be planned after them.
func (s *state) topLevel(changes []schema.Change) ([]schema.Change, error) {
	planned := make([]schema.Change, 0, len(changes))
	for _, c := range changes {
		switch c := c.(type) {
		case *schema.AddSchema:
			b := s.Build("CREATE DATABASE")
			if sqlx.Has(c.Extra, &schema.IfNotExists{}) {
				b.P("IF NOT EXISTS")
			}
			b.Ident(c.S.Name)
			// The default server charset and collation can be omitted.
			if a := (schema.Charset{}); sqlx.Has(c.S.Attrs, &a) && a.V != s.charset {
				b.P("CHARSET", a.V)
			}
			if a := (schema.Collation{}); sqlx.Has(c.S.Attrs, &a) && a.V != s.collate {
				b.P("COLLATE", a.V)
			}
			s.append(&migrate.Change{
				Cmd:     b.String(),
				Source:  c,
				Reverse: s.Build("DROP DATABASE").Ident(c.S.Name).String(),
				Comment: fmt.Sprintf("add new schema named %q", c.S.Name),
			})
		case *schema.DropSchema:
			b := s.Build("DROP DATABASE")
			if sqlx.Has(c.Extra, &schema.IfExists{}) {
				b.P("IF EXISTS")
			}
			b.Ident(c.S.Name)
			s.append(&migrate.Change{
				Cmd:     b.String(),
				Source:  c,
				Comment: fmt.Sprintf("drop schema named %q", c.S.Name),
			})
		case *schema.ModifySchema:
			if err := s.modifySchema(c); err != nil {
				return nil, err
			}
		default:
			planned = append(planned, c)
		}
	}
	return planned, nil
}

// modifySchema builds and appends the migrate.Changes for bringing
// the schema into its modified state.
func (s *state) modifySchema(modify *schema.ModifySchema) error {
	var (
		clauses int
		b       = s.Build("ALTER DATABASE").Ident(modify.S.Name)
		r       = s.Build("ALTER DATABASE").Ident(modify.S.Name)
	)
	for _, change := range modify.Changes {
		switch change := change.(type) {
		case *schema.AddAttr:
			switch a := change.A.(type) {
			case *schema.Charset:
				// Adding the default charset is a no-op.
				if a.V == s.charset {
					continue
				}
				b.P("CHARSET", a.V)
				r.P("CHARSET", s.charset)
			case *schema.Collation:
				if a.V == s.collate {
					continue
				}
				b.P("COLLATE", a.V)
				r.P("COLLATE", s.collate)
			default:
				return fmt.Errorf("unsupported add schema attribute: %T", a)
			}
			clauses++
		case *schema.ModifyAttr:
			switch to := change.To.(type) {
			case *schema.Charset:
				from, ok := change.From.(*schema.Charset)
				if !ok {
					return fmt.Errorf("mismatched attribute types: %T != %T", change.From, change.To)
				}
				b.P("CHARSET", to.V)
				r.P("CHARSET", from.V)
			case *schema.Collation:
				from, ok := change.From.(*schema.Collation)
				if !ok {
					return fmt.Errorf("mismatched attribute types: %T != %T", change.From, change.To)
				}
				b.P("COLLATE", to.V)
				r.P("COLLATE", from.V)
			default:
				return fmt.Errorf("unsupported modify schema attribute: %T", to)
			}
			clauses++
		default:
			return fmt.Errorf("unsupported schema change: %T", change)
		}
	}
	if clauses == 0 {
		return nil
	}
	s.append(&migrate.Change{
		Cmd:     b.String(),
		Source:  modify,
		Reverse: r.String(),
		Comment: fmt.Sprintf("modify %q schema", modify.S.Name),
	})
	return nil
}

func (s *state) addTable(_ context.Context, add *schema.AddTable) error {
	var (
		errs []string
		b    = s.Build("CREATE TABLE")
	)
	if sqlx.Has(add.Extra, &schema.IfNotExists{}) {
		b.P("IF NOT EXISTS")
	}
	b.Table(add.T)
	if len(add.T.Columns) == 0 {
		return fmt.Errorf("table %q has no columns", add.T.Name)
	}
	b.WrapIndent(func(b *sqlx.Builder) {
		b.MapIndent(add.T.Columns, func(i int, b *sqlx.Builder) {
			if err := s.column(b, add.T.Columns[i]); err != nil {
				errs = append(errs, err.Error())
			}
		})
		if pk := add.T.PrimaryKey; pk != nil {
			b.Comma().NL().P("PRIMARY KEY")
			s.indexParts(b, pk.Parts)
		}
		for _, idx := range add.T.Indexes {
			b.Comma().NL()
			s.index(b, idx)
		}
		if len(add.T.ForeignKeys) > 0 {
			b.Comma().NL()
			s.fks(b, add.T.ForeignKeys...)
		}
		for _, attr := range add.T.Attrs {
			if c, ok := attr.(*schema.Check); ok {
				b.Comma().NL()
				s.check(b, c)
			}
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("create table %q: %s", add.T.Name, strings.Join(errs, ", "))
	}
	s.tableAttrs(b, add.T)
	s.append(&migrate.Change{
		Cmd:     b.String(),
		Source:  add,
		Comment: fmt.Sprintf("create %q table", add.T.Name),
		Reverse: s.Build("DROP TABLE").Table(add.T).String(),
	})
	return nil
}

func (s *state) dropTable(_ context.Context, drop *schema.DropTable) error {
	b := s.Build("DROP TABLE")
	if sqlx.Has(drop.Extra, &schema.IfExists{}) {
		b.P("IF EXISTS")
	}
	b.Table(drop.T)
	s.append(&migrate.Change{
		Cmd:     b.String(),
		Source:  drop,
		Comment: fmt.Sprintf("drop %q table", drop.T.Name),
	})
	return nil
}

func (s *state) modifyTable(_ context.Context, modify *schema.ModifyTable) error {
	var changes [2][]schema.Change
	for _, change := range modify.Changes {
		switch change := change.(type) {
		case *schema.DropAttr:
			return fmt.Errorf("unsupported change type: %T", change.A)
		case *schema.ModifyIndex:
			// Index modification requires rebuilding the index. The
			// index is dropped in a separate statement beforehand.
			changes[0] = append(changes[0], &schema.DropIndex{I: change.From})
			changes[1] = append(changes[1], &schema.AddIndex{I: change.To})
		default:
			changes[1] = append(changes[1], change)
		}
	}
	for i := range changes {
		if len(changes[i]) > 0 {
			if err := s.alterTable(modify.T, changes[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// alterTable builds and appends the migrate.Change
// for bringing the table into its modified state.
func (s *state) alterTable(t *schema.Table, changes []schema.Change) error {
	var (
		errs       []string
		b          = s.Build("ALTER TABLE").Table(t)
		r          = s.Build("ALTER TABLE").Table(t)
		reversible = true
	)
	for i, change := range changes {
		if i > 0 {
			b.Comma()
			r.Comma()
		}
		switch change := change.(type) {
		case *schema.AddColumn:
			b.P("ADD COLUMN")
			if err := s.column(b, change.C); err != nil {
				errs = append(errs, err.Error())
			}
			r.P("DROP COLUMN").Ident(change.C.Name)
		case *schema.DropColumn:
			b.P("DROP COLUMN").Ident(change.C.Name)
			r.P("ADD COLUMN")
			if err := s.column(r, change.C); err != nil {
				errs = append(errs, err.Error())
			}
		case *schema.ModifyColumn:
			b.P("MODIFY COLUMN")
			if err := s.column(b, change.To); err != nil {
				errs = append(errs, err.Error())
			}
			r.P("MODIFY COLUMN")
			if err := s.column(r, change.From); err != nil {
				errs = append(errs, err.Error())
			}
		case *schema.RenameColumn:
			if !s.SupportsRenameColumn() {
				return fmt.Errorf("version %q does not support the RENAME COLUMN clause", s.V)
			}
			b.P("RENAME COLUMN").Ident(change.From.Name).P("TO").Ident(change.To.Name)
			r.P("RENAME COLUMN").Ident(change.To.Name).P("TO").Ident(change.From.Name)
		case *schema.AddIndex:
			b.P("ADD")
			s.index(b, change.I)
			r.P("DROP INDEX").Ident(change.I.Name)
		case *schema.DropIndex:
			b.P("DROP INDEX").Ident(change.I.Name)
			r.P("ADD")
			s.index(r, change.I)
		case *schema.RenameIndex:
			b.P("RENAME INDEX").Ident(change.From.Name).P("TO").Ident(change.To.Name)
			r.P("RENAME INDEX").Ident(change.To.Name).P("TO").Ident(change.From.Name)
		case *schema.AddForeignKey:
			b.P("ADD")
			s.fks(b, change.F)
			r.P("DROP FOREIGN KEY").Ident(change.F.Symbol)
		case *schema.DropForeignKey:
			b.P("DROP FOREIGN KEY").Ident(change.F.Symbol)
			r.P("ADD")
			s.fks(r, change.F)
		case *schema.AddCheck:
			if !s.SupportsCheck() {
				return fmt.Errorf("version %q does not support CHECK constraints", s.V)
			}
			s.check(b.P("ADD"), change.C)
			r.P("DROP CONSTRAINT").Ident(change.C.Name)
		case *schema.DropCheck:
			b.P("DROP CONSTRAINT").Ident(change.C.Name)
			s.check(r.P("ADD"), change.C)
		case *schema.ModifyCheck:
			if err := s.modifyCheck(b, change.From, change.To); err != nil {
				errs = append(errs, err.Error())
			}
			if err := s.modifyCheck(r, change.To, change.From); err != nil {
				errs = append(errs, err.Error())
			}
		case *schema.AddAttr:
			s.tableAttr(b, change.A)
			// Table options cannot be dropped.
			reversible = false
		case *schema.ModifyAttr:
			s.tableAttr(b, change.To)
			s.tableAttr(r, change.From)
		default:
			errs = append(errs, fmt.Sprintf("unsupported change type: %T", change))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("alter table %q: %s", t.Name, strings.Join(errs, ", "))
	}
	change := &migrate.Change{
		Cmd:     b.String(),
		Source:  &schema.ModifyTable{T: t, Changes: changes},
		Comment: fmt.Sprintf("modify %q table", t.Name),
	}
	if reversible {
		change.Reverse = r.String()
	}
	s.append(change)
	return nil
}

func (s *state) renameTable(c *schema.RenameTable) {
	s.append(&migrate.Change{
		Source:  c,
		Comment: fmt.Sprintf("rename a table from %q to %q", c.From.Name, c.To.Name),
		Cmd:     s.Build("RENAME TABLE").Table(c.From).P("TO").Table(c.To).String(),
		Reverse: s.Build("RENAME TABLE").Table(c.To).P("TO").Table(c.From).String(),
	})
}

func (s *state) column(b *sqlx.Builder, c *schema.Column) error {
	f, err := FormatType(c.Type.Type)
	if err != nil {
		return err
	}
	b.Ident(c.Name).P(f)
	if !c.Type.Null {
		b.P("NOT")
	}
	b.P("NULL")
	s.columnDefault(b, c)
	for _, a := range c.Attrs {
		switch a := a.(type) {
		case *schema.Charset:
			if !stringType(c.Type.Type) {
				return fmt.Errorf("charset %q defined on non-string column %q", a.V, c.Name)
			}
			b.P("CHARSET", a.V)
		case *schema.Collation:
			if !stringType(c.Type.Type) {
				return fmt.Errorf("collation %q defined on non-string column %q", a.V, c.Name)
			}
			b.P("COLLATE", a.V)
		case *OnUpdate:
			b.P("ON UPDATE", a.A)
		case *AutoIncrement:
			b.P("AUTO_INCREMENT")
			// The value is rendered as a table option below.
		case *schema.GeneratedExpr:
			b.P("AS", sqlx.MayWrap(a.Expr), storedOrVirtual(a.Type))
		case *schema.Comment:
			b.P("COMMENT", strconv.Quote(a.Text))
		}
	}
	return nil
}

// columnDefault writes the default value of column to the builder.
func (s *state) columnDefault(b *sqlx.Builder, c *schema.Column) {
	switch x := c.Default.(type) {
	case *schema.Literal:
		v := x.V
		switch c.Type.Type.(type) {
		case *schema.BoolType, *schema.IntegerType, *schema.DecimalType, *schema.FloatType:
		default:
			v = quote(v)
		}
		b.P("DEFAULT", v)
	case *schema.RawExpr:
		b.P("DEFAULT", s.mayWrapDefault(x.X))
	}
}

var (
	// Simple temporal functions and the NULL keyword are accepted
	// by MySQL in the DEFAULT clause without parentheses.
	reSimpleDefault = regexp.MustCompile(`(?i)^(?:null|(?:current_timestamp|current_date|current_time|now|localtime|localtimestamp)(?:\(\d*\))?)$`)
	// An "ON UPDATE" clause following the default expression.
	reOnUpdateClause = regexp.MustCompile(`(?i)\bon\s+update\b`)
)

// mayWrapDefault ensures expression defaults are wrapped with parentheses as
// expected by MySQL 8.0.13 and above. Literals, simple temporal functions and
// expressions followed by an ON UPDATE clause are written verbatim, as
// wrapping the latter renders the statement invalid.
func (s *state) mayWrapDefault(x string) string {
	switch {
	case !s.SupportsExprDefault():
		return x
	case sqlx.IsQuoted(x, '\'', '"'), sqlx.IsLiteralBool(x), sqlx.IsLiteralNumber(x):
		return x
	case reSimpleDefault.MatchString(x):
		return x
	case reOnUpdateClause.MatchString(x):
		return x
	}
	return sqlx.MayWrap(x)
}

// tableAttrs writes the table options of a CREATE TABLE statement. The
// AUTO_INCREMENT option is rendered last, either from the table attributes
// or hoisted from the column it was defined on.
func (s *state) tableAttrs(b *sqlx.Builder, t *schema.Table) {
	var ai *AutoIncrement
	for _, a := range t.Attrs {
		switch a := a.(type) {
		case *schema.Check:
			// Rendered inside the table definition.
		case *AutoIncrement:
			ai = a
		default:
			s.tableAttr(b, a)
		}
	}
	if ai == nil {
		for _, c := range t.Columns {
			if a := (&AutoIncrement{}); sqlx.Has(c.Attrs, a) && a.V > 0 {
				ai = a
				break
			}
		}
	}
	if ai != nil && ai.V > 0 {
		s.tableAttr(b, ai)
	}
}

// tableAttr writes the given table attributes to the builder.
func (s *state) tableAttr(b *sqlx.Builder, attrs ...schema.Attr) {
	for _, a := range attrs {
		switch a := a.(type) {
		case *AutoIncrement:
			if a.V > 0 {
				b.P("AUTO_INCREMENT", strconv.FormatInt(a.V, 10))
			}
		case *CreateOptions:
			b.P(a.V)
		case *schema.Charset:
			b.P("CHARSET", a.V)
		case *schema.Collation:
			b.P("COLLATE", a.V)
		case *schema.Comment:
			b.P("COMMENT", strconv.Quote(a.Text))
		}
	}
}

func (s *state) index(b *sqlx.Builder, idx *schema.Index) {
	switch t := indexType(idx.Attrs); {
	case t.T == IndexTypeFullText, t.T == IndexTypeSpatial:
		b.P(t.T)
	case idx.Unique:
		b.P("UNIQUE")
	}
	b.P("INDEX").Ident(idx.Name)
	// Skip BTREE as it is the default index type.
	if t := indexType(idx.Attrs); t.T == IndexTypeHash {
		b.P("USING", t.T)
	}
	s.indexParts(b, idx.Parts)
	// Comments on indexes were added in version 5.5.3.
	if c := (schema.Comment{}); sqlx.Has(idx.Attrs, &c) && s.SupportsIndexComment() {
		b.P("COMMENT", strconv.Quote(c.Text))
	}
}

func (s *state) indexParts(b *sqlx.Builder, parts []*schema.IndexPart) {
	b.Wrap(func(b *sqlx.Builder) {
		b.MapComma(parts, func(i int, b *sqlx.Builder) {
			switch part := parts[i]; {
			case part.C != nil:
				b.Ident(part.C.Name)
			case part.X != nil:
				b.WriteString(sqlx.MayWrap(part.X.(*schema.RawExpr).X))
			}
			if s := (SubPart{}); sqlx.Has(parts[i].Attrs, &s) {
				b.P(fmt.Sprintf("(%d)", s.Len))
			}
			if parts[i].Desc {
				b.P("DESC")
			}
		})
	})
}

func (s *state) fks(b *sqlx.Builder, fks ...*schema.ForeignKey) {
	b.MapComma(fks, func(i int, b *sqlx.Builder) {
		fk := fks[i]
		if fk.Symbol != "" {
			b.P("CONSTRAINT").Ident(fk.Symbol)
		}
		b.P("FOREIGN KEY")
		b.Wrap(func(b *sqlx.Builder) {
			b.MapComma(fk.Columns, func(i int, b *sqlx.Builder) {
				b.Ident(fk.Columns[i].Name)
			})
		})
		b.P("REFERENCES").Table(fk.RefTable)
		b.Wrap(func(b *sqlx.Builder) {
			b.MapComma(fk.RefColumns, func(i int, b *sqlx.Builder) {
				b.Ident(fk.RefColumns[i].Name)
			})
		})
		if fk.OnUpdate != "" {
			b.P("ON UPDATE", string(fk.OnUpdate))
		}
		if fk.OnDelete != "" {
			b.P("ON DELETE", string(fk.OnDelete))
		}
	})
}

// check appends the CHECK clause to the given builder. The ENFORCED
// option is skipped on versions that do not accept its syntax.
func (s *state) check(b *sqlx.Builder, c *schema.Check) {
	if c.Name != "" {
		b.P("CONSTRAINT").Ident(c.Name)
	}
	b.P("CHECK", sqlx.MayWrap(c.Expr))
	if enforced(c.Attrs) && s.SupportsEnforceCheck() {
		b.P("ENFORCED")
	}
}

func (s *state) modifyCheck(b *sqlx.Builder, from, to *schema.Check) error {
	switch {
	case from.Name == "" || from.Name != to.Name:
		return fmt.Errorf("cannot rename constraint %q", from.Name)
	case from.Expr != to.Expr:
		// Enforcement of the new constraint is rendered by the ADD clause.
		b.P("DROP CHECK").Ident(from.Name).Comma().
			P("ADD CONSTRAINT").Ident(to.Name).P("CHECK", sqlx.MayWrap(to.Expr))
	case !s.SupportsEnforceCheck():
		return fmt.Errorf("version %q does not support the ENFORCED syntax", s.V)
	case enforced(to.Attrs):
		// The CHECK constraints are ENFORCED by default.
		b.P("ALTER CHECK").Ident(to.Name).P("NOT ENFORCED")
	default:
		b.P("ALTER CHECK").Ident(to.Name).P("ENFORCED")
	}
	return nil
}

func (s *state) append(c *migrate.Change) {
	s.Changes = append(s.Changes, c)
}

// stringType reports if the given type is a string or text-like type
// that accepts a character set and a collation.
func stringType(t schema.Type) bool {
	switch t.(type) {
	case *schema.StringType, *schema.EnumType, *SetType:
		return true
	}
	return false
}

func quote(s string) string {
	if sqlx.IsQuoted(s, '"', '\'') {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Generated column types.
const (
	virtual = "VIRTUAL"
	stored  = "STORED"
)
