// Copyright 2021-present The SchemaKit Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/schemakit/schemakit/sql/internal/sqlx"
	"github.com/schemakit/schemakit/sql/schema"
)

// inspect provides schema inspection capabilities for
// MySQL and MariaDB using the information schema.
type inspect struct{ conn }

var _ schema.Inspector = (*inspect)(nil)

// InspectRealm returns schema descriptions of all resources in the given realm.
func (i *inspect) InspectRealm(ctx context.Context, opts *schema.InspectRealmOption) (*schema.Realm, error) {
	if opts == nil {
		opts = &schema.InspectRealmOption{}
	}
	schemas, err := i.schemas(ctx, opts.Schemas...)
	if err != nil {
		return nil, err
	}
	r := &schema.Realm{
		Schemas: schemas,
		Attrs: []schema.Attr{
			&schema.Charset{V: i.charset},
			&schema.Collation{V: i.collate},
		},
	}
	for _, s := range schemas {
		s.Realm = r
		if err := i.tables(ctx, s, nil); err != nil {
			return nil, err
		}
		for _, t := range s.Tables {
			if err := i.inspectTable(ctx, t); err != nil {
				return nil, err
			}
		}
	}
	sqlx.LinkSchemaTables(schemas)
	return r, nil
}

// InspectSchema returns schema descriptions of the tables in the given schema.
// If the schema name is empty, the result is the attached schema of the connection.
func (i *inspect) InspectSchema(ctx context.Context, name string, opts *schema.InspectOptions) (*schema.Schema, error) {
	schemas, err := i.schemas(ctx, name)
	if err != nil {
		return nil, err
	}
	switch n := len(schemas); {
	case n == 0:
		return nil, &schema.NotExistError{Err: fmt.Errorf("mysql: schema %q was not found", name)}
	case n > 1:
		return nil, fmt.Errorf("mysql: %d schemas were found for %q", n, name)
	}
	s := schemas[0]
	if err := i.tables(ctx, s, opts); err != nil {
		return nil, err
	}
	for _, t := range s.Tables {
		if err := i.inspectTable(ctx, t); err != nil {
			return nil, err
		}
	}
	sqlx.LinkSchemaTables(schemas)
	s.Realm = &schema.Realm{
		Schemas: schemas,
		Attrs: []schema.Attr{
			&schema.Charset{V: i.charset},
			&schema.Collation{V: i.collate},
		},
	}
	return s, nil
}

func (i *inspect) inspectTable(ctx context.Context, t *schema.Table) error {
	if err := i.columns(ctx, t); err != nil {
		return err
	}
	if err := i.indexes(ctx, t); err != nil {
		return err
	}
	if err := i.fks(ctx, t); err != nil {
		return err
	}
	if err := i.checks(ctx, t); err != nil {
		return err
	}
	return nil
}

// schemas returns the list of the schemas in the database.
// An empty name refers to the attached schema of the connection.
func (i *inspect) schemas(ctx context.Context, names ...string) ([]*schema.Schema, error) {
	var (
		args  []interface{}
		query = schemasQuery
	)
	switch n := len(names); {
	case n == 1 && names[0] == "":
		query = fmt.Sprintf(schemasQueryArgs, "= SCHEMA()")
	case n > 0:
		query = fmt.Sprintf(schemasQueryArgs, "IN ("+nArgs(len(names))+")")
		for _, s := range names {
			args = append(args, s)
		}
	}
	rows, err := i.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("mysql: querying schemas: %w", err)
	}
	defer rows.Close()
	var schemas []*schema.Schema
	for rows.Next() {
		var name, charset, collation string
		if err := rows.Scan(&name, &charset, &collation); err != nil {
			return nil, err
		}
		schemas = append(schemas, &schema.Schema{
			Name: name,
			Attrs: []schema.Attr{
				&schema.Charset{V: charset},
				&schema.Collation{V: collation},
			},
		})
	}
	return schemas, rows.Err()
}

// tables returns the list of tables in the given schema.
func (i *inspect) tables(ctx context.Context, s *schema.Schema, opts *schema.InspectOptions) error {
	var (
		args  = []interface{}{s.Name}
		query = fmt.Sprintf(tablesQuery, "?")
	)
	if opts != nil && len(opts.Tables) > 0 {
		query = fmt.Sprintf(tablesQuery, "? AND `TABLE_NAME` IN ("+nArgs(len(opts.Tables))+")")
		for _, t := range opts.Tables {
			args = append(args, t)
		}
	}
	rows, err := i.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mysql: querying %q tables: %w", s.Name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			autoinc                                    sql.NullInt64
			name, charset, collation, comment, options sql.NullString
		)
		if err := rows.Scan(&name, &charset, &collation, &autoinc, &comment, &options); err != nil {
			return fmt.Errorf("mysql: scanning table: %w", err)
		}
		t := &schema.Table{Name: name.String, Schema: s}
		if sqlx.ValidString(charset) {
			t.Attrs = append(t.Attrs, &schema.Charset{V: charset.String})
		}
		if sqlx.ValidString(collation) {
			t.Attrs = append(t.Attrs, &schema.Collation{V: collation.String})
		}
		if autoinc.Valid {
			t.Attrs = append(t.Attrs, &AutoIncrement{V: autoinc.Int64})
		}
		if sqlx.ValidString(comment) {
			t.Attrs = append(t.Attrs, &schema.Comment{Text: comment.String})
		}
		if sqlx.ValidString(options) {
			t.Attrs = append(t.Attrs, &CreateOptions{V: options.String})
		}
		s.Tables = append(s.Tables, t)
	}
	return rows.Err()
}

// columns queries and appends the columns of the given table.
func (i *inspect) columns(ctx context.Context, t *schema.Table) error {
	query := columnsQuery
	if i.SupportsGeneratedColumns() {
		query = columnsExprQuery
	}
	rows, err := i.QueryContext(ctx, query, t.Schema.Name, t.Name)
	if err != nil {
		return fmt.Errorf("mysql: querying %q columns: %w", t.Name, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := i.addColumn(t, rows); err != nil {
			return fmt.Errorf("mysql: %w", err)
		}
	}
	return rows.Err()
}

// addColumn scans the current row and adds a new column to the table.
func (i *inspect) addColumn(t *schema.Table, rows *sql.Rows) error {
	var name, typ, comment, nullable, key, defaults, extra, charset, collation, expr sql.NullString
	args := []interface{}{&name, &typ, &comment, &nullable, &key, &defaults, &extra, &charset, &collation}
	if i.SupportsGeneratedColumns() {
		args = append(args, &expr)
	}
	if err := rows.Scan(args...); err != nil {
		return err
	}
	c := &schema.Column{
		Name: name.String,
		Type: &schema.ColumnType{
			Raw:  typ.String,
			Null: nullable.String == "YES",
		},
	}
	ct, err := ParseType(c.Type.Raw)
	if err != nil {
		return err
	}
	c.Type.Type = ct
	if err := i.extraAttr(c, extra.String); err != nil {
		return err
	}
	if sqlx.ValidString(defaults) || i.Maria() && defaults.Valid {
		i.columnDefault(c, defaults.String, extra.String)
	}
	if sqlx.ValidString(expr) {
		c.Attrs = append(c.Attrs, &schema.GeneratedExpr{
			Expr: unescape(expr.String),
			Type: generatedType(extra.String),
		})
	}
	if sqlx.ValidString(charset) {
		c.Attrs = append(c.Attrs, &schema.Charset{V: charset.String})
	}
	if sqlx.ValidString(collation) {
		c.Attrs = append(c.Attrs, &schema.Collation{V: collation.String})
	}
	if sqlx.ValidString(comment) {
		c.Attrs = append(c.Attrs, &schema.Comment{Text: comment.String})
	}
	t.Columns = append(t.Columns, c)
	if key.String == "PRI" {
		if t.PrimaryKey == nil {
			t.PrimaryKey = &schema.Index{Name: key.String, Unique: true, Table: t}
		}
		t.PrimaryKey.Parts = append(t.PrimaryKey.Parts, &schema.IndexPart{
			C:     c,
			SeqNo: len(t.PrimaryKey.Parts) + 1,
		})
	}
	return nil
}

// columnDefault sets the default of the column from its information
// schema representation, which differs between MySQL and MariaDB.
func (i *inspect) columnDefault(c *schema.Column, x, extra string) {
	switch {
	case !i.Maria():
		// MySQL marks expression defaults in the EXTRA column
		// and may wrap temporal functions with their flavor.
		if strings.Contains(strings.ToLower(extra), "default_generated") || defaultExpr(c, x) {
			c.Default = &schema.RawExpr{X: unescape(x)}
		} else {
			c.Default = &schema.Literal{V: x}
		}
	// MariaDB stores defaults as their expression form.
	case strings.ToLower(x) == "null":
	case sqlx.IsQuoted(x, '\''), sqlx.IsLiteralNumber(x):
		c.Default = &schema.Literal{V: unescape(x)}
	default:
		c.Default = &schema.RawExpr{X: unescape(x)}
	}
}

// defaultExpr reports if the default of a temporal column is an expression.
func defaultExpr(c *schema.Column, x string) bool {
	t, ok := c.Type.Type.(*schema.TimeType)
	return ok && (t.T == tTimestamp || t.T == tDateTime) &&
		strings.HasPrefix(strings.ToLower(x), "current_timestamp")
}

var reOnUpdate = regexp.MustCompile(`(?i)^(?:default_generated )?on update (current_timestamp(?:\(\d*\))?)$`)

// extraAttr parses the EXTRA column of the information schema
// and appends its parsed representation to the column.
func (i *inspect) extraAttr(c *schema.Column, extra string) error {
	switch lower := strings.ToLower(extra); {
	case lower == "", lower == "null", lower == "default_generated":
	case lower == "auto_increment":
		c.Attrs = append(c.Attrs, &AutoIncrement{})
	case strings.HasSuffix(lower, "generated"):
		// Handled by the generation expression.
	case reOnUpdate.MatchString(lower):
		c.Attrs = append(c.Attrs, &OnUpdate{A: reOnUpdate.FindStringSubmatch(lower)[1]})
	default:
		return fmt.Errorf("unknown extra column attribute %q", extra)
	}
	return nil
}

// generatedType returns the type of the generated column from the EXTRA column.
func generatedType(extra string) string {
	if strings.HasPrefix(strings.ToUpper(extra), stored) {
		return stored
	}
	return virtual
}

// indexes queries and appends the indexes of the given table.
func (i *inspect) indexes(ctx context.Context, t *schema.Table) error {
	query := indexesQuery
	if i.SupportsIndexExpr() {
		query = indexesExprQuery
	}
	rows, err := i.QueryContext(ctx, query, t.Schema.Name, t.Name)
	if err != nil {
		return fmt.Errorf("mysql: querying %q indexes: %w", t.Name, err)
	}
	defer rows.Close()
	return i.addIndexes(t, rows)
}

// addIndexes scans the rows and adds the indexes to the table.
func (i *inspect) addIndexes(t *schema.Table, rows *sql.Rows) error {
	for rows.Next() {
		var (
			seqno                                int
			nonuniq                              bool
			name, indexType                      string
			column, subPart, expr, comment, desc sql.NullString
		)
		args := []interface{}{&name, &column, &nonuniq, &seqno, &indexType, &desc, &comment, &subPart}
		if i.SupportsIndexExpr() {
			args = append(args, &expr)
		}
		if err := rows.Scan(args...); err != nil {
			return fmt.Errorf("mysql: scanning index: %w", err)
		}
		// The primary key is collected by the columns query.
		if name == "PRIMARY" {
			continue
		}
		idx, ok := t.Index(name)
		if !ok {
			idx = &schema.Index{
				Name:   name,
				Unique: !nonuniq,
				Table:  t,
				Attrs: []schema.Attr{
					&IndexType{T: strings.ToUpper(indexType)},
				},
			}
			if sqlx.ValidString(comment) {
				idx.Attrs = append(idx.Attrs, &schema.Comment{Text: comment.String})
			}
			t.Indexes = append(t.Indexes, idx)
		}
		part := &schema.IndexPart{
			SeqNo: seqno,
			Desc:  desc.String == "D",
		}
		switch {
		case sqlx.ValidString(expr):
			part.X = &schema.RawExpr{X: unescape(expr.String)}
		case sqlx.ValidString(column):
			c, ok := t.Column(column.String)
			if !ok {
				return fmt.Errorf("mysql: column %q was not found for index %q", column.String, idx.Name)
			}
			part.C = c
			c.Indexes = append(c.Indexes, idx)
		default:
			return fmt.Errorf("mysql: invalid part for index %q", idx.Name)
		}
		if subPart.Valid && subPart.String != "" {
			n, err := strconv.Atoi(subPart.String)
			if err != nil {
				return fmt.Errorf("mysql: parse index %q sub part: %w", idx.Name, err)
			}
			part.Attrs = append(part.Attrs, &SubPart{Len: n})
		}
		idx.Parts = append(idx.Parts, part)
	}
	return rows.Err()
}

// fks queries and appends the foreign keys of the given table.
func (i *inspect) fks(ctx context.Context, t *schema.Table) error {
	rows, err := i.QueryContext(ctx, fksQuery, t.Schema.Name, t.Name)
	if err != nil {
		return fmt.Errorf("mysql: querying %q foreign keys: %w", t.Name, err)
	}
	defer rows.Close()
	if err := sqlx.ScanFKs(t, rows); err != nil {
		return fmt.Errorf("mysql: %w", err)
	}
	return rows.Err()
}

// checks queries and appends the check constraints of the given table.
func (i *inspect) checks(ctx context.Context, t *schema.Table) error {
	if !i.SupportsCheck() {
		return nil
	}
	query := myChecksQuery
	if i.Maria() {
		query = marChecksQuery
	}
	rows, err := i.QueryContext(ctx, query, t.Schema.Name, t.Name)
	if err != nil {
		return fmt.Errorf("mysql: querying %q check constraints: %w", t.Name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, clause, enforced sql.NullString
		if err := rows.Scan(&name, &enforced, &clause); err != nil {
			return fmt.Errorf("mysql: scanning check: %w", err)
		}
		expr := unescape(clause.String)
		// MariaDB implements the JSON type as a LONGTEXT with
		// a CHECK constraint named after the column.
		if i.Maria() && i.marJSON(t, name.String, expr) {
			continue
		}
		check := &schema.Check{Name: name.String, Expr: expr}
		if enforced.String == "NO" {
			check.Attrs = append(check.Attrs, &Enforced{})
		}
		t.Attrs = append(t.Attrs, check)
	}
	return rows.Err()
}

// marJSON reports if the check describes a MariaDB JSON column,
// and if so, rewrites the column type accordingly.
func (i *inspect) marJSON(t *schema.Table, name, expr string) bool {
	c, ok := t.Column(name)
	if !ok || expr != fmt.Sprintf("json_valid(`%s`)", name) {
		return false
	}
	if _, ok := c.Type.Type.(*schema.StringType); !ok {
		return false
	}
	c.Type.Raw = tJSON
	c.Type.Type = &schema.JSONType{T: tJSON}
	return true
}

func nArgs(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// unescape strips the backslash escaping applied by the information
// schema to quotes and backslashes inside stored expressions.
func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c != '\\' || i == len(s)-1:
			b.WriteByte(c)
		case s[i+1] == '\'', s[i+1] == '"', s[i+1] == '\\':
			b.WriteByte(s[i+1])
			i++
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

const (
	// Query to list the database schemas.
	schemasQuery = "SELECT `SCHEMA_NAME`, `DEFAULT_CHARACTER_SET_NAME`, `DEFAULT_COLLATION_NAME` FROM `INFORMATION_SCHEMA`.`SCHEMATA` WHERE `SCHEMA_NAME` NOT IN ('mysql', 'information_schema', 'performance_schema', 'sys') ORDER BY `SCHEMA_NAME`"

	// Query to list specific database schemas.
	schemasQueryArgs = "SELECT `SCHEMA_NAME`, `DEFAULT_CHARACTER_SET_NAME`, `DEFAULT_COLLATION_NAME` FROM `INFORMATION_SCHEMA`.`SCHEMATA` WHERE `SCHEMA_NAME` %s ORDER BY `SCHEMA_NAME`"

	// Query to list the schema tables.
	tablesQuery = "SELECT `TABLE_NAME`, `CHARACTER_SET_NAME`, `TABLE_COLLATION`, `AUTO_INCREMENT`, `TABLE_COMMENT`, `CREATE_OPTIONS` FROM `INFORMATION_SCHEMA`.`TABLES` LEFT JOIN `INFORMATION_SCHEMA`.`COLLATIONS` ON `TABLE_COLLATION` = `COLLATION_NAME` WHERE `TABLE_TYPE` = 'BASE TABLE' AND `TABLE_SCHEMA` = %s ORDER BY `TABLE_NAME`"

	// Query to list the table columns.
	columnsQuery = "SELECT `COLUMN_NAME`, `COLUMN_TYPE`, `COLUMN_COMMENT`, `IS_NULLABLE`, `COLUMN_KEY`, `COLUMN_DEFAULT`, `EXTRA`, `CHARACTER_SET_NAME`, `COLLATION_NAME` FROM `INFORMATION_SCHEMA`.`COLUMNS` WHERE `TABLE_SCHEMA` = ? AND `TABLE_NAME` = ? ORDER BY `ORDINAL_POSITION`"

	// Query to list the table columns with their generation expression.
	columnsExprQuery = "SELECT `COLUMN_NAME`, `COLUMN_TYPE`, `COLUMN_COMMENT`, `IS_NULLABLE`, `COLUMN_KEY`, `COLUMN_DEFAULT`, `EXTRA`, `CHARACTER_SET_NAME`, `COLLATION_NAME`, `GENERATION_EXPRESSION` FROM `INFORMATION_SCHEMA`.`COLUMNS` WHERE `TABLE_SCHEMA` = ? AND `TABLE_NAME` = ? ORDER BY `ORDINAL_POSITION`"

	// Query to list the table indexes.
	indexesQuery = "SELECT `INDEX_NAME`, `COLUMN_NAME`, `NON_UNIQUE`, `SEQ_IN_INDEX`, `INDEX_TYPE`, `COLLATION`, `INDEX_COMMENT`, `SUB_PART` FROM `INFORMATION_SCHEMA`.`STATISTICS` WHERE `TABLE_SCHEMA` = ? AND `TABLE_NAME` = ? ORDER BY `INDEX_NAME`, `SEQ_IN_INDEX`"

	// Query to list the table indexes with their key part expression.
	indexesExprQuery = "SELECT `INDEX_NAME`, `COLUMN_NAME`, `NON_UNIQUE`, `SEQ_IN_INDEX`, `INDEX_TYPE`, `COLLATION`, `INDEX_COMMENT`, `SUB_PART`, `EXPRESSION` FROM `INFORMATION_SCHEMA`.`STATISTICS` WHERE `TABLE_SCHEMA` = ? AND `TABLE_NAME` = ? ORDER BY `INDEX_NAME`, `SEQ_IN_INDEX`"

	// Query to list the table check constraints.
	myChecksQuery = "SELECT t1.`CONSTRAINT_NAME`, t1.`ENFORCED`, t2.`CHECK_CLAUSE` FROM `INFORMATION_SCHEMA`.`TABLE_CONSTRAINTS` AS t1 JOIN `INFORMATION_SCHEMA`.`CHECK_CONSTRAINTS` AS t2 ON t1.`CONSTRAINT_NAME` = t2.`CONSTRAINT_NAME` WHERE t1.`CONSTRAINT_TYPE` = 'CHECK' AND t1.`TABLE_SCHEMA` = ? AND t1.`TABLE_NAME` = ? ORDER BY t1.`CONSTRAINT_NAME`"

	// Query to list the table check constraints in MariaDB.
	marChecksQuery = "SELECT `CONSTRAINT_NAME`, 'YES' AS `ENFORCED`, `CHECK_CLAUSE` FROM `INFORMATION_SCHEMA`.`CHECK_CONSTRAINTS` WHERE `CONSTRAINT_SCHEMA` = ? AND `TABLE_NAME` = ? ORDER BY `CONSTRAINT_NAME`"

	// Query to list the table foreign keys.
	fksQuery = "SELECT t1.`CONSTRAINT_NAME`, t1.`TABLE_NAME`, t1.`COLUMN_NAME`, t1.`TABLE_SCHEMA`, t1.`REFERENCED_TABLE_NAME`, t1.`REFERENCED_COLUMN_NAME`, t1.`REFERENCED_TABLE_SCHEMA`, t3.`UPDATE_RULE`, t3.`DELETE_RULE` FROM `INFORMATION_SCHEMA`.`KEY_COLUMN_USAGE` AS t1 JOIN `INFORMATION_SCHEMA`.`REFERENTIAL_CONSTRAINTS` AS t3 ON t1.`CONSTRAINT_NAME` = t3.`CONSTRAINT_NAME` WHERE t1.`TABLE_SCHEMA` = ? AND t1.`TABLE_NAME` = ? AND t1.`REFERENCED_COLUMN_NAME` IS NOT NULL ORDER BY t1.`CONSTRAINT_NAME`, t1.`ORDINAL_POSITION`"
)
