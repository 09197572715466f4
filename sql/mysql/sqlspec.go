// Copyright 2021-present The SchemaKit Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"bytes"
	"fmt"

	"github.com/schemakit/schemakit/sql/internal/sqlx"
	"github.com/schemakit/schemakit/sql/schema"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

type (
	specFile struct {
		Schemas []*schemaSpec `hcl:"schema,block"`
		Tables  []*tableSpec  `hcl:"table,block"`
	}

	schemaSpec struct {
		Name    string  `hcl:",label"`
		Charset *string `hcl:"charset,optional"`
		Collate *string `hcl:"collate,optional"`
	}

	tableSpec struct {
		Name    string        `hcl:",label"`
		Schema  *schemaRef    `hcl:"schema,optional"`
		Columns []*columnSpec `hcl:"column,block"`
		PK      *pkSpec       `hcl:"primary_key,block"`
		Indexes []*indexSpec  `hcl:"index,block"`
		FKs     []*fkSpec     `hcl:"foreign_key,block"`
		Checks  []*checkSpec  `hcl:"check,block"`
		Charset *string       `hcl:"charset,optional"`
		Collate *string       `hcl:"collate,optional"`
		Comment *string       `hcl:"comment,optional"`
		AutoInc *int64        `hcl:"auto_increment,optional"`
	}

	columnSpec struct {
		Name     string  `hcl:",label"`
		Type     string  `hcl:"type"`
		Null     bool    `hcl:"null,optional"`
		Default  *string `hcl:"default,optional"`
		Expr     *string `hcl:"default_expr,optional"`
		OnUpdate *string `hcl:"on_update,optional"`
		AutoInc  bool    `hcl:"auto_increment,optional"`
		Charset  *string `hcl:"charset,optional"`
		Collate  *string `hcl:"collate,optional"`
		Comment  *string `hcl:"comment,optional"`
	}

	pkSpec struct {
		Columns []*columnRef `hcl:"columns"`
	}

	indexSpec struct {
		Name    string       `hcl:",label"`
		Unique  bool         `hcl:"unique,optional"`
		Columns []*columnRef `hcl:"columns"`
		Comment *string      `hcl:"comment,optional"`
	}

	fkSpec struct {
		Symbol     string       `hcl:",label"`
		Columns    []*columnRef `hcl:"columns"`
		RefColumns []*columnRef `hcl:"references"`
		OnUpdate   *string      `hcl:"on_update,optional"`
		OnDelete   *string      `hcl:"on_delete,optional"`
	}

	checkSpec struct {
		Name     string `hcl:",label"`
		Expr     string `hcl:"expr"`
		Enforced bool   `hcl:"enforced,optional"`
	}

	schemaRef struct {
		Name string `cty:"name"`
	}

	columnRef struct {
		Name  string `cty:"name"`
		Table string `cty:"table"`
	}
)

// MarshalSpec converts the schema to its HCL document representation.
func MarshalSpec(s *schema.Schema) ([]byte, error) {
	f := hclwrite.NewFile()
	body := f.Body()
	blk := body.AppendNewBlock("schema", []string{s.Name}).Body()
	var cs schema.Charset
	if sqlx.Has(s.Attrs, &cs) {
		blk.SetAttributeValue("charset", cty.StringVal(cs.V))
	}
	var cl schema.Collation
	if sqlx.Has(s.Attrs, &cl) {
		blk.SetAttributeValue("collate", cty.StringVal(cl.V))
	}
	for _, t := range s.Tables {
		if err := marshalTable(t, body); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalSpec decodes an HCL document into the schema. The document
// must contain exactly one schema block, and tables carrying a schema
// reference must point to it.
func UnmarshalSpec(data []byte, s *schema.Schema) error {
	srcHCL, diag := hclparse.NewParser().ParseHCL(data, "schema.hcl")
	if diag.HasErrors() {
		return diag
	}
	ctx, err := evalContext(srcHCL)
	if err != nil {
		return err
	}
	var f specFile
	if diag := gohcl.DecodeBody(srcHCL.Body, ctx, &f); diag.HasErrors() {
		return diag
	}
	if len(f.Schemas) != 1 {
		return fmt.Errorf("mysql: expected 1 schema block, got %d", len(f.Schemas))
	}
	*s = schema.Schema{Name: f.Schemas[0].Name}
	if v := f.Schemas[0].Charset; v != nil {
		s.SetCharset(*v)
	}
	if v := f.Schemas[0].Collate; v != nil {
		s.SetCollation(*v)
	}
	for _, ts := range f.Tables {
		if ts.Schema != nil && ts.Schema.Name != s.Name {
			return fmt.Errorf("mysql: table %q references unknown schema %q", ts.Name, ts.Schema.Name)
		}
		t, err := ts.table()
		if err != nil {
			return err
		}
		s.AddTables(t)
	}
	// Keys and constraints are linked after all tables were
	// created, as references may point across tables.
	for i, ts := range f.Tables {
		if err := ts.link(s.Tables[i], s); err != nil {
			return err
		}
	}
	return nil
}

func marshalTable(t *schema.Table, body *hclwrite.Body) error {
	blk := body.AppendNewBlock("table", []string{t.Name}).Body()
	if t.Schema != nil {
		blk.SetAttributeRaw("schema", hclRawTokens("schema."+t.Schema.Name))
	}
	for _, c := range t.Columns {
		if err := marshalColumn(c, blk); err != nil {
			return err
		}
	}
	if t.PrimaryKey != nil {
		refs, err := partRefs(t, t.PrimaryKey.Parts)
		if err != nil {
			return err
		}
		pb := blk.AppendNewBlock("primary_key", nil).Body()
		pb.SetAttributeRaw("columns", hclRawList(refs))
	}
	for _, idx := range t.Indexes {
		if err := marshalIndex(t, idx, blk); err != nil {
			return err
		}
	}
	for _, fk := range t.ForeignKeys {
		if err := marshalFK(t, fk, blk); err != nil {
			return err
		}
	}
	for _, ck := range checks(t.Attrs) {
		cb := blk.AppendNewBlock("check", []string{ck.Name}).Body()
		cb.SetAttributeValue("expr", cty.StringVal(ck.Expr))
		var e Enforced
		if sqlx.Has(ck.Attrs, &e) {
			cb.SetAttributeValue("enforced", cty.True)
		}
	}
	for _, attr := range t.Attrs {
		switch a := attr.(type) {
		case *schema.Charset:
			blk.SetAttributeValue("charset", cty.StringVal(a.V))
		case *schema.Collation:
			blk.SetAttributeValue("collate", cty.StringVal(a.V))
		case *schema.Comment:
			blk.SetAttributeValue("comment", cty.StringVal(a.Text))
		case *AutoIncrement:
			if a.V > 0 {
				blk.SetAttributeValue("auto_increment", cty.NumberIntVal(a.V))
			}
		}
	}
	return nil
}

func marshalColumn(c *schema.Column, body *hclwrite.Body) error {
	blk := body.AppendNewBlock("column", []string{c.Name}).Body()
	t, err := FormatType(c.Type.Type)
	if err != nil {
		return fmt.Errorf("mysql: format type for column %q: %w", c.Name, err)
	}
	blk.SetAttributeValue("type", cty.StringVal(t))
	if c.Type.Null {
		blk.SetAttributeValue("null", cty.True)
	}
	switch x := c.Default.(type) {
	case nil:
	case *schema.Literal:
		blk.SetAttributeValue("default", cty.StringVal(x.V))
	case *schema.RawExpr:
		blk.SetAttributeValue("default_expr", cty.StringVal(x.X))
	default:
		return fmt.Errorf("mysql: unexpected default value type %T for column %q", x, c.Name)
	}
	for _, attr := range c.Attrs {
		switch a := attr.(type) {
		case *schema.Charset:
			blk.SetAttributeValue("charset", cty.StringVal(a.V))
		case *schema.Collation:
			blk.SetAttributeValue("collate", cty.StringVal(a.V))
		case *schema.Comment:
			blk.SetAttributeValue("comment", cty.StringVal(a.Text))
		case *AutoIncrement:
			blk.SetAttributeValue("auto_increment", cty.True)
		case *OnUpdate:
			blk.SetAttributeValue("on_update", cty.StringVal(a.A))
		}
	}
	return nil
}

func marshalIndex(t *schema.Table, idx *schema.Index, body *hclwrite.Body) error {
	refs, err := partRefs(t, idx.Parts)
	if err != nil {
		return err
	}
	blk := body.AppendNewBlock("index", []string{idx.Name}).Body()
	if idx.Unique {
		blk.SetAttributeValue("unique", cty.True)
	}
	blk.SetAttributeRaw("columns", hclRawList(refs))
	var c schema.Comment
	if sqlx.Has(idx.Attrs, &c) {
		blk.SetAttributeValue("comment", cty.StringVal(c.Text))
	}
	return nil
}

func marshalFK(t *schema.Table, fk *schema.ForeignKey, body *hclwrite.Body) error {
	if fk.RefTable == nil {
		return fmt.Errorf("mysql: missing referenced table for foreign key %q", fk.Symbol)
	}
	blk := body.AppendNewBlock("foreign_key", []string{fk.Symbol}).Body()
	blk.SetAttributeRaw("columns", hclRawList(columnRefs(t, fk.Columns)))
	blk.SetAttributeRaw("references", hclRawList(columnRefs(fk.RefTable, fk.RefColumns)))
	if fk.OnUpdate != "" {
		x, err := refOptExpr(fk.OnUpdate)
		if err != nil {
			return err
		}
		blk.SetAttributeRaw("on_update", hclRawTokens(x))
	}
	if fk.OnDelete != "" {
		x, err := refOptExpr(fk.OnDelete)
		if err != nil {
			return err
		}
		blk.SetAttributeRaw("on_delete", hclRawTokens(x))
	}
	return nil
}

func (ts *tableSpec) table() (*schema.Table, error) {
	t := schema.NewTable(ts.Name)
	for _, cs := range ts.Columns {
		c, err := cs.column()
		if err != nil {
			return nil, err
		}
		t.AddColumns(c)
	}
	if ts.Charset != nil {
		t.SetCharset(*ts.Charset)
	}
	if ts.Collate != nil {
		t.SetCollation(*ts.Collate)
	}
	if ts.Comment != nil {
		t.SetComment(*ts.Comment)
	}
	if ts.AutoInc != nil {
		t.AddAttrs(&AutoIncrement{V: *ts.AutoInc})
	}
	return t, nil
}

func (cs *columnSpec) column() (*schema.Column, error) {
	typ, err := ParseType(cs.Type)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse type for column %q: %w", cs.Name, err)
	}
	c := schema.NewColumn(cs.Name).SetType(typ).SetNull(cs.Null)
	c.Type.Raw = cs.Type
	switch {
	case cs.Default != nil && cs.Expr != nil:
		return nil, fmt.Errorf("mysql: both default and default_expr were set for column %q", cs.Name)
	case cs.Default != nil:
		c.SetDefault(&schema.Literal{V: *cs.Default})
	case cs.Expr != nil:
		c.SetDefault(&schema.RawExpr{X: *cs.Expr})
	}
	if cs.Charset != nil {
		c.SetCharset(*cs.Charset)
	}
	if cs.Collate != nil {
		c.SetCollation(*cs.Collate)
	}
	if cs.OnUpdate != nil {
		c.AddAttrs(&OnUpdate{A: *cs.OnUpdate})
	}
	if cs.AutoInc {
		c.AddAttrs(&AutoIncrement{})
	}
	if cs.Comment != nil {
		c.SetComment(*cs.Comment)
	}
	return c, nil
}

// link connects the table keys and constraints to their
// columns, which may reside in sibling tables.
func (ts *tableSpec) link(t *schema.Table, s *schema.Schema) error {
	if ts.PK != nil {
		columns, err := resolveColumns(ts.PK.Columns, t, s)
		if err != nil {
			return err
		}
		t.SetPrimaryKey(schema.NewPrimaryKey(columns...))
	}
	for _, is := range ts.Indexes {
		columns, err := resolveColumns(is.Columns, t, s)
		if err != nil {
			return err
		}
		idx := schema.NewIndex(is.Name).SetUnique(is.Unique).AddColumns(columns...)
		if is.Comment != nil {
			idx.SetComment(*is.Comment)
		}
		t.AddIndexes(idx)
	}
	for _, fs := range ts.FKs {
		if len(fs.RefColumns) == 0 {
			return fmt.Errorf("mysql: missing references for foreign key %q", fs.Symbol)
		}
		columns, err := resolveColumns(fs.Columns, t, s)
		if err != nil {
			return err
		}
		refColumns, err := resolveColumns(fs.RefColumns, t, s)
		if err != nil {
			return err
		}
		refTable, ok := s.Table(fs.RefColumns[0].Table)
		if !ok {
			return fmt.Errorf("mysql: unknown table %q", fs.RefColumns[0].Table)
		}
		fk := schema.NewForeignKey(fs.Symbol).
			AddColumns(columns...).
			SetRefTable(refTable).
			AddRefColumns(refColumns...)
		if fs.OnUpdate != nil {
			fk.SetOnUpdate(schema.ReferenceOption(*fs.OnUpdate))
		}
		if fs.OnDelete != nil {
			fk.SetOnDelete(schema.ReferenceOption(*fs.OnDelete))
		}
		t.AddForeignKeys(fk)
	}
	for _, ck := range ts.Checks {
		c := schema.NewCheck().SetName(ck.Name).SetExpr(ck.Expr)
		if ck.Enforced {
			c.AddAttrs(&Enforced{})
		}
		t.AddChecks(c)
	}
	return nil
}

func resolveColumns(refs []*columnRef, t *schema.Table, s *schema.Schema) ([]*schema.Column, error) {
	columns := make([]*schema.Column, 0, len(refs))
	for _, ref := range refs {
		rt := t
		if ref.Table != t.Name {
			var ok bool
			if rt, ok = s.Table(ref.Table); !ok {
				return nil, fmt.Errorf("mysql: unknown table %q", ref.Table)
			}
		}
		c, ok := rt.Column(ref.Name)
		if !ok {
			return nil, fmt.Errorf("mysql: unknown column %q in table %q", ref.Name, rt.Name)
		}
		columns = append(columns, c)
	}
	return columns, nil
}

// evalContext does an initial pass through the file and populates the
// variables that schema, column and reference-option expressions are
// evaluated against.
func evalContext(f *hcl.File) (*hcl.EvalContext, error) {
	var fi struct {
		Schemas []struct {
			Name   string   `hcl:",label"`
			Remain hcl.Body `hcl:",remain"`
		} `hcl:"schema,block"`
		Tables []struct {
			Name    string `hcl:",label"`
			Columns []struct {
				Name   string   `hcl:",label"`
				Remain hcl.Body `hcl:",remain"`
			} `hcl:"column,block"`
			Remain hcl.Body `hcl:",remain"`
		} `hcl:"table,block"`
		Remain hcl.Body `hcl:",remain"`
	}
	if diag := gohcl.DecodeBody(f.Body, &hcl.EvalContext{}, &fi); diag.HasErrors() {
		return nil, diag
	}
	vars := map[string]cty.Value{
		"reference_option": cty.MapVal(map[string]cty.Value{
			"no_action":   cty.StringVal(string(schema.NoAction)),
			"restrict":    cty.StringVal(string(schema.Restrict)),
			"cascade":     cty.StringVal(string(schema.Cascade)),
			"set_null":    cty.StringVal(string(schema.SetNull)),
			"set_default": cty.StringVal(string(schema.SetDefault)),
		}),
	}
	if len(fi.Schemas) > 0 {
		schemas := make(map[string]cty.Value, len(fi.Schemas))
		for _, sch := range fi.Schemas {
			ref, err := gocty.ToCtyValue(&schemaRef{Name: sch.Name}, ctySchemaRef)
			if err != nil {
				return nil, fmt.Errorf("mysql: create ref to schema %q: %w", sch.Name, err)
			}
			schemas[sch.Name] = ref
		}
		vars["schema"] = cty.MapVal(schemas)
	}
	if len(fi.Tables) > 0 {
		tables := make(map[string]cty.Value, len(fi.Tables))
		for _, tab := range fi.Tables {
			columns := make(map[string]cty.Value, len(tab.Columns))
			for _, col := range tab.Columns {
				ref, err := gocty.ToCtyValue(&columnRef{Name: col.Name, Table: tab.Name}, ctyColumnRef)
				if err != nil {
					return nil, fmt.Errorf("mysql: create ref to column %q in table %q: %w", col.Name, tab.Name, err)
				}
				columns[col.Name] = ref
			}
			cv := cty.MapValEmpty(ctyColumnRef)
			if len(columns) > 0 {
				cv = cty.MapVal(columns)
			}
			tables[tab.Name] = cty.ObjectVal(map[string]cty.Value{
				"column": cv,
			})
		}
		vars["table"] = cty.MapVal(tables)
	}
	return &hcl.EvalContext{Variables: vars}, nil
}

var (
	ctySchemaRef = cty.Object(map[string]cty.Type{
		"name": cty.String,
	})
	ctyColumnRef = cty.Object(map[string]cty.Type{
		"name":  cty.String,
		"table": cty.String,
	})
)

func partRefs(t *schema.Table, parts []*schema.IndexPart) ([]string, error) {
	refs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.C == nil {
			return nil, fmt.Errorf("mysql: expression key parts are not supported in spec for table %q", t.Name)
		}
		refs = append(refs, fmt.Sprintf("table.%s.column.%s", t.Name, p.C.Name))
	}
	return refs, nil
}

func columnRefs(t *schema.Table, columns []*schema.Column) []string {
	refs := make([]string, 0, len(columns))
	for _, c := range columns {
		refs = append(refs, fmt.Sprintf("table.%s.column.%s", t.Name, c.Name))
	}
	return refs
}

func refOptExpr(opt schema.ReferenceOption) (string, error) {
	switch opt {
	case schema.Restrict:
		return "reference_option.restrict", nil
	case schema.NoAction:
		return "reference_option.no_action", nil
	case schema.Cascade:
		return "reference_option.cascade", nil
	case schema.SetNull:
		return "reference_option.set_null", nil
	case schema.SetDefault:
		return "reference_option.set_default", nil
	default:
		return "", fmt.Errorf("mysql: unknown reference option %q", opt)
	}
}

func hclRawTokens(s string) hclwrite.Tokens {
	return hclwrite.Tokens{
		&hclwrite.Token{
			Type:  hclsyntax.TokenIdent,
			Bytes: []byte(s),
		},
	}
}

func hclRawList(items []string) hclwrite.Tokens {
	t := hclwrite.Tokens{&hclwrite.Token{
		Type:  hclsyntax.TokenOBrack,
		Bytes: []byte("["),
	}}
	for i, item := range items {
		if i > 0 {
			t = append(t, &hclwrite.Token{
				Type:  hclsyntax.TokenComma,
				Bytes: []byte(","),
			})
		}
		t = append(t, &hclwrite.Token{
			Type:  hclsyntax.TokenIdent,
			Bytes: []byte(item),
		})
	}
	return append(t, &hclwrite.Token{
		Type:  hclsyntax.TokenCBrack,
		Bytes: []byte("]"),
	})
}
