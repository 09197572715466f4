// Copyright 2021-present The SchemaKit Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"fmt"
	"strings"

	"github.com/schemakit/schemakit/sql/internal/sqlx"
	"github.com/schemakit/schemakit/sql/schema"
)

// A diff provides a MySQL implementation for sqlx.DiffDriver.
type diff struct{ conn }

// SchemaAttrDiff returns a changeset for migrating schema attributes from one state to the other.
func (d *diff) SchemaAttrDiff(from, to *schema.Schema) []schema.Change {
	var (
		changes []schema.Change
		top     []schema.Attr
	)
	if from.Realm != nil {
		top = from.Realm.Attrs
	}
	// Charset change.
	if change := d.charsetChange(from.Attrs, top, to.Attrs); change != noChange {
		changes = append(changes, change)
	}
	// Collation change.
	if change := d.collationChange(from.Attrs, top, to.Attrs); change != noChange {
		changes = append(changes, change)
	}
	return changes
}

// TableAttrDiff returns a changeset for migrating table attributes from one state to the other.
func (d *diff) TableAttrDiff(from, to *schema.Table) ([]schema.Change, error) {
	var (
		changes []schema.Change
		top     []schema.Attr
	)
	if from.Schema != nil {
		top = from.Schema.Attrs
	}
	if err := d.defaultAttrs(&to.Attrs); err != nil {
		return nil, err
	}
	// Charset change.
	if change := d.charsetChange(from.Attrs, top, to.Attrs); change != noChange {
		changes = append(changes, change)
	}
	// Collation change.
	if change := d.collationChange(from.Attrs, top, to.Attrs); change != noChange {
		changes = append(changes, change)
	}
	// Auto-increment change.
	if change := autoIncChange(from.Attrs, to.Attrs); change != noChange {
		changes = append(changes, change)
	}
	if !d.SupportsCheck() && len(checks(to.Attrs)) > 0 {
		return nil, fmt.Errorf("version %q does not support CHECK constraints", d.V)
	}
	return append(changes, sqlx.CheckDiff(from, to, func(c1, c2 *schema.Check) bool {
		return enforced(c1.Attrs) == enforced(c2.Attrs)
	})...), nil
}

// ColumnChange returns the schema changes (if any) for migrating one column to the other.
func (d *diff) ColumnChange(_ *schema.Table, from, to *schema.Column) (schema.ChangeKind, error) {
	change := sqlx.CommentChange(from.Attrs, to.Attrs)
	if from.Type.Null != to.Type.Null {
		change |= schema.ChangeNull
	}
	changed, err := d.typeChanged(from, to)
	if err != nil {
		return schema.NoChange, err
	}
	if changed {
		change |= schema.ChangeType
	}
	if changed := d.defaultChanged(from, to); changed {
		change |= schema.ChangeDefault
	}
	if changed := d.generatedChanged(from, to); changed {
		change |= schema.ChangeGenerated
	}
	return change, nil
}

// IndexAttrChanged reports if the index attributes were changed.
func (*diff) IndexAttrChanged(from, to []schema.Attr) bool {
	return indexType(from).T != indexType(to).T
}

// IndexPartAttrChanged reports if the index-part attributes were changed.
func (*diff) IndexPartAttrChanged(from, to []schema.Attr) bool {
	var s1, s2 SubPart
	return sqlx.Has(from, &s1) != sqlx.Has(to, &s2) || s1.Len != s2.Len
}

// ReferenceChanged reports if the foreign key referential action was changed.
func (*diff) ReferenceChanged(from, to schema.ReferenceOption) bool {
	// According to MySQL docs, foreign key constraints are checked
	// immediately, so NO ACTION is the same as RESTRICT. Specifying
	// RESTRICT (or NO ACTION) is the same as omitting the ON DELETE
	// or ON UPDATE clause.
	if from == "" || from == schema.Restrict {
		from = schema.NoAction
	}
	if to == "" || to == schema.Restrict {
		to = schema.NoAction
	}
	return from != to
}

// typeChanged reports if the column type was changed.
func (d *diff) typeChanged(from, to *schema.Column) (bool, error) {
	fromT, toT := from.Type.Type, to.Type.Type
	if fromT == nil || toT == nil {
		return false, fmt.Errorf("mysql: missing type information for column %q", from.Name)
	}
	if reflectType(fromT) != reflectType(toT) {
		return true, nil
	}
	var changed bool
	switch fromT := fromT.(type) {
	case *schema.BoolType:
		changed = false
	case *schema.IntegerType:
		toT := toT.(*schema.IntegerType)
		ft, tt := fromT.T, toT.T
		// MySQL v8.0.19 dropped the display width
		// information from the information schema.
		if d.SupportsDisplayWidth() {
			p1, _, _, err := parseColumn(ft)
			if err != nil {
				return false, err
			}
			p2, _, _, err := parseColumn(tt)
			if err != nil {
				return false, err
			}
			ft, tt = p1[0], p2[0]
		}
		fromW, toW := displayWidth(fromT.Attrs), displayWidth(toT.Attrs)
		changed = ft != tt || fromT.Unsigned != toT.Unsigned ||
			(fromW != nil) != (toW != nil) || (fromW != nil && fromW.N != toW.N)
	case *schema.DecimalType:
		toT := toT.(*schema.DecimalType)
		changed = fromT.T != toT.T || fromT.Unsigned != toT.Unsigned ||
			fromT.Precision != toT.Precision || fromT.Scale != toT.Scale
	case *schema.FloatType:
		toT := toT.(*schema.FloatType)
		changed = fromT.T != toT.T || fromT.Unsigned != toT.Unsigned ||
			fromT.Precision != toT.Precision
	case *schema.BinaryType:
		toT := toT.(*schema.BinaryType)
		changed = fromT.T != toT.T || fromT.Size != toT.Size
	case *schema.StringType:
		toT := toT.(*schema.StringType)
		changed = fromT.T != toT.T || fromT.Size != toT.Size
	case *schema.EnumType:
		toT := toT.(*schema.EnumType)
		changed = !valuesEqual(fromT.Values, toT.Values)
	case *schema.JSONType:
		toT := toT.(*schema.JSONType)
		changed = fromT.T != toT.T
	case *schema.SpatialType:
		toT := toT.(*schema.SpatialType)
		changed = fromT.T != toT.T
	case *schema.TimeType:
		toT := toT.(*schema.TimeType)
		changed = fromT.T != toT.T || sqlx.V(fromT.Precision) != sqlx.V(toT.Precision)
	case *BitType:
		toT := toT.(*BitType)
		changed = fromT.T != toT.T || fromT.Size != toT.Size
	case *SetType:
		toT := toT.(*SetType)
		changed = !valuesEqual(fromT.Values, toT.Values)
	default:
		return false, &sqlx.UnsupportedTypeError{Type: fromT}
	}
	return changed, nil
}

// defaultChanged reports if the column default was changed.
func (d *diff) defaultChanged(from, to *schema.Column) bool {
	d1, ok1 := defaultValue(from)
	d2, ok2 := defaultValue(to)
	switch {
	case ok1 != ok2:
		return true
	case !ok1:
		return false
	case d1 == d2:
		return false
	}
	// Literal defaults may be reported quoted by the information schema.
	return strings.Trim(d1, "'\"") != strings.Trim(d2, "'\"")
}

// generatedChanged reports if the generation expression of the column was changed.
func (d *diff) generatedChanged(from, to *schema.Column) bool {
	var g1, g2 schema.GeneratedExpr
	switch has1, has2 := sqlx.Has(from.Attrs, &g1), sqlx.Has(to.Attrs, &g2); {
	case has1 != has2:
		return true
	case !has1:
		return false
	default:
		return sqlx.MayWrap(g1.Expr) != sqlx.MayWrap(g2.Expr) ||
			storedOrVirtual(g1.Type) != storedOrVirtual(g2.Type)
	}
}

// collationChange returns the schema change for migrating the collation if
// it was changed and its not the default attribute inherited from its parent.
func (d *diff) collationChange(from, top, to []schema.Attr) schema.Change {
	var fromC, topC, toC schema.Collation
	switch fromHas, topHas, toHas := sqlx.Has(from, &fromC), sqlx.Has(top, &topC), sqlx.Has(to, &toC); {
	case !fromHas && !toHas:
	case !fromHas:
		return &schema.AddAttr{
			A: &toC,
		}
	case !toHas:
		if !topHas || fromC.V != topC.V {
			return &schema.DropAttr{
				A: &fromC,
			}
		}
	case fromC.V != toC.V:
		return &schema.ModifyAttr{
			From: &fromC,
			To:   &toC,
		}
	}
	return noChange
}

// charsetChange returns the schema change for migrating the charset if
// it was changed and its not the default attribute inherited from its parent.
func (d *diff) charsetChange(from, top, to []schema.Attr) schema.Change {
	var fromC, topC, toC schema.Charset
	switch fromHas, topHas, toHas := sqlx.Has(from, &fromC), sqlx.Has(top, &topC), sqlx.Has(to, &toC); {
	case !fromHas && !toHas:
	case !fromHas:
		return &schema.AddAttr{
			A: &toC,
		}
	case !toHas:
		if !topHas || fromC.V != topC.V {
			return &schema.DropAttr{
				A: &fromC,
			}
		}
	case fromC.V != toC.V:
		return &schema.ModifyAttr{
			From: &fromC,
			To:   &toC,
		}
	}
	return noChange
}

// defaultAttrs completes the desired charset and collation attributes in case
// only one of them was defined. The information schema reports both, and the
// missing one resolves to the default of its defined pair.
func (d *diff) defaultAttrs(attrs *[]schema.Attr) error {
	var (
		charset schema.Charset
		collate schema.Collation
	)
	switch hasCharset, hasCollate := sqlx.Has(*attrs, &charset), sqlx.Has(*attrs, &collate); {
	case hasCharset == hasCollate:
	case hasCharset:
		c2c, err := d.CharsetToCollate(d.ExecQuerier)
		if err != nil {
			return err
		}
		v, ok := c2c[charset.V]
		if !ok {
			return fmt.Errorf("mysql: unknown character set %q", charset.V)
		}
		*attrs = append(*attrs, &schema.Collation{V: v})
	case hasCollate:
		c2c, err := d.CollateToCharset(d.ExecQuerier)
		if err != nil {
			return err
		}
		v, ok := c2c[collate.V]
		if !ok {
			return fmt.Errorf("mysql: unknown collation %q", collate.V)
		}
		*attrs = append(*attrs, &schema.Charset{V: v})
	}
	return nil
}

// autoIncChange returns the schema change for changing the AUTO_INCREMENT counter.
// Note, the counter cannot be reset to a lower value than the current one.
func autoIncChange(from, to []schema.Attr) schema.Change {
	var fromA, toA AutoIncrement
	if sqlx.Has(from, &fromA) && sqlx.Has(to, &toA) && toA.V > fromA.V {
		return &schema.ModifyAttr{
			From: &fromA,
			To:   &toA,
		}
	}
	return noChange
}

// indexType returns the index type from its attribute.
// The default type is BTREE if no type was specified.
func indexType(attr []schema.Attr) *IndexType {
	t := &IndexType{T: IndexTypeBTree}
	if sqlx.Has(attr, t) {
		t.T = strings.ToUpper(t.T)
	}
	return t
}

// enforced reports if the CHECK constraint object was marked with the Enforced attribute.
func enforced(attr []schema.Attr) bool {
	return sqlx.Has(attr, &Enforced{})
}

// noChange describes a zero change.
var noChange struct{ schema.Change }

func checks(attr []schema.Attr) (checks []*schema.Check) {
	for i := range attr {
		if c, ok := attr[i].(*schema.Check); ok {
			checks = append(checks, c)
		}
	}
	return checks
}

func displayWidth(attr []schema.Attr) *DisplayWidth {
	var (
		z *ZeroFill
		d *DisplayWidth
	)
	for i := range attr {
		switch at := attr[i].(type) {
		case *ZeroFill:
			z = at
		case *DisplayWidth:
			d = at
		}
	}
	// Accept the display width only if
	// the zerofill attribute is defined.
	if z == nil || d == nil {
		return nil
	}
	return d
}

// defaultValue returns the string represents the DEFAULT of a column.
func defaultValue(c *schema.Column) (string, bool) {
	switch x := c.Default.(type) {
	case nil:
		return "", false
	case *schema.Literal:
		return x.V, true
	case *schema.RawExpr:
		return x.X, true
	default:
		return "", false
	}
}

// storedOrVirtual returns the type of the generated
// column, defaulting to VIRTUAL.
func storedOrVirtual(s string) string {
	if s = strings.ToUpper(s); s == "" {
		return virtual
	}
	return s
}

func valuesEqual(v1, v2 []string) bool {
	if len(v1) != len(v2) {
		return false
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			return false
		}
	}
	return true
}

func reflectType(t schema.Type) string {
	return fmt.Sprintf("%T", t)
}
