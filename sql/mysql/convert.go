// Copyright 2021-present The SchemaKit Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package mysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/schemakit/schemakit/sql/internal/sqlx"
	"github.com/schemakit/schemakit/sql/schema"
)

// FormatType converts schema type to its column form in the database.
// An error is returned if the type cannot be recognized.
func FormatType(t schema.Type) (string, error) {
	var f string
	switch t := t.(type) {
	case *BitType:
		f = strings.ToLower(t.T)
		if t.Size > 0 {
			f = fmt.Sprintf("%s(%d)", f, t.Size)
		}
	case *schema.BoolType:
		// Map all flavors to a single form.
		f = strings.ToLower(t.T)
	case *schema.BinaryType:
		f = strings.ToLower(t.T)
		if (f == tBinary || f == tVarBinary) && t.Size > 0 {
			f = fmt.Sprintf("%s(%d)", f, t.Size)
		}
	case *schema.DecimalType:
		if f = strings.ToLower(t.T); f == "" {
			f = tDecimal
		}
		switch p, s := t.Precision, t.Scale; {
		case p == 0 && s == 0:
		case s == 0:
			f = fmt.Sprintf("%s(%d)", f, p)
		default:
			f = fmt.Sprintf("%s(%d,%d)", f, p, s)
		}
		if t.Unsigned {
			f += " unsigned"
		}
	case *schema.EnumType:
		f = fmt.Sprintf("%s(%s)", tEnum, formatValues(t.Values))
	case *SetType:
		f = fmt.Sprintf("%s(%s)", tSet, formatValues(t.Values))
	case *schema.FloatType:
		f = strings.ToLower(t.T)
		if t.Precision > 0 {
			f = fmt.Sprintf("%s(%d)", f, t.Precision)
		}
		if t.Unsigned {
			f += " unsigned"
		}
	case *schema.IntegerType:
		f = strings.ToLower(t.T)
		if t.Unsigned {
			f += " unsigned"
		}
	case *schema.JSONType:
		f = strings.ToLower(t.T)
	case *schema.StringType:
		if f = strings.ToLower(t.T); f == "" {
			f = tVarchar
		}
		if (strings.HasPrefix(f, tChar) || strings.HasPrefix(f, tVarchar)) && t.Size > 0 {
			f = fmt.Sprintf("%s(%d)", f, t.Size)
		}
	case *schema.SpatialType:
		f = strings.ToLower(t.T)
	case *schema.TimeType:
		f = strings.ToLower(t.T)
		if t.Precision != nil && *t.Precision > 0 {
			f = fmt.Sprintf("%s(%d)", f, *t.Precision)
		}
	case *schema.UnsupportedType:
		return "", fmt.Errorf("mysql: unsupported type: %q", t.T)
	default:
		return "", fmt.Errorf("mysql: invalid schema type: %T", t)
	}
	return f, nil
}

// ParseType returns the schema.Type value represented by the given raw type.
// The raw value is expected to follow the format in MySQL information schema.
func ParseType(raw string) (schema.Type, error) {
	parts, size, unsigned, err := parseColumn(raw)
	if err != nil {
		return nil, err
	}
	switch t := parts[0]; t {
	case tBit:
		return &BitType{
			T:    t,
			Size: int(size),
		}, nil
	case tTinyInt, tSmallInt, tMediumInt, tInt, tBigInt:
		if size == 1 {
			return &schema.BoolType{
				T: "bool",
			}, nil
		}
		it := &schema.IntegerType{
			T:        t,
			Unsigned: unsigned,
		}
		// The display width is accepted only alongside
		// the deprecated zerofill attribute.
		if zerofill(parts) && size > 0 {
			it.Attrs = []schema.Attr{
				&DisplayWidth{N: int(size)},
				&ZeroFill{A: "zerofill"},
			}
		}
		return it, nil
	case tNumeric, tDecimal:
		dt := &schema.DecimalType{
			T:        t,
			Unsigned: unsigned,
		}
		if len(parts) > 1 && number(parts[1]) {
			p, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse precision %q", parts[1])
			}
			dt.Precision = int(p)
		}
		if len(parts) > 2 && number(parts[2]) {
			s, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse scale %q", parts[2])
			}
			dt.Scale = int(s)
		}
		return dt, nil
	case tFloat, tDouble, tReal:
		ft := &schema.FloatType{
			T:        t,
			Unsigned: unsigned,
		}
		if len(parts) > 1 && number(parts[1]) {
			p, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("parse precision %q", parts[1])
			}
			ft.Precision = int(p)
		}
		return ft, nil
	case tBinary, tVarBinary:
		return &schema.BinaryType{
			T:    t,
			Size: int(size),
		}, nil
	case tTinyBlob, tMediumBlob, tBlob, tLongBlob:
		return &schema.BinaryType{
			T: t,
		}, nil
	case tChar, tVarchar:
		return &schema.StringType{
			T:    t,
			Size: int(size),
		}, nil
	case tTinyText, tMediumText, tText, tLongText:
		return &schema.StringType{
			T: t,
		}, nil
	case tEnum, tSet:
		values := make([]string, 0, len(parts)-1)
		for _, e := range parts[1:] {
			values = append(values, strings.Trim(e, "'"))
		}
		if t == tEnum {
			return &schema.EnumType{
				T:      t,
				Values: values,
			}, nil
		}
		return &SetType{
			Values: values,
		}, nil
	case tDate, tDateTime, tTime, tTimestamp, tYear:
		tt := &schema.TimeType{
			T: t,
		}
		if len(parts) > 1 && number(parts[1]) {
			p, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, fmt.Errorf("parse precision %q", parts[1])
			}
			tt.Precision = sqlx.P(p)
		}
		return tt, nil
	case tJSON:
		return &schema.JSONType{
			T: t,
		}, nil
	case tPoint, tMultiPoint, tLineString, tMultiLineString, tPolygon, tMultiPolygon, tGeometry, tGeoCollection, tGeometryCollection:
		return &schema.SpatialType{
			T: t,
		}, nil
	default:
		return &schema.UnsupportedType{
			T: t,
		}, nil
	}
}

// parseColumn returns column parts, size and signed-info from a MySQL type.
func parseColumn(typ string) (parts []string, size int64, unsigned bool, err error) {
	parts = strings.FieldsFunc(typ, func(r rune) bool {
		return r == '(' || r == ')' || r == ' ' || r == ','
	})
	if len(parts) == 0 {
		return nil, 0, false, fmt.Errorf("parse column type %q", typ)
	}
	switch parts[0] {
	case tTinyInt, tSmallInt, tMediumInt, tInt, tBigInt,
		tDecimal, tNumeric, tFloat, tDouble, tReal:
		unsigned = attr(parts, "unsigned")
		if len(parts) > 1 && number(parts[1]) {
			size, err = strconv.ParseInt(parts[1], 10, 64)
		}
	case tBinary, tVarBinary, tChar, tVarchar:
		if len(parts) > 1 {
			size, err = strconv.ParseInt(parts[1], 10, 64)
		}
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("parse %q to int: %w", typ, err)
	}
	return parts, size, unsigned, nil
}

func attr(parts []string, attr string) bool {
	for _, p := range parts[1:] {
		if p == attr {
			return true
		}
	}
	return false
}

func zerofill(parts []string) bool {
	return attr(parts, "zerofill")
}

func number(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func formatValues(vs []string) string {
	values := make([]string, len(vs))
	for i := range vs {
		values[i] = vs[i]
		if !sqlx.IsQuoted(values[i], '"', '\'') {
			values[i] = "'" + values[i] + "'"
		}
	}
	return strings.Join(values, ",")
}
