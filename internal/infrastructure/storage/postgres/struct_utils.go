package postgres

import (
	"reflect"
	"sync"

	"github.com/Masterminds/squirrel"
)

// Builder returns a squirrel builder using $n placeholders.
func Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// ExtractDBColumns lists the "db" tags of T in field order, descending into
// embedded structs. Meant for package-level column lists.
//
//	var counterColumns = postgres.ExtractDBColumns[numerator.Counter]()
func ExtractDBColumns[T any]() []string {
	var zero T
	meta := metadataFor(reflect.TypeOf(zero))
	return meta.columns()
}

type taggedField struct {
	index  int
	column string
}

type structMeta struct {
	fields   []taggedField
	embedded []*embeddedMeta
}

type embeddedMeta struct {
	index int
	meta  *structMeta
}

func (m *structMeta) columns() []string {
	if m == nil {
		return nil
	}
	var cols []string
	for _, f := range m.fields {
		cols = append(cols, f.column)
	}
	for _, e := range m.embedded {
		cols = append(cols, e.meta.columns()...)
	}
	return cols
}

var metaCache sync.Map // reflect.Type -> *structMeta

func metadataFor(t reflect.Type) *structMeta {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := metaCache.Load(t); ok {
		return cached.(*structMeta)
	}

	meta := &structMeta{}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.Anonymous {
				meta.embedded = append(meta.embedded, &embeddedMeta{index: i, meta: metadataFor(field.Type)})
				continue
			}
			tag := field.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			meta.fields = append(meta.fields, taggedField{index: i, column: tag})
		}
	}

	actual, _ := metaCache.LoadOrStore(t, meta)
	return actual.(*structMeta)
}

// StructToMap maps "db" tags to field values, ready for squirrel SetMap.
// Fields tagged "-" or untagged are skipped.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	out := make(map[string]any)
	fillMap(out, rv, metadataFor(rv.Type()))
	return out
}

func fillMap(out map[string]any, rv reflect.Value, meta *structMeta) {
	for _, f := range meta.fields {
		out[f.column] = rv.Field(f.index).Interface()
	}
	for _, e := range meta.embedded {
		inner := rv.Field(e.index)
		if inner.Kind() == reflect.Ptr {
			if inner.IsNil() {
				continue
			}
			inner = inner.Elem()
		}
		if inner.Kind() == reflect.Struct {
			fillMap(out, inner, e.meta)
		}
	}
}

// PickColumns keeps only the entries of data whose key is in cols.
func PickColumns(data map[string]any, cols []string) map[string]any {
	out := make(map[string]any, len(cols))
	for _, c := range cols {
		if v, ok := data[c]; ok {
			out[c] = v
		}
	}
	return out
}
