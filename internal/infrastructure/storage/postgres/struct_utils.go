package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns returns the "db" tag of every field of T, descending into
// embedded structs. Fields tagged "-" or untagged are skipped.
// Repositories call it once at package init to build their column lists.
func ExtractDBColumns[T any]() []string {
	var zero T
	meta := metadataFor(reflect.TypeOf(zero))
	return meta.columns(reflect.TypeOf(zero))
}

type fieldInfo struct {
	index int
	dbTag string
}

// typeMetadata caches the tagged and embedded fields of one struct type.
type typeMetadata struct {
	fields   []fieldInfo
	embedded []int
}

var typeCache sync.Map // map[reflect.Type]*typeMetadata

func metadataFor(t reflect.Type) *typeMetadata {
	if t == nil {
		return &typeMetadata{}
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{}
	if t.Kind() == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.Anonymous {
				meta.embedded = append(meta.embedded, i)
				continue
			}
			tag := field.Tag.Get("db")
			if tag == "" || tag == "-" {
				continue
			}
			meta.fields = append(meta.fields, fieldInfo{index: i, dbTag: tag})
		}
	}

	actual, _ := typeCache.LoadOrStore(t, meta)
	return actual.(*typeMetadata)
}

// columns lists tags in declaration order, embedded structs first in place.
func (m *typeMetadata) columns(t reflect.Type) []string {
	if t == nil {
		return nil
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	var cols []string
	fi, ei := 0, 0
	for i := 0; i < t.NumField(); i++ {
		switch {
		case ei < len(m.embedded) && m.embedded[ei] == i:
			ft := t.Field(i).Type
			cols = append(cols, metadataFor(ft).columns(ft)...)
			ei++
		case fi < len(m.fields) && m.fields[fi].index == i:
			cols = append(cols, m.fields[fi].dbTag)
			fi++
		}
	}
	return cols
}

// StructToMap converts a struct (or pointer to one) to a column/value map
// using its "db" tags. Used to feed squirrel's SetMap.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := metadataFor(rv.Type())
	res := make(map[string]any, len(meta.fields))
	for _, fi := range meta.fields {
		res[fi.dbTag] = rv.Field(fi.index).Interface()
	}
	for _, idx := range meta.embedded {
		for k, val := range StructToMap(rv.Field(idx).Interface()) {
			res[k] = val
		}
	}
	return res
}
