// Package formstate applies field edits to deeply nested form documents
// without mutating the original value. Every struct, slice and map on the
// edited path is copied; everything off the path is shared with the input.
package formstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

var (
	ErrInvalidPath     = errors.New("invalid path")
	ErrUnknownField    = errors.New("unknown field")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrTypeMismatch    = errors.New("value type mismatch")
)

// Path addresses a leaf inside a document. Segments are either string keys
// (JSON field names) or int slice indices.
type Path []any

// ParsePath accepts "a.b[2].c" as well as "a.b.2.c".
func ParsePath(s string) (Path, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	var p Path
	for _, part := range strings.Split(s, ".") {
		name := part
		var indices []int
		if open := strings.IndexByte(part, '['); open >= 0 {
			name = part[:open]
			rest := part[open:]
			for rest != "" {
				if rest[0] != '[' {
					return nil, fmt.Errorf("%w: %q", ErrInvalidPath, s)
				}
				end := strings.IndexByte(rest, ']')
				if end < 0 {
					return nil, fmt.Errorf("%w: unclosed bracket in %q", ErrInvalidPath, s)
				}
				n, err := strconv.Atoi(rest[1:end])
				if err != nil {
					return nil, fmt.Errorf("%w: bad index in %q", ErrInvalidPath, s)
				}
				indices = append(indices, n)
				rest = rest[end+1:]
			}
		}
		switch {
		case name == "" && len(indices) == 0:
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, s)
		case name == "":
		default:
			if n, err := strconv.Atoi(name); err == nil {
				p = append(p, n)
			} else {
				p = append(p, name)
			}
		}
		for _, n := range indices {
			p = append(p, n)
		}
	}
	return p, nil
}

// MustParsePath is ParsePath for literals.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		switch s := seg.(type) {
		case int:
			fmt.Fprintf(&b, "[%d]", s)
		default:
			if i > 0 {
				b.WriteByte('.')
			}
			fmt.Fprint(&b, s)
		}
	}
	return b.String()
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1:len(p)-1]
}

// Last returns the final key of the path, or "" if it ends in an index.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	s, _ := p[len(p)-1].(string)
	return s
}

// Child returns a new path with key appended.
func (p Path) Child(key any) Path {
	out := make(Path, 0, len(p)+1)
	out = append(out, p...)
	return append(out, key)
}

// SetIn returns a copy of *state with the value at path replaced by value.
// A nil state is a no-op and yields nil.
func SetIn[T any](state *T, path Path, value any) (*T, error) {
	if state == nil {
		return nil, nil
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	updated, err := setValue(reflect.ValueOf(state).Elem(), path, path, value)
	if err != nil {
		return nil, err
	}
	out := new(T)
	reflect.ValueOf(out).Elem().Set(updated)
	return out, nil
}

func setValue(v reflect.Value, rest, full Path, leaf any) (reflect.Value, error) {
	if len(rest) == 0 {
		return convert(leaf, v.Type(), full)
	}

	switch v.Kind() {
	case reflect.Pointer:
		elem := reflect.New(v.Type().Elem()).Elem()
		if !v.IsNil() {
			elem = v.Elem()
		}
		updated, err := setValue(elem, rest, full, leaf)
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(v.Type().Elem())
		ptr.Elem().Set(updated)
		return ptr, nil

	case reflect.Interface:
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: nil value at %s", ErrInvalidPath, full)
		}
		updated, err := setValue(v.Elem(), rest, full, leaf)
		if err != nil {
			return reflect.Value{}, err
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(updated)
		return out, nil

	case reflect.Struct:
		key, ok := rest[0].(string)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: index %v on struct at %s", ErrInvalidPath, rest[0], full)
		}
		idx := fieldIndex(v.Type(), key)
		if idx < 0 {
			return reflect.Value{}, fmt.Errorf("%w: %q in %s", ErrUnknownField, key, full)
		}
		updated, err := setValue(v.Field(idx), rest[1:], full, leaf)
		if err != nil {
			return reflect.Value{}, err
		}
		cp := reflect.New(v.Type()).Elem()
		cp.Set(v)
		cp.Field(idx).Set(updated)
		return cp, nil

	case reflect.Slice:
		i, ok := rest[0].(int)
		if !ok {
			return reflect.Value{}, fmt.Errorf("%w: key %v on list at %s", ErrInvalidPath, rest[0], full)
		}
		if i < 0 || i >= v.Len() {
			return reflect.Value{}, fmt.Errorf("%w: %d at %s", ErrIndexOutOfRange, i, full)
		}
		updated, err := setValue(v.Index(i), rest[1:], full, leaf)
		if err != nil {
			return reflect.Value{}, err
		}
		cp := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(cp, v)
		cp.Index(i).Set(updated)
		return cp, nil

	case reflect.Map:
		k, err := mapKey(v.Type(), rest[0], full)
		if err != nil {
			return reflect.Value{}, err
		}
		cur := v.MapIndex(k)
		if !cur.IsValid() {
			cur = reflect.New(v.Type().Elem()).Elem()
		}
		updated, err := setValue(cur, rest[1:], full, leaf)
		if err != nil {
			return reflect.Value{}, err
		}
		cp := reflect.MakeMapWithSize(v.Type(), v.Len()+1)
		iter := v.MapRange()
		for iter.Next() {
			cp.SetMapIndex(iter.Key(), iter.Value())
		}
		cp.SetMapIndex(k, updated)
		return cp, nil
	}

	return reflect.Value{}, fmt.Errorf("%w: cannot descend into %s at %s", ErrInvalidPath, v.Kind(), full)
}

func mapKey(t reflect.Type, seg any, full Path) (reflect.Value, error) {
	if t.Key().Kind() != reflect.String {
		return reflect.Value{}, fmt.Errorf("%w: map with non-string keys at %s", ErrInvalidPath, full)
	}
	var key string
	switch s := seg.(type) {
	case string:
		key = s
	case int:
		key = strconv.Itoa(s)
	default:
		return reflect.Value{}, fmt.Errorf("%w: segment %v at %s", ErrInvalidPath, seg, full)
	}
	return reflect.ValueOf(key).Convert(t.Key()), nil
}

// convert coerces a leaf value into t. Values decoded from JSON request
// bodies arrive as float64/map[string]any and are round-tripped through
// encoding/json into the concrete leaf type.
func convert(leaf any, t reflect.Type, full Path) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	if leaf == nil {
		return out, nil
	}
	lv := reflect.ValueOf(leaf)
	if lv.Type().AssignableTo(t) {
		out.Set(lv)
		return out, nil
	}
	if lv.Kind() == reflect.String && t.Kind() == reflect.String {
		out.Set(lv.Convert(t))
		return out, nil
	}
	raw, err := json.Marshal(leaf)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %s: %v", ErrTypeMismatch, full, err)
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %s expects %s", ErrTypeMismatch, full, t)
	}
	return ptr.Elem(), nil
}

func fieldIndex(t reflect.Type, key string) int {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		if name == key {
			return i
		}
	}
	return -1
}
