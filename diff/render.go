// Package diff renders arbitrary values into canonical line-oriented text and
// compares two renderings line by line.
//
// Rendering rules:
//   - nil, nil pointers, nil maps and nil slices render as null
//   - types.Undefined renders as the bare literal undefined
//   - booleans and numbers render as their JSON literal, so 1 and 1.0 are equal
//   - strings render JSON-quoted without HTML escaping; strings holding
//     invalid UTF-8 render Go-quoted so every byte stays visible
//   - values implementing encoding.TextMarshaler render as the quoted text
//   - sequences open with "[", put each element on its own indented line and
//     close with "]"; every element but the last ends with a comma
//   - maps with string keys and structs render the same way between "{" and
//     "}", one `"key": value` entry per field, keys sorted
//   - functions, channels, complex numbers, unsafe pointers, maps with
//     non-string keys and reference cycles cannot be rendered
//
// Rendering stops at the first value that cannot be rendered and reports its
// path, e.g. $.users[2].callback.
package diff

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// Indent is prepended once per nesting level
const Indent = "  "

// RootPath names the value passed to Render in serialization errors
const RootPath = "$"

var (
	undefinedType     = reflect.TypeOf(types.Undefined)
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

// Render canonicalizes v into lines. On failure the error is a
// *types.SerializationError naming the first offending path.
func Render(v any) ([]string, error) {
	r := &renderer{visiting: make(map[visit]bool)}
	lines, err := r.render(reflect.ValueOf(v), RootPath)
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// RenderString joins the lines produced by Render
func RenderString(v any) (string, error) {
	lines, err := Render(v)
	if err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

// visit identifies a reference value currently being rendered
type visit struct {
	ptr uintptr
	typ reflect.Type
	len int
}

type renderer struct {
	visiting map[visit]bool
}

type entry struct {
	key   string
	value reflect.Value
}

func (r *renderer) render(v reflect.Value, path string) ([]string, error) {
	if !v.IsValid() {
		return []string{"null"}, nil
	}
	if v.Type() == undefinedType {
		return []string{"undefined"}, nil
	}
	if lines, ok, err := renderText(v, path); ok {
		return lines, err
	}

	switch v.Kind() {
	case reflect.Bool:
		return []string{strconv.FormatBool(v.Bool())}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return []string{strconv.FormatInt(v.Int(), 10)}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return []string{strconv.FormatUint(v.Uint(), 10)}, nil
	case reflect.Float32, reflect.Float64:
		return []string{formatFloat(v.Float())}, nil
	case reflect.String:
		s, err := quote(v.String())
		if err != nil {
			return nil, serializationError(path, err.Error())
		}
		return []string{s}, nil
	case reflect.Interface:
		if v.IsNil() {
			return []string{"null"}, nil
		}
		return r.render(v.Elem(), path)
	case reflect.Pointer:
		if v.IsNil() {
			return []string{"null"}, nil
		}
		return r.guarded(v, path, func() ([]string, error) {
			return r.render(v.Elem(), path)
		})
	case reflect.Slice:
		if v.IsNil() {
			return []string{"null"}, nil
		}
		return r.guarded(v, path, func() ([]string, error) {
			return r.renderSequence(v, path)
		})
	case reflect.Array:
		return r.renderSequence(v, path)
	case reflect.Map:
		if v.IsNil() {
			return []string{"null"}, nil
		}
		if v.Type().Key().Kind() != reflect.String {
			return nil, serializationError(path, fmt.Sprintf("map key type %s is not a string", v.Type().Key()))
		}
		return r.guarded(v, path, func() ([]string, error) {
			return r.renderMap(v, path)
		})
	case reflect.Struct:
		return r.renderStruct(v, path)
	default:
		return nil, serializationError(path, fmt.Sprintf("unsupported type %s", v.Type()))
	}
}

// guarded renders a reference value, failing if it is already being rendered
// further up the tree.
func (r *renderer) guarded(v reflect.Value, path string, fn func() ([]string, error)) ([]string, error) {
	key := visit{ptr: v.Pointer(), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		key.len = v.Len()
	}
	if r.visiting[key] {
		return nil, serializationError(path, "reference cycle")
	}
	r.visiting[key] = true
	defer delete(r.visiting, key)
	return fn()
}

func (r *renderer) renderSequence(v reflect.Value, path string) ([]string, error) {
	children := make([][]string, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		lines, err := r.render(v.Index(i), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		children = append(children, lines)
	}
	return wrap("[", "]", children), nil
}

func (r *renderer) renderMap(v reflect.Value, path string) ([]string, error) {
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: iter.Key().String(), value: iter.Value()})
	}
	return r.renderEntries(entries, path)
}

func (r *renderer) renderStruct(v reflect.Value, path string) ([]string, error) {
	t := v.Type()
	entries := make([]entry, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		entries = append(entries, entry{key: name, value: v.Field(i)})
	}
	return r.renderEntries(entries, path)
}

func (r *renderer) renderEntries(entries []entry, path string) ([]string, error) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})

	children := make([][]string, 0, len(entries))
	for _, e := range entries {
		key, err := quote(e.key)
		if err != nil {
			return nil, serializationError(path, err.Error())
		}
		lines, err := r.render(e.value, path+"."+e.key)
		if err != nil {
			return nil, err
		}
		lines[0] = key + ": " + lines[0]
		children = append(children, lines)
	}
	return wrap("{", "}", children), nil
}

// wrap joins child renderings between an opening and closing line. Children
// are indented one level and all but the last get a trailing comma on their
// final line.
func wrap(opening, closing string, children [][]string) []string {
	lines := []string{opening}
	for i, child := range children {
		last := len(child) - 1
		for j, line := range child {
			if j == last && i < len(children)-1 {
				line += ","
			}
			lines = append(lines, Indent+line)
		}
	}
	return append(lines, closing)
}

func renderText(v reflect.Value, path string) ([]string, bool, error) {
	if !v.CanInterface() || !v.Type().Implements(textMarshalerType) {
		return nil, false, nil
	}
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
		return []string{"null"}, true, nil
	}
	text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
	if err != nil {
		return nil, true, serializationError(path, err.Error())
	}
	s, err := quote(string(text))
	if err != nil {
		return nil, true, serializationError(path, err.Error())
	}
	return []string{s}, true, nil
}

// quote renders s so that distinct strings never share a rendering. JSON
// output never contains a \x escape, so the Go-quoted form of invalid UTF-8
// cannot collide with it.
func quote(s string) (string, error) {
	if !utf8.ValidString(s) {
		return strconv.Quote(s), nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func serializationError(path, reason string) *types.SerializationError {
	return &types.SerializationError{Path: path, Reason: reason}
}
