package jsandy

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SuperJSONHeader is the response header that signals a whole response body
// was encoded with the tagged codec. Its value is the literal string "true"
// iff the body is tagged; its absence means plain JSON semantics apply.
const SuperJSONHeader = "x-is-superjson"

// wireEnvelope is the on-the-wire shape of one codec-encoded value: a plain
// JSON tree plus a side table of dotted paths to type tags, mirroring
// spec.md §3's "plain string-indexed document plus a companion type hints
// document".
type wireEnvelope struct {
	JSON any      `json:"json"`
	Meta wireMeta `json:"meta"`
}

type wireMeta struct {
	Values map[string]tag `json:"values,omitempty"`
}

// taggedSetValue is implemented by OrderedSet[T] so the codec can walk its
// elements without knowing T at compile time.
type taggedSetValue interface {
	setValues() []any
}

func (s *OrderedSet[T]) setValues() []any {
	vals := s.Values()
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// taggedMapValue is implemented by OrderedMap so the codec can walk its
// entries in insertion order.
type taggedMapValue interface {
	mapPairs() [][2]any
}

func (o *OrderedMap) mapPairs() [][2]any {
	if o.m == nil {
		return nil
	}
	out := make([][2]any, 0, o.m.Len())
	for pair := o.m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, [2]any{pair.Key, pair.Value})
	}
	return out
}

func joinPath(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + "." + seg
}

// encodeAny walks v, returning its plain-JSON-marshalable shape and
// populating hints with the dotted-path tags needed to reverse the encoding.
func encodeAny(v any, path string, hints map[string]tag) (any, error) {
	switch conc := v.(type) {
	case nil:
		return nil, nil
	case Undefined:
		hints[path] = tagUndefined
		return nil, nil
	case time.Time:
		hints[path] = tagDate
		return conc.UTC().Format(time.RFC3339Nano), nil
	case *big.Int:
		if conc == nil {
			return nil, nil
		}
		hints[path] = tagBigInt
		return conc.String(), nil
	case taggedSetValue:
		hints[path] = tagSet
		elems := conc.setValues()
		arr := make([]any, len(elems))
		for i, e := range elems {
			enc, err := encodeAny(e, joinPath(path, strconv.Itoa(i)), hints)
			if err != nil {
				return nil, err
			}
			arr[i] = enc
		}
		return arr, nil
	case taggedMapValue:
		hints[path] = tagMap
		pairs := conc.mapPairs()
		arr := make([]any, len(pairs))
		for i, p := range pairs {
			key, _ := p[0].(string)
			encVal, err := encodeAny(p[1], joinPath(path, strconv.Itoa(i)+".v"), hints)
			if err != nil {
				return nil, err
			}
			arr[i] = []any{key, encVal}
		}
		return arr, nil
	}

	rv := reflect.ValueOf(v)
	return encodeReflect(rv, path, hints)
}

func encodeReflect(rv reflect.Value, path string, hints map[string]tag) (any, error) {
	if !rv.IsValid() {
		return nil, nil
	}

	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return encodeAny(rv.Elem().Interface(), path, hints)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
			// []byte: let encoding/json base64-encode it untagged.
			return rv.Interface(), nil
		}
		if rv.IsNil() && rv.Kind() == reflect.Slice {
			return []any{}, nil
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			enc, err := encodeAny(rv.Index(i).Interface(), joinPath(path, strconv.Itoa(i)), hints)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, NewError(KindBadEncoding, "cannot encode map with non-string keys")
		}
		keys := rv.MapKeys()
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = k.String()
		}
		sort.Strings(names)
		out := make(map[string]any, len(names))
		for _, name := range names {
			enc, err := encodeAny(rv.MapIndex(reflect.ValueOf(name)).Interface(), joinPath(path, name), hints)
			if err != nil {
				return nil, err
			}
			out[name] = enc
		}
		return out, nil
	case reflect.Struct:
		out := make(map[string]any)
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue // unexported
			}
			name, omitempty, skip := jsonFieldName(field)
			if skip {
				continue
			}
			fv := rv.Field(i)
			if omitempty && isEmptyValue(fv) {
				continue
			}
			enc, err := encodeAny(fv.Interface(), joinPath(path, name), hints)
			if err != nil {
				return nil, err
			}
			out[name] = enc
		}
		return out, nil
	default:
		return rv.Interface(), nil
	}
}

func jsonFieldName(f reflect.StructField) (name string, omitempty bool, skip bool) {
	tagVal := f.Tag.Get("json")
	if tagVal == "-" {
		return "", false, true
	}
	parts := strings.Split(tagVal, ",")
	name = f.Name
	if parts[0] != "" {
		name = parts[0]
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	}
	return false
}

// decodeAny reverses encodeAny, reconstructing tagged values from the plain
// JSON tree (already unmarshaled into `any` by encoding/json, so objects are
// map[string]any, arrays are []any) using the hint table.
func decodeAny(plain any, path string, hints map[string]tag) (any, error) {
	if t, ok := hints[path]; ok {
		return decodeTagged(t, plain, path, hints)
	}

	switch v := plain.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			dec, err := decodeAny(val, joinPath(path, k), hints)
			if err != nil {
				return nil, err
			}
			out[k] = dec
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			dec, err := decodeAny(val, joinPath(path, strconv.Itoa(i)), hints)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	default:
		return v, nil
	}
}

func decodeTagged(t tag, plain any, path string, hints map[string]tag) (any, error) {
	switch t {
	case tagUndefined:
		return Undefined{}, nil
	case tagDate:
		s, ok := plain.(string)
		if !ok {
			return nil, NewError(KindBadEncoding, "date tag on non-string value")
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, NewError(KindBadEncoding, "invalid date encoding").WithCause(err)
		}
		return parsed, nil
	case tagBigInt:
		s, ok := plain.(string)
		if !ok {
			return nil, NewError(KindBadEncoding, "bigint tag on non-string value")
		}
		n := new(big.Int)
		if _, ok := n.SetString(s, 10); !ok {
			return nil, NewError(KindBadEncoding, fmt.Sprintf("invalid bigint literal %q", s))
		}
		return n, nil
	case tagSet:
		arr, ok := plain.([]any)
		if !ok {
			return nil, NewError(KindBadEncoding, "set tag on non-array value")
		}
		elems := make([]any, len(arr))
		for i, e := range arr {
			dec, err := decodeAny(e, joinPath(path, strconv.Itoa(i)), hints)
			if err != nil {
				return nil, err
			}
			elems[i] = dec
		}
		return NewOrderedSet(elems...), nil
	case tagMap:
		arr, ok := plain.([]any)
		if !ok {
			return nil, NewError(KindBadEncoding, "map tag on non-array value")
		}
		out := NewOrderedMap()
		for i, pair := range arr {
			kv, ok := pair.([]any)
			if !ok || len(kv) != 2 {
				return nil, NewError(KindBadEncoding, "malformed ordered-map pair")
			}
			key, _ := kv[0].(string)
			dec, err := decodeAny(kv[1], joinPath(path, strconv.Itoa(i)+".v"), hints)
			if err != nil {
				return nil, err
			}
			out.Set(key, dec)
		}
		return out, nil
	default:
		return nil, NewError(KindBadEncoding, fmt.Sprintf("unknown tag %q", t))
	}
}

// EncodeField encodes a single value as codec.EncodeField text, used for
// per-field request encoding (query parameters, POST body fields) per
// spec.md §4.1.
func EncodeField(v any) (string, error) {
	hints := map[string]tag{}
	plain, err := encodeAny(v, "", hints)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(wireEnvelope{JSON: plain, Meta: wireMeta{Values: hints}})
	if err != nil {
		return "", NewError(KindBadEncoding, "failed to marshal encoded field").WithCause(err)
	}
	return string(b), nil
}

// EncodeFields encodes each top-level field of v (a struct or
// map[string]any) independently, using EncodeField's always-enveloped
// per-field policy. This is what the client proxy uses to build per-field
// query parameters and POST body fields per spec.md §4.1.
func EncodeFields(v any) (map[string]string, error) {
	hints := map[string]tag{}
	plain, err := encodeAny(v, "", hints)
	if err != nil {
		return nil, err
	}
	obj, ok := plain.(map[string]any)
	if !ok {
		return nil, NewError(KindBadEncoding, "EncodeFields requires a struct or map value")
	}

	out := make(map[string]string, len(obj))
	for k, val := range obj {
		fieldHints := map[string]tag{}
		prefix := k + "."
		for p, t := range hints {
			if p == k {
				fieldHints[""] = t
			} else if strings.HasPrefix(p, prefix) {
				fieldHints[strings.TrimPrefix(p, prefix)] = t
			}
		}
		b, err := json.Marshal(wireEnvelope{JSON: val, Meta: wireMeta{Values: fieldHints}})
		if err != nil {
			return nil, NewError(KindBadEncoding, "failed to marshal encoded field").WithCause(err)
		}
		out[k] = string(b)
	}
	return out, nil
}

// DecodeField reverses EncodeField.
func DecodeField(text string) (any, error) {
	var env wireEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, NewError(KindBadEncoding, "malformed field encoding").WithCause(err)
	}
	return decodeAny(env.JSON, "", env.Meta.Values)
}

// EncodeBody encodes a whole response/value as one document per spec.md
// §4.1. tagged reports whether any value in the tree required tagging; when
// false, body is plain JSON and the caller should not set SuperJSONHeader.
func EncodeBody(v any) (body string, tagged bool, err error) {
	hints := map[string]tag{}
	plain, err := encodeAny(v, "", hints)
	if err != nil {
		return "", false, err
	}
	if len(hints) == 0 {
		b, err := json.Marshal(plain)
		if err != nil {
			return "", false, NewError(KindBadEncoding, "failed to marshal plain body").WithCause(err)
		}
		return string(b), false, nil
	}
	b, err := json.Marshal(wireEnvelope{JSON: plain, Meta: wireMeta{Values: hints}})
	if err != nil {
		return "", false, NewError(KindBadEncoding, "failed to marshal tagged body").WithCause(err)
	}
	return string(b), true, nil
}

// DecodeBody reverses EncodeBody. tagged must reflect whether the
// SuperJSONHeader was present on the response.
func DecodeBody(text string, tagged bool) (any, error) {
	if !tagged {
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, NewError(KindBadEncoding, "malformed plain body").WithCause(err)
		}
		return v, nil
	}
	var env wireEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, NewError(KindBadEncoding, "malformed tagged body").WithCause(err)
	}
	return decodeAny(env.JSON, "", env.Meta.Values)
}

// decodeJSONBody reads a request body as a flat map of field name to the
// raw per-field encoded text, per spec.md §4.1's per-field POST body
// encoding (each field value is independently codec.EncodeField'd, not the
// body as a whole).
func decodeJSONBody(r *http.Request) (map[string]string, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return map[string]string{}, nil
	}
	defer r.Body.Close()

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, NewError(KindBadEncoding, "malformed request body").WithCause(err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = string(v)
	}
	return out, nil
}

// Bind converts a decoded map[string]any (as produced by decoding each
// per-field request value) into T, a procedure's declared Input struct
// type. It is the bounded, reflection-based counterpart to encodeAny: it
// never re-derives type hints from a schema, it only maps already-decoded
// Go values (including tagged types: time.Time, *big.Int, Undefined,
// *OrderedSet[T], *OrderedMap) onto T's fields by JSON name.
func Bind[T any](src map[string]any) (T, error) {
	var out T
	rv := reflect.ValueOf(&out).Elem()
	if rv.Kind() != reflect.Struct {
		// T is not a struct (e.g. a scalar or map input): bind the whole
		// value if exactly one field was provided with an empty-ish
		// convention key, otherwise wrap the map itself.
		var whole any = src
		if v, ok := src[""]; ok && len(src) == 1 {
			whole = v
		}
		if v, err := bindValue(rv.Type(), whole); err == nil {
			rv.Set(v)
			return out, nil
		}
		return out, NewError(KindBadEncoding, fmt.Sprintf("cannot bind request fields into %s", rv.Type()))
	}

	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}
		name, _, skip := jsonFieldName(field)
		if skip {
			continue
		}
		raw, present := src[name]
		if !present {
			continue
		}
		fv, err := bindValue(field.Type, raw)
		if err != nil {
			return out, NewError(KindBadEncoding, fmt.Sprintf("field %q: %v", name, err))
		}
		rv.Field(i).Set(fv)
	}
	return out, nil
}

// bindValue converts a decoded `any` (the product of decodeAny: primitives,
// map[string]any, []any, or a tagged type) into a reflect.Value assignable
// to dst.
func bindValue(dst reflect.Type, src any) (reflect.Value, error) {
	if src == nil {
		return reflect.Zero(dst), nil
	}

	srcVal := reflect.ValueOf(src)

	if dst.Kind() == reflect.Ptr {
		inner, err := bindValue(dst.Elem(), src)
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(dst.Elem())
		ptr.Elem().Set(inner)
		return ptr, nil
	}

	if srcVal.Type().AssignableTo(dst) {
		return srcVal, nil
	}
	if srcVal.Type().ConvertibleTo(dst) && isConvertibleKind(srcVal.Kind(), dst.Kind()) {
		return srcVal.Convert(dst), nil
	}

	switch dst.Kind() {
	case reflect.Struct:
		m, ok := src.(map[string]any)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected object, got %T", src)
		}
		out := reflect.New(dst).Elem()
		for i := 0; i < dst.NumField(); i++ {
			field := dst.Field(i)
			if field.PkgPath != "" {
				continue
			}
			name, _, skip := jsonFieldName(field)
			if skip {
				continue
			}
			raw, present := m[name]
			if !present {
				continue
			}
			fv, err := bindValue(field.Type, raw)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("field %q: %w", name, err)
			}
			out.Field(i).Set(fv)
		}
		return out, nil
	case reflect.Slice:
		arr, ok := src.([]any)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected array, got %T", src)
		}
		out := reflect.MakeSlice(dst, len(arr), len(arr))
		for i, e := range arr {
			ev, err := bindValue(dst.Elem(), e)
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case reflect.Map:
		m, ok := src.(map[string]any)
		if !ok {
			return reflect.Value{}, fmt.Errorf("expected object, got %T", src)
		}
		out := reflect.MakeMapWithSize(dst, len(m))
		for k, v := range m {
			vv, err := bindValue(dst.Elem(), v)
			if err != nil {
				return reflect.Value{}, err
			}
			out.SetMapIndex(reflect.ValueOf(k), vv)
		}
		return out, nil
	case reflect.Interface:
		return srcVal, nil
	}

	return reflect.Value{}, fmt.Errorf("cannot bind %T into %s", src, dst)
}

func isConvertibleKind(src, dst reflect.Kind) bool {
	numeric := func(k reflect.Kind) bool {
		switch k {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			return true
		}
		return false
	}
	return numeric(src) && numeric(dst)
}
