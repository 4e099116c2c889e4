package schema

import (
	"github.com/localfirst/ldb/pkg/crdt"
	"github.com/localfirst/ldb/pkg/errors"
	"github.com/localfirst/ldb/pkg/path"
)

// Validate checks that the live dot store rooted at base matches schema s,
// per spec.md §4.1's "schema validation" paragraph and invariant 4 (for any
// path, the target schema and stored kind agree). It is structural: it does
// not require that base actually hold anything (an absent prefix always
// validates, mirroring the Rust original's `(Self::Null, _) => true` /
// `(_, HDotStore::Null) => true` symmetry for an unwritten store).
func Validate(st *crdt.State, base path.Path, s *Schema) error {
	if s == nil || s.Kind == KindNull {
		return nil
	}
	live := st.ScanPrefix(base)
	if len(live) == 0 {
		return nil
	}
	switch s.Kind {
	case KindFlag:
		return nil
	case KindReg:
		for _, v := range live {
			prim, ok := registerValue(v)
			if !ok {
				continue
			}
			if prim.Kind != s.Prim {
				return errors.New(errors.SchemaMismatch, "register at %v: expected primitive kind %v, got %v", base, s.Prim, prim.Kind)
			}
		}
		return nil
	case KindTable:
		children := childKeys(live, base)
		for _, k := range children {
			if k.Kind != s.Prim {
				return errors.New(errors.SchemaMismatch, "table key at %v: expected kind %v, got %v", base, s.Prim, k.Kind)
			}
			if err := Validate(st, Entry(base, k), s.Inner); err != nil {
				return err
			}
		}
		return nil
	case KindStruct:
		fields := childFields(live, base)
		for _, f := range fields {
			fs, ok := s.Fields[f]
			if !ok {
				return errors.New(errors.SchemaMismatch, "unexpected field %q at %v", f, base)
			}
			if err := Validate(st, base.Append(path.SegField(f)), fs); err != nil {
				return err
			}
		}
		return nil
	case KindArray:
		if s.Inner != nil && s.Inner.Kind == KindReg {
			for _, e := range crdtArrayElements(st, base) {
				prim, err := path.DecodePrimitive(e)
				if err != nil {
					return errors.Wrap(errors.SchemaMismatch, err, "array value at %v", base)
				}
				if prim.Kind != s.Inner.Prim {
					return errors.New(errors.SchemaMismatch, "array value at %v: expected kind %v, got %v", base, s.Inner.Prim, prim.Kind)
				}
			}
		}
		return nil
	default:
		return errors.New(errors.SchemaMismatch, "unknown schema kind %v", s.Kind)
	}
}

// Entry mirrors crdt.Entry: the sub-path a table key's value lives under.
func Entry(base path.Path, key path.Primitive) path.Path {
	return base.Append(path.SegKey(key))
}

func childKeys(live map[string][]byte, base path.Path) []path.Primitive {
	seen := map[string]path.Primitive{}
	for k := range live {
		rest := path.Path(k[len(base):])
		seg, ok := rest.First()
		if !ok || seg.Kind != path.KindKey {
			continue
		}
		seen[seg.Key.String()] = seg.Key
	}
	out := make([]path.Primitive, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	return out
}

func childFields(live map[string][]byte, base path.Path) []string {
	seen := map[string]bool{}
	for k := range live {
		rest := path.Path(k[len(base):])
		seg, ok := rest.First()
		if !ok || seg.Kind != path.KindField {
			continue
		}
		seen[seg.Field] = true
	}
	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	return out
}

// registerValue decodes an MV-Register leaf's value payload as a Primitive.
func registerValue(raw []byte) (path.Primitive, bool) {
	prim, err := path.DecodePrimitive(raw)
	if err != nil {
		return path.Primitive{}, false
	}
	return prim, true
}

func crdtArrayElements(st *crdt.State, base path.Path) [][]byte {
	var out [][]byte
	for _, e := range crdt.List(st, base) {
		out = append(out, e.Value)
	}
	return out
}
