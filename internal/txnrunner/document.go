package txnrunner

import (
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Document is a string-keyed mapping that remembers insertion order.
// Command documents are order-sensitive (the first key names the command),
// so runner inputs decode into Documents rather than Go maps.
type Document struct {
	keys   []string
	values map[string]any
}

// NewDocument builds a document from alternating keys and values.
// It panics on an odd argument count or a non-string key.
func NewDocument(pairs ...any) *Document {
	if len(pairs)%2 != 0 {
		panic("txnrunner: NewDocument needs key/value pairs")
	}
	d := &Document{}
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("txnrunner: document key %v is not a string", pairs[i]))
		}
		d.Set(key, pairs[i+1])
	}
	return d
}

// Len returns the number of keys.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns the keys in order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// Has reports whether key is present, even with a null value.
func (d *Document) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Set stores v under key. A new key is appended; an existing key keeps
// its position.
func (d *Document) Set(key string, v any) {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, exists := d.values[key]; !exists {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

// SetDefault stores v under key only when key is absent.
func (d *Document) SetDefault(key string, v any) {
	if !d.Has(key) {
		d.Set(key, v)
	}
}

// Delete removes key and returns its value.
func (d *Document) Delete(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	if !ok {
		return nil, false
	}
	delete(d.values, key)
	for i, k := range d.keys {
		if k == key {
			d.keys = append(d.keys[:i], d.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Doc returns the nested document stored under key, or nil.
func (d *Document) Doc(key string) *Document {
	v, _ := d.Get(key)
	nested, _ := v.(*Document)
	return nested
}

// Clone returns a deep copy. Nested documents and slices are copied;
// scalars are shared.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		keys:   make([]string, len(d.keys)),
		values: make(map[string]any, len(d.values)),
	}
	copy(out.keys, d.keys)
	for k, v := range d.values {
		out.values[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *Document:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	}
	return v
}

// Map converts the document to plain Go maps, recursively. Integral
// numbers come back as int64.
func (d *Document) Map() map[string]any {
	if d == nil {
		return nil
	}
	out := make(map[string]any, len(d.keys))
	for _, k := range d.keys {
		out[k] = plain(d.values[k])
	}
	return out
}

// UnmarshalYAML decodes a YAML (or JSON) mapping, keeping key order in
// nested mappings too.
func (d *Document) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}

	d.keys = nil
	d.values = make(map[string]any, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return fmt.Errorf("line %d: document key: %w", node.Content[i].Line, err)
		}
		v, err := decodeNode(node.Content[i+1])
		if err != nil {
			return err
		}
		d.Set(key, v)
	}
	return nil
}

func decodeNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return decodeNode(n.Alias)
	case yaml.MappingNode:
		d := &Document{}
		if err := d.UnmarshalYAML(n); err != nil {
			return nil, err
		}
		return d, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, child := range n.Content {
			v, err := decodeNode(child)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return v, nil
	}
}

// plain converts documents to maps and integral numbers to int64 so values
// from different sources compare with reflect.DeepEqual.
func plain(v any) any {
	switch val := v.(type) {
	case *Document:
		return val.Map()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = plain(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = plain(elem)
		}
		return out
	case []SortKey:
		out := make([]any, len(val))
		for i, k := range val {
			out[i] = []any{k.Field, plain(k.Direction)}
		}
		return out
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint64:
		return int64(val)
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
	}
	return v
}

// equal compares two values after normalizing documents and numbers.
func equal(a, b any) bool {
	return reflect.DeepEqual(plain(a), plain(b))
}
