package spec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind tags the variant held by a Node.
type Kind int

const (
	NullKind Kind = iota
	BoolKind
	NumberKind
	StringKind
	ObjectKind
	ArrayKind
)

func (k Kind) String() string {
	switch k {
	case NullKind:
		return "null"
	case BoolKind:
		return "bool"
	case NumberKind:
		return "number"
	case StringKind:
		return "string"
	case ObjectKind:
		return "object"
	case ArrayKind:
		return "array"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Node is one value of a parsed spec document. A nil *Node stands for an
// absent value; the lenient accessors (Get, Lookup, Text) accept nil receivers
// so optional chains read like the document they walk.
type Node struct {
	kind Kind
	b    bool
	num  float64
	str  string // string value, or the source literal of a number
	obj  *Object
	arr  []*Node
}

// Object is a mapping that keeps keys in declaration order.
type Object struct {
	keys []string
	vals map[string]*Node
}

func NewNull() *Node { return &Node{kind: NullKind} }
func NewBool(b bool) *Node { return &Node{kind: BoolKind, b: b} }
func NewNumber(f float64) *Node { return &Node{kind: NumberKind, num: f} }
func NewString(s string) *Node { return &Node{kind: StringKind, str: s} }
func NewArray(items ...*Node) *Node { return &Node{kind: ArrayKind, arr: items} }

// NewObject returns an empty object node.
func NewObject() *Node {
	return &Node{kind: ObjectKind, obj: &Object{vals: map[string]*Node{}}}
}

// ObjectOf builds an object from alternating key/value arguments. Values may be
// *Node, string, bool, float64 or int.
func ObjectOf(kv ...any) *Node {
	n := NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		n.obj.Set(kv[i].(string), toNode(kv[i+1]))
	}
	return n
}

func toNode(v any) *Node {
	switch val := v.(type) {
	case *Node:
		return val
	case string:
		return NewString(val)
	case bool:
		return NewBool(val)
	case float64:
		return NewNumber(val)
	case int:
		return NewNumber(float64(val))
	case nil:
		return NewNull()
	default:
		panic(fmt.Sprintf("spec: cannot build node from %T", v))
	}
}

// Kind returns the variant tag. A nil node reports NullKind.
func (n *Node) Kind() Kind {
	if n == nil {
		return NullKind
	}
	return n.kind
}

func (n *Node) IsNull() bool { return n == nil || n.kind == NullKind }
func (n *Node) IsObject() bool { return n != nil && n.kind == ObjectKind }
func (n *Node) IsArray() bool { return n != nil && n.kind == ArrayKind }
func (n *Node) IsString() bool { return n != nil && n.kind == StringKind }

func shapeErr(n *Node, want Kind) error {
	return &SpecError{
		Code:    ShapeError,
		Message: fmt.Sprintf("spec: expected %s, got %s", want, n.Kind()),
	}
}

// AsObject returns the object payload or a ShapeError.
func (n *Node) AsObject() (*Object, error) {
	if !n.IsObject() {
		return nil, shapeErr(n, ObjectKind)
	}
	return n.obj, nil
}

// AsArray returns the array items or a ShapeError.
func (n *Node) AsArray() ([]*Node, error) {
	if !n.IsArray() {
		return nil, shapeErr(n, ArrayKind)
	}
	return n.arr, nil
}

// AsString returns the string payload or a ShapeError.
func (n *Node) AsString() (string, error) {
	if !n.IsString() {
		return "", shapeErr(n, StringKind)
	}
	return n.str, nil
}

// AsBool returns the bool payload or a ShapeError.
func (n *Node) AsBool() (bool, error) {
	if n.Kind() != BoolKind {
		return false, shapeErr(n, BoolKind)
	}
	return n.b, nil
}

// AsNumber returns the number payload or a ShapeError.
func (n *Node) AsNumber() (float64, error) {
	if n.Kind() != NumberKind {
		return 0, shapeErr(n, NumberKind)
	}
	return n.num, nil
}

// Object returns the object payload, or nil when n is not an object.
func (n *Node) Object() *Object {
	if !n.IsObject() {
		return nil
	}
	return n.obj
}

// Items returns the array items, or nil when n is not an array.
func (n *Node) Items() []*Node {
	if !n.IsArray() {
		return nil
	}
	return n.arr
}

// Get returns the value under key when n is an object.
func (n *Node) Get(key string) *Node {
	if !n.IsObject() {
		return nil
	}
	v, _ := n.obj.Get(key)
	return v
}

// Has reports whether n is an object declaring key.
func (n *Node) Has(key string) bool {
	if !n.IsObject() {
		return false
	}
	_, ok := n.obj.Get(key)
	return ok
}

// Lookup follows a chain of object keys and returns nil on the first miss.
func (n *Node) Lookup(keys ...string) *Node {
	cur := n
	for _, k := range keys {
		cur = cur.Get(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Text renders a scalar as text. Objects, arrays and null render as "".
func (n *Node) Text() string {
	switch n.Kind() {
	case StringKind:
		return n.str
	case BoolKind:
		return strconv.FormatBool(n.b)
	case NumberKind:
		if n.str != "" {
			return n.str
		}
		return formatNumber(n.num)
	default:
		return ""
	}
}

// Truthy follows the usual falsiness of document values: null, false, 0, ""
// and empty containers are false.
func (n *Node) Truthy() bool {
	switch n.Kind() {
	case BoolKind:
		return n.b
	case NumberKind:
		return n.num != 0
	case StringKind:
		return n.str != ""
	case ObjectKind:
		return n.obj.Len() > 0
	case ArrayKind:
		return len(n.arr) > 0
	default:
		return false
	}
}

// Append adds items to an array node.
func (n *Node) Append(items ...*Node) error {
	if !n.IsArray() {
		return shapeErr(n, ArrayKind)
	}
	n.arr = append(n.arr, items...)
	return nil
}

// SetIndex replaces the array element at i.
func (n *Node) SetIndex(i int, v *Node) {
	n.arr[i] = v
}

// DeepCopy returns an independent copy of the subtree rooted at n.
func (n *Node) DeepCopy() *Node {
	if n == nil {
		return nil
	}
	out := &Node{kind: n.kind, b: n.b, num: n.num, str: n.str}
	switch n.kind {
	case ObjectKind:
		out.obj = &Object{keys: append([]string(nil), n.obj.keys...), vals: make(map[string]*Node, len(n.obj.vals))}
		for k, v := range n.obj.vals {
			out.obj.vals[k] = v.DeepCopy()
		}
	case ArrayKind:
		out.arr = make([]*Node, len(n.arr))
		for i, v := range n.arr {
			out.arr[i] = v.DeepCopy()
		}
	}
	return out
}

// Equal reports structural equality. Object key order is significant.
func (n *Node) Equal(o *Node) bool {
	if n.Kind() != o.Kind() {
		return false
	}
	switch n.Kind() {
	case NullKind:
		return true
	case BoolKind:
		return n.b == o.b
	case NumberKind:
		return n.num == o.num
	case StringKind:
		return n.str == o.str
	case ObjectKind:
		if len(n.obj.keys) != len(o.obj.keys) {
			return false
		}
		for i, k := range n.obj.keys {
			if o.obj.keys[i] != k || !n.obj.vals[k].Equal(o.obj.vals[k]) {
				return false
			}
		}
		return true
	case ArrayKind:
		if len(n.arr) != len(o.arr) {
			return false
		}
		for i := range n.arr {
			if !n.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the keys in declaration order. The slice must not be modified.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	return o.keys
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (*Node, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.vals[key]
	return v, ok
}

// Set stores v under key. New keys are appended; existing keys keep their position.
func (o *Object) Set(key string, v *Node) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Delete removes key and returns its previous value.
func (o *Object) Delete(key string) (*Node, bool) {
	v, ok := o.vals[key]
	if !ok {
		return nil, false
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i:i], o.keys[i+1:]...)
			break
		}
	}
	return v, true
}

// Range calls fn for each entry in declaration order until fn returns false.
func (o *Object) Range(fn func(key string, v *Node) bool) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		if !fn(k, o.vals[k]) {
			return
		}
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// DecodeYAML parses YAML or JSON text into a Node tree. Empty input decodes to null.
func DecodeYAML(data []byte) (*Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 {
		return NewNull(), nil
	}
	return FromYAMLNode(&doc)
}

// FromYAMLNode converts a yaml.v3 node into a Node, resolving aliases and merge keys
// into plain copies. An alias that expands into its own anchor, or aliasing that
// inflates the tree far beyond the source, fails with a ParseError.
func FromYAMLNode(y *yaml.Node) (*Node, error) {
	d := &yamlDecoder{expanding: make(map[*yaml.Node]bool)}
	return d.convert(y)
}

// yamlDecoder carries the alias bookkeeping for one conversion.
type yamlDecoder struct {
	expanding  map[*yaml.Node]bool // anchored nodes on the current descent
	nodes      int
	aliased    int // nodes converted through an alias
	aliasDepth int
}

// Same thresholds yaml.v3 applies when decoding into Go values.
const (
	aliasRatioRangeLow  = 400000
	aliasRatioRangeHigh = 4000000
	aliasRatioRange     = float64(aliasRatioRangeHigh - aliasRatioRangeLow)
)

func allowedAliasRatio(nodes int) float64 {
	switch {
	case nodes <= aliasRatioRangeLow:
		return 0.99
	case nodes >= aliasRatioRangeHigh:
		return 0.10
	default:
		return 0.99 - 0.89*(float64(nodes-aliasRatioRangeLow)/aliasRatioRange)
	}
}

func yamlParseError(line int, format string, args ...any) error {
	return &SpecError{Code: ParseError, Message: fmt.Sprintf("line %d: ", line) + fmt.Sprintf(format, args...)}
}

func (d *yamlDecoder) convert(y *yaml.Node) (*Node, error) {
	d.nodes++
	if d.aliasDepth > 0 {
		d.aliased++
	}
	if d.aliased > 100 && d.nodes > 1000 && float64(d.aliased)/float64(d.nodes) > allowedAliasRatio(d.nodes) {
		return nil, yamlParseError(y.Line, "document contains excessive aliasing")
	}
	if y.Anchor != "" {
		d.expanding[y] = true
		defer delete(d.expanding, y)
	}

	switch y.Kind {
	case yaml.DocumentNode:
		if len(y.Content) == 0 {
			return NewNull(), nil
		}
		return d.convert(y.Content[0])
	case yaml.AliasNode:
		if y.Alias == nil {
			return nil, yamlParseError(y.Line, "dangling alias")
		}
		if d.expanding[y.Alias] {
			return nil, yamlParseError(y.Line, "alias *%s expands into itself", y.Value)
		}
		d.aliasDepth++
		defer func() { d.aliasDepth-- }()
		return d.convert(y.Alias)
	case yaml.MappingNode:
		out := NewObject()
		for i := 0; i+1 < len(y.Content); i += 2 {
			k, v := y.Content[i], y.Content[i+1]
			if k.Tag == "!!merge" {
				if err := d.mergeInto(out, v); err != nil {
					return nil, err
				}
				continue
			}
			val, err := d.convert(v)
			if err != nil {
				return nil, err
			}
			out.obj.Set(k.Value, val)
		}
		return out, nil
	case yaml.SequenceNode:
		items := make([]*Node, 0, len(y.Content))
		for _, c := range y.Content {
			val, err := d.convert(c)
			if err != nil {
				return nil, err
			}
			items = append(items, val)
		}
		return NewArray(items...), nil
	case yaml.ScalarNode:
		return scalarFromYAML(y)
	default:
		return nil, yamlParseError(y.Line, "unsupported yaml node kind %v", y.Kind)
	}
}

func (d *yamlDecoder) mergeInto(out *Node, v *yaml.Node) error {
	sources := []*yaml.Node{v}
	if v.Kind == yaml.SequenceNode {
		sources = v.Content
	}
	for _, src := range sources {
		val, err := d.convert(src)
		if err != nil {
			return err
		}
		val.Object().Range(func(k string, item *Node) bool {
			if !out.Has(k) {
				out.obj.Set(k, item)
			}
			return true
		})
	}
	return nil
}

func scalarFromYAML(y *yaml.Node) (*Node, error) {
	switch y.ShortTag() {
	case "!!null":
		return NewNull(), nil
	case "!!bool":
		var b bool
		if err := y.Decode(&b); err != nil {
			return nil, err
		}
		return NewBool(b), nil
	case "!!int", "!!float":
		var f float64
		if err := y.Decode(&f); err != nil {
			return nil, err
		}
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return NewString(y.Value), nil
		}
		// Keep the literal so "2.10" reads back as written.
		return &Node{kind: NumberKind, num: f, str: y.Value}, nil
	default:
		return NewString(y.Value), nil
	}
}

// MarshalJSON renders the node as JSON, keeping object key order.
func (n *Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *Node) writeJSON(buf *bytes.Buffer) error {
	switch n.Kind() {
	case NullKind:
		buf.WriteString("null")
	case BoolKind:
		buf.WriteString(strconv.FormatBool(n.b))
	case NumberKind:
		buf.WriteString(formatNumber(n.num))
	case StringKind:
		b, err := json.Marshal(n.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case ObjectKind:
		buf.WriteByte('{')
		for i, k := range n.obj.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := n.obj.vals[k].writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case ArrayKind:
		buf.WriteByte('[')
		for i, item := range n.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.writeJSON(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	}
	return nil
}

// MarshalYAML renders the node as an ordered yaml.v3 node.
func (n *Node) MarshalYAML() (any, error) {
	return n.toYAMLNode(), nil
}

func (n *Node) toYAMLNode() *yaml.Node {
	switch n.Kind() {
	case BoolKind:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(n.b)}
	case NumberKind:
		tag := "!!float"
		if n.num == math.Trunc(n.num) {
			tag = "!!int"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: formatNumber(n.num)}
	case StringKind:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: n.str}
	case ObjectKind:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range n.obj.keys {
			out.Content = append(out.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				n.obj.vals[k].toYAMLNode())
		}
		return out
	case ArrayKind:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range n.arr {
			out.Content = append(out.Content, item.toYAMLNode())
		}
		return out
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

// String renders the node as compact JSON for diagnostics.
func (n *Node) String() string {
	b, err := n.MarshalJSON()
	if err != nil {
		return "<" + err.Error() + ">"
	}
	return strings.TrimSpace(string(b))
}
