package genicam

import (
	"fmt"
	"strconv"
	"strings"
)

// DOMNode is the minimal visitor contract the feature engine consumes
// from an external XML DOM parser (spec.md §2 "explicitly OUT of
// scope: XML DOM parsing ... input: bytes; output: a DOM tree visited
// by the feature engine"). Any encoding/xml-backed adapter satisfies
// this by wrapping xml.Decoder tokens into a tree before Parse walks
// it; Parse itself never touches an XML byte stream.
type DOMNode interface {
	// Tag is the element name (e.g. "Integer", "pValue").
	Tag() string
	// Attr returns a named attribute's value ("Name" is the one every
	// feature-bearing element carries).
	Attr(name string) (string, bool)
	// Text is the element's character content, trimmed.
	Text() string
	// Children returns the element's child nodes in document order.
	Children() []DOMNode
}

// Parse walks root (expected to be a RegisterDescription element, or
// any element containing the feature nodes directly) and builds a
// Document bound to port. Recognised element tags are those of
// spec.md §6.6; unrecognised elements are skipped silently
// rather than failing the whole parse, matching real vendor XML's
// tendency to carry vendor extensions the engine doesn't need.
func Parse(root DOMNode, port Port, opts ...DocOption) (*Document, error) {
	d := NewDocument(port, opts...)
	if s, ok := root.Attr("SchemaMajorVersion"); ok {
		major := int(parseIntLiteral(s))
		minor := 0
		if s, ok := root.Attr("SchemaMinorVersion"); ok {
			minor = int(parseIntLiteral(s))
		}
		d.SetSchemaVersion(major, minor)
	}
	p := &parser{doc: d}
	p.walk(root)
	if len(p.errs) > 0 {
		return d, fmt.Errorf("genicam: parse: %w", p.errs[0])
	}
	return d, nil
}

type parser struct {
	doc  *Document
	errs []error
}

func (p *parser) walk(n DOMNode) {
	for _, c := range n.Children() {
		p.element(c)
	}
}

func (p *parser) element(n DOMNode) {
	name, _ := n.Attr("Name")
	switch n.Tag() {
	case "Category":
		p.category(n, name)
	case "Group":
		p.walk(n) // transparent grouping element, no node of its own
	case "Integer":
		p.scalar(n, name, KindInteger)
	case "Float":
		p.scalar(n, name, KindFloat)
	case "Boolean":
		p.scalar(n, name, KindBoolean)
	case "String":
		p.scalar(n, name, KindString)
	case "Command":
		p.scalar(n, name, KindCommand)
	case "Enumeration":
		p.enumeration(n, name)
	case "IntReg":
		p.register(n, name, KindIntReg)
	case "MaskedIntReg":
		p.register(n, name, KindMaskedIntReg)
	case "FloatReg":
		p.register(n, name, KindFloatReg)
	case "StringReg":
		p.register(n, name, KindStringReg)
	case "StructReg":
		p.register(n, name, KindStructReg)
	case "StructEntry":
		p.structEntry(n, name)
	case "SwissKnife":
		p.swissKnife(n, name, KindSwissKnife)
	case "IntSwissKnife":
		p.swissKnife(n, name, KindIntSwissKnife)
	case "Converter":
		p.converter(n, name, KindConverter)
	case "IntConverter":
		p.converter(n, name, KindIntConverter)
	case "Port":
		p.port(n, name)
	case "Register":
		p.register(n, name, KindIntReg)
	default:
		// Vendor extension or an unrecognised element (spec.md §9:
		// the full set a conforming implementation must accept is
		// wider than this subset); ignored rather than fatal.
	}
}

func (p *parser) childText(n DOMNode, tag string) (string, bool) {
	for _, c := range n.Children() {
		if c.Tag() == tag {
			return c.Text(), true
		}
	}
	return "", false
}

func (p *parser) childInt(n DOMNode, tag string) (int64, bool) {
	if s, ok := p.childText(n, tag); ok {
		return parseIntLiteral(s), true
	}
	return 0, false
}

func (p *parser) childFloat(n DOMNode, tag string) (float64, bool) {
	if s, ok := p.childText(n, tag); ok {
		f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, true
	}
	return 0, false
}

// parseIntLiteral accepts decimal and 0x-hex per spec.md §4.4.2's
// literal syntax, reused here for XML-carried integer properties.
func parseIntLiteral(s string) int64 {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, _ := strconv.ParseInt(s[2:], 16, 64)
		return v
	}
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func (p *parser) refFromChildren(n DOMNode, literalTag, pointerTag string, isFloat bool) ref {
	if s, ok := p.childText(n, pointerTag); ok {
		return pointerTo(strings.TrimSpace(s))
	}
	if isFloat {
		if f, ok := p.childFloat(n, literalTag); ok {
			return literalFloat(f)
		}
	} else {
		if i, ok := p.childInt(n, literalTag); ok {
			return literalInt(i)
		}
	}
	return ref{}
}

func (p *parser) category(n DOMNode, name string) {
	var children []string
	for _, c := range n.Children() {
		if cn, ok := c.Attr("Name"); ok && (c.Tag() == "pFeature" || c.Tag() == "Feature") {
			children = append(children, cn)
		}
	}
	p.doc.NewNode(KindCategory, name).Children(children...).Build()
}

func (p *parser) commonProps(b *NodeBuilder, n DOMNode) {
	if s, ok := p.childText(n, "pIsImplemented"); ok {
		b.IsImplemented(strings.TrimSpace(s))
	}
	if s, ok := p.childText(n, "pIsAvailable"); ok {
		b.IsAvailable(strings.TrimSpace(s))
	}
	if s, ok := p.childText(n, "pIsLocked"); ok {
		b.IsLocked(strings.TrimSpace(s))
	}
	if s, ok := n.Attr("AccessMode"); ok {
		b.Access(parseAccessMode(s))
	}
	for _, c := range n.Children() {
		if c.Tag() == "pSelected" {
			b.Selected(strings.TrimSpace(c.Text()))
		}
		if c.Tag() == "pInvalidator" {
			b.Invalidators(strings.TrimSpace(c.Text()))
		}
	}
}

func parseAccessMode(s string) AccessMode {
	switch s {
	case "RO":
		return AccessReadOnly
	case "WO":
		return AccessWriteOnly
	case "RW":
		return AccessReadWrite
	default:
		return AccessNotImplemented
	}
}

func (p *parser) scalar(n DOMNode, name string, kind NodeKind) {
	b := p.doc.NewNode(kind, name)
	isFloat := kind == KindFloat
	switch kind {
	case KindString:
		if s, ok := p.childText(n, "pValue"); ok {
			b.PValue(strings.TrimSpace(s))
		} else if s, ok := p.childText(n, "Value"); ok {
			b.ValueString(s)
		}
		if i, ok := p.childInt(n, "MaxLength"); ok {
			b.MaxLength(i)
		}
	case KindBoolean:
		if s, ok := p.childText(n, "pValue"); ok {
			b.PValue(strings.TrimSpace(s))
		} else if i, ok := p.childInt(n, "Value"); ok {
			b.Value(i)
		}
	default:
		r := p.refFromChildren(n, "Value", "pValue", isFloat)
		b.n.value = r
		if mn := p.refFromChildren(n, "Min", "pMin", isFloat); !mn.isZero() {
			b.n.min = mn
		}
		if mx := p.refFromChildren(n, "Max", "pMax", isFloat); !mx.isZero() {
			b.n.max = mx
		}
		if inc := p.refFromChildren(n, "Inc", "pInc", isFloat); !inc.isZero() {
			b.n.inc = inc
		}
		if u, ok := p.childText(n, "Unit"); ok {
			b.Unit(u)
		}
	}
	p.commonProps(b, n)
	b.Build()
}

func (p *parser) enumeration(n DOMNode, name string) {
	var entries []string
	for _, c := range n.Children() {
		if c.Tag() != "EnumEntry" {
			continue
		}
		en, _ := c.Attr("Name")
		val, _ := p.childInt(c, "Value")
		p.doc.NewNode(KindEnumEntry, en).NumericValue(val).Build()
		entries = append(entries, en)
	}
	b := p.doc.NewNode(KindEnumeration, name).EnumEntries(entries...)
	if s, ok := p.childText(n, "pValue"); ok {
		b.PValue(strings.TrimSpace(s))
	} else if i, ok := p.childInt(n, "Value"); ok {
		b.Value(i)
	}
	p.commonProps(b, n)
	b.Build()
}

func (p *parser) register(n DOMNode, name string, kind NodeKind) {
	b := p.doc.NewNode(kind, name)
	if s, ok := p.childText(n, "pAddress"); ok {
		b.PAddress(strings.TrimSpace(s))
	} else if i, ok := p.childInt(n, "Address"); ok {
		b.Address(uint64(i))
	}
	if s, ok := p.childText(n, "pLength"); ok {
		b.PLength(strings.TrimSpace(s))
	} else if i, ok := p.childInt(n, "Length"); ok {
		b.Length(i)
	}
	if s, ok := n.Attr("Endianess"); ok && s == "LittleEndian" {
		b.Endianness(LittleEndian)
	}
	if s, ok := n.Attr("Sign"); ok && s == "Signed" {
		b.Sign(Signed)
	}
	if lsb, ok := p.childInt(n, "LSB"); ok {
		msb, _ := p.childInt(n, "MSB")
		b.Bits(int(lsb), int(msb))
	}
	if s, ok := n.Attr("Cachable"); ok {
		b.Cachable(parseCachable(s))
	}
	if s, ok := p.childText(n, "pPort"); ok {
		b.Port(strings.TrimSpace(s))
	}
	p.commonProps(b, n)
	b.Build()
}

func parseCachable(s string) Cachable {
	switch s {
	case "WriteThrough":
		return WriteThrough
	case "WriteAround":
		return WriteAround
	default:
		return NoCache
	}
}

func (p *parser) structEntry(n DOMNode, name string) {
	b := p.doc.NewNode(KindStructEntry, name)
	if s, ok := p.childText(n, "pStructReg"); ok {
		b.StructReg(strings.TrimSpace(s))
	}
	if lsb, ok := p.childInt(n, "LSB"); ok {
		msb, _ := p.childInt(n, "MSB")
		b.Bits(int(lsb), int(msb))
	}
	if s, ok := n.Attr("Sign"); ok && s == "Signed" {
		b.Sign(Signed)
	}
	p.commonProps(b, n)
	b.Build()
}

func (p *parser) swissKnife(n DOMNode, name string, kind NodeKind) {
	b := p.doc.NewNode(kind, name)
	if f, ok := p.childText(n, "Formula"); ok {
		b.Formula(strings.TrimSpace(f))
	}
	for _, c := range n.Children() {
		if c.Tag() != "pVariable" {
			continue
		}
		varName, _ := c.Attr("Name")
		b.Variable(varName, strings.TrimSpace(c.Text()))
	}
	p.commonProps(b, n)
	b.Build()
}

func (p *parser) converter(n DOMNode, name string, kind NodeKind) {
	b := p.doc.NewNode(kind, name)
	to, _ := p.childText(n, "FormulaTo")
	from, _ := p.childText(n, "FormulaFrom")
	converts, _ := p.childText(n, "pValue")
	b.ConverterFormulas(strings.TrimSpace(to), strings.TrimSpace(from), strings.TrimSpace(converts))
	for _, c := range n.Children() {
		if c.Tag() != "pVariable" {
			continue
		}
		varName, _ := c.Attr("Name")
		b.Variable(varName, strings.TrimSpace(c.Text()))
	}
	p.commonProps(b, n)
	b.Build()
}

func (p *parser) port(n DOMNode, name string) {
	b := p.doc.NewNode(KindPort, name)
	if s, ok := n.Attr("ChunkID"); ok {
		id := parseIntLiteral(s)
		b.ChunkPort(uint32(id))
	}
	b.Build()
}
