package genicam

import (
	"context"
	"testing"
)

// fakeDOM is a minimal in-memory DOMNode used to exercise Parse without
// any XML decoder; a real adapter wraps an encoding/xml-derived tree
// the same shape (spec.md §2 scopes the decoder itself out).
type fakeDOM struct {
	tag      string
	attrs    map[string]string
	text     string
	children []DOMNode
}

func elem(tag string, attrs map[string]string, children ...DOMNode) *fakeDOM {
	return &fakeDOM{tag: tag, attrs: attrs, children: children}
}

func textElem(tag, text string) *fakeDOM { return &fakeDOM{tag: tag, text: text} }

func (f *fakeDOM) Tag() string { return f.tag }
func (f *fakeDOM) Attr(name string) (string, bool) {
	v, ok := f.attrs[name]
	return v, ok
}
func (f *fakeDOM) Text() string { return f.text }
func (f *fakeDOM) Children() []DOMNode {
	return f.children
}

func TestParseBuildsIntegerFeature(t *testing.T) {
	root := elem("RegisterDescription", nil,
		elem("Integer", map[string]string{"Name": "Width"},
			textElem("Value", "640"),
			textElem("Min", "1"),
			textElem("Max", "4096"),
			textElem("Inc", "1"),
		),
	)
	doc, err := Parse(root, nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	v, err := doc.GetInteger("Width")
	if err != nil {
		t.Fatalf("GetInteger: %v", err)
	}
	if v != 640 {
		t.Fatalf("got %d, want 640", v)
	}
	if err := doc.SetInteger("Width", 5000); err == nil {
		t.Fatalf("expected out-of-range error")
	}
}

func TestParseBuildsRegisterAndEnumeration(t *testing.T) {
	port := newMemPort()
	port.put32(0x1000, 0x01080001)
	root := elem("RegisterDescription", nil,
		elem("IntReg", map[string]string{"Name": "PixelFormatReg"},
			textElem("Address", "0x1000"),
			textElem("Length", "4"),
		),
		elem("Enumeration", map[string]string{"Name": "PixelFormat"},
			textElem("pValue", "PixelFormatReg"),
			elem("EnumEntry", map[string]string{"Name": "Mono8"}, textElem("Value", "0x01080001")),
			elem("EnumEntry", map[string]string{"Name": "RGB8"}, textElem("Value", "0x02180014")),
		),
	)
	doc, err := Parse(root, port)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	sym, err := doc.GetEnumSymbolic("PixelFormat")
	if err != nil {
		t.Fatalf("GetEnumSymbolic: %v", err)
	}
	if sym != "Mono8" {
		t.Fatalf("got %q, want Mono8", sym)
	}
	if err := doc.SetEnumSymbolic("PixelFormat", "RGB8"); err != nil {
		t.Fatalf("SetEnumSymbolic: %v", err)
	}
	raw, _ := port.ReadMemory(context.Background(), 0x1000, 4)
	if len(raw) != 4 {
		t.Fatalf("expected 4 bytes written back")
	}
}
