// Package genicam implements the feature-tree engine: a node arena
// parsed from a device's GenICam XML, an infix expression evaluator,
// and a register cache, turning named feature reads/writes into
// device memory operations (spec.md §4.4).
//
// Per spec.md §9's redesign instruction, the tree is not a graph of
// cyclic pointers (as the original's DOM-backed implementation uses)
// but an arena: every node lives in a Document's flat node slice,
// addressed by NodeID, with string-named cross-references (pValue,
// pAddress, pInvalidator, ...) resolved through the Document's
// name→NodeID index. Node-kind set and resolution order grounded on
// original_source/arvgc.c and arvdomnode.c.
package genicam

import "fmt"

// NodeID addresses one node in a Document's arena.
type NodeID int

// NodeKind distinguishes the GenICam element kinds recognised by this
// engine (spec.md §6.6).
type NodeKind int

const (
	KindCategory NodeKind = iota
	KindInteger
	KindFloat
	KindBoolean
	KindString
	KindEnumeration
	KindEnumEntry
	KindCommand
	KindIntReg
	KindMaskedIntReg
	KindFloatReg
	KindStringReg
	KindStructReg
	KindStructEntry
	KindSwissKnife
	KindIntSwissKnife
	KindConverter
	KindIntConverter
	KindPort
	KindGroup
)

func (k NodeKind) String() string {
	switch k {
	case KindCategory:
		return "Category"
	case KindInteger:
		return "Integer"
	case KindFloat:
		return "Float"
	case KindBoolean:
		return "Boolean"
	case KindString:
		return "String"
	case KindEnumeration:
		return "Enumeration"
	case KindEnumEntry:
		return "EnumEntry"
	case KindCommand:
		return "Command"
	case KindIntReg:
		return "IntReg"
	case KindMaskedIntReg:
		return "MaskedIntReg"
	case KindFloatReg:
		return "FloatReg"
	case KindStringReg:
		return "StringReg"
	case KindStructReg:
		return "StructReg"
	case KindStructEntry:
		return "StructEntry"
	case KindSwissKnife:
		return "SwissKnife"
	case KindIntSwissKnife:
		return "IntSwissKnife"
	case KindConverter:
		return "Converter"
	case KindIntConverter:
		return "IntConverter"
	case KindPort:
		return "Port"
	case KindGroup:
		return "Group"
	default:
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
}

// Sign controls whether a register or masked bit-field's bytes are
// interpreted as signed or unsigned (spec.md §4.4.3).
type Sign int

const (
	Unsigned Sign = iota
	Signed
)

// AccessMode is the effective read/write permission of a node
// (spec.md §4.4.6).
type AccessMode int

const (
	AccessNotImplemented AccessMode = iota
	AccessReadOnly
	AccessWriteOnly
	AccessReadWrite
)

// Intersect returns the more restrictive of two access modes, used to
// combine a node's ImposedAccessMode with its pointee's actual mode.
func (a AccessMode) Intersect(b AccessMode) AccessMode {
	if a == AccessNotImplemented || b == AccessNotImplemented {
		return AccessNotImplemented
	}
	if a == b {
		return a
	}
	if a == AccessReadWrite {
		return b
	}
	if b == AccessReadWrite {
		return a
	}
	return AccessNotImplemented // ReadOnly ∩ WriteOnly
}

func (a AccessMode) CanRead() bool  { return a == AccessReadOnly || a == AccessReadWrite }
func (a AccessMode) CanWrite() bool { return a == AccessWriteOnly || a == AccessReadWrite }

// Cachable is the per-node cache policy (spec.md §4.4.4).
type Cachable int

const (
	NoCache Cachable = iota
	WriteThrough
	WriteAround
)

// CachePolicy is the document-wide register cache override
// (spec.md §4.4.4).
type CachePolicy int

const (
	CachePolicyEnable CachePolicy = iota
	CachePolicyDisable
	CachePolicyDebug
)

// RangeCheckPolicy is the document-wide bounds-check override
// (spec.md §4.4.5).
type RangeCheckPolicy int

const (
	RangeCheckEnable RangeCheckPolicy = iota
	RangeCheckDisable
	RangeCheckDebug
)

// AccessCheckPolicy is the document-wide access-check override
// (spec.md §4.4.6).
type AccessCheckPolicy int

const (
	AccessCheckEnable AccessCheckPolicy = iota
	AccessCheckDisable
)

// Representation is a hint for how an Integer/Float node's value
// should be presented to a UI (original_source supplement: ABRM
// representation hints carried by IntegerNode/FloatNode, dropped by
// the distilled spec but present in arvgcfloatnode.c/arvgcintegernode.c).
type Representation int

const (
	RepresentationLinear Representation = iota
	RepresentationLogarithmic
	RepresentationBoolean
	RepresentationPureNumber
	RepresentationHexNumber
)

// ref is a property that is either a literal value or a named pointer
// to another node (a "p..." property per spec.md §3). Exactly one of
// the two should be considered set; IsPointer distinguishes them.
type ref struct {
	isPointer bool
	pointee   string

	intLit    int64
	floatLit  float64
	stringLit string
	hasLit    bool
}

func literalInt(v int64) ref     { return ref{intLit: v, hasLit: true} }
func literalFloat(v float64) ref { return ref{floatLit: v, hasLit: true} }
func literalString(v string) ref { return ref{stringLit: v, hasLit: true} }
func pointerTo(name string) ref  { return ref{isPointer: true, pointee: name} }

func (r ref) isZero() bool { return !r.isPointer && !r.hasLit }

// Node is one arena entry. Only the fields relevant to Kind are
// meaningful; this mirrors the arena-of-tagged-records style named in
// spec.md §9 rather than one Go type per node kind, since the set of
// node kinds is fixed and cross-references must all resolve through
// the same Document.byName index regardless of kind.
type Node struct {
	ID   NodeID
	Name string
	Kind NodeKind

	changeCount uint64

	// Category / Group
	children []string

	// Integer / Float / MaskedIntReg-adjacent bounds
	value ref
	min   ref
	max   ref
	inc   ref
	unit  string
	rep   Representation

	// Boolean
	// (uses value as 0/1 through Integer-style resolution)

	// String
	maxLength int64

	// Enumeration
	enumEntries []string // ordered EnumEntry node names
	// EnumEntry
	numericValue int64

	// Command uses value as the value-to-write-on-execute (often a
	// pValue pointing at the register the command actually triggers).

	// Register family (Int/Masked/Float/String/Struct)
	address      ref
	length       ref // default resolved to 4 if zero
	endianness   ByteOrder
	sign         Sign
	lsb          int
	msb          int
	cachable     Cachable
	port         string // port node name; "" means the document's implicit device port
	invalidators []string

	// StructEntry
	structReg string

	// SwissKnife / Converter
	formula      string
	formulaTo    string // <FormulaTo> — inverse (write) formula, binds FROM
	formulaFrom  string // <FormulaFrom> — forward (read) formula, binds TO
	variables    map[string]string // variable name -> pointee node name
	convertsNode string            // pValue of the wrapped node (Converter only)

	// Port
	isChunkPort bool
	chunkID     uint32

	// common property chain
	pSelected       []string
	imposedAccess   AccessMode
	pIsImplemented  string
	pIsAvailable    string
	pIsLocked       string
}

// ByteOrder selects register byte order (spec.md §4.4.3): BigEndian by
// default for GVCP devices, LittleEndian for U3V.
type ByteOrder int

const (
	BigEndian ByteOrder = iota
	LittleEndian
)
