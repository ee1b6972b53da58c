package genicam

import (
	"context"
	"fmt"
	"math"
	"sync"
)

// bgCtx is used for Port calls the public API makes on the caller's
// behalf; the feature engine itself has no blocking points beyond the
// Port it is handed (spec.md §4.4 describes no cancellation surface of
// its own — cancellation belongs to the control protocol underneath).
var bgCtx = context.Background()

// Document owns the arena of Nodes parsed from one device's GenICam XML
// and resolves high-level feature accesses into Port reads/writes, with
// caching, range checking and access checking (spec.md §4.4).
//
// Per spec.md §9's redesign note, there is no cyclic DOM here: every
// cross-reference (pValue, pAddress, pInvalidator, ...) is a string
// looked up in byName, resolved on first use. mu serializes the whole
// tree against concurrent feature calls (spec.md §5's per-device
// seriaization extends naturally to the feature tree since reads can
// recurse through arbitrarily many pointee nodes); the register cache
// has its own finer-grained RWMutex underneath.
type Document struct {
	mu     sync.Mutex
	nodes  []Node
	byName map[string]NodeID

	port      Port
	chunkFind func(id uint32) ([]byte, error)

	cache *RegisterCache

	cachePolicy       CachePolicy
	rangeCheckPolicy  RangeCheckPolicy
	accessCheckPolicy AccessCheckPolicy
	defaultEndianness ByteOrder

	legacyEndianness          bool
	schemaMajor, schemaMinor  int
}

// DocOption configures a Document at construction time (spec.md §2
// "Configuration": functional-options pattern per device/stream).
type DocOption func(*Document)

func WithCachePolicy(p CachePolicy) DocOption { return func(d *Document) { d.cachePolicy = p } }
func WithRangeCheckPolicy(p RangeCheckPolicy) DocOption {
	return func(d *Document) { d.rangeCheckPolicy = p }
}
func WithAccessCheckPolicy(p AccessCheckPolicy) DocOption {
	return func(d *Document) { d.accessCheckPolicy = p }
}
func WithDefaultEndianness(bo ByteOrder) DocOption {
	return func(d *Document) { d.defaultEndianness = bo }
}

// WithLegacyEndianness forces the legacy GenICam 1.0 register-access
// mechanism for every 4-byte register-family access: callers pass
// gvcp.UsesLegacyEndiannessMechanism's verdict (keyed off the device's
// vendor/model, checked at device open) through here, since genicam has
// no knowledge of gvcp's vendor/model quirk table (spec.md §9). A
// device's GenICam schema version below 1.1, recorded via Parse, forces
// the same mode even when this option isn't set.
func WithLegacyEndianness(b bool) DocOption {
	return func(d *Document) { d.legacyEndianness = b }
}

// SetSchemaVersion records the <RegisterDescription> SchemaMajorVersion/
// SchemaMinorVersion attributes (Parse calls this from the root
// element). A schema below 1.1 predates GenICam's current register
// mechanism and is treated the same as an explicit WithLegacyEndianness.
func (d *Document) SetSchemaVersion(major, minor int) {
	d.schemaMajor, d.schemaMinor = major, minor
}

// legacyRegisterMode reports whether 4-byte register-family accesses
// must go through the narrow register commands instead of the generic
// memory commands (spec.md §9): either because the device is known to
// require it (WithLegacyEndianness) or because its GenICam schema
// predates 1.1.
func (d *Document) legacyRegisterMode() bool {
	if d.legacyEndianness {
		return true
	}
	return d.schemaMajor > 0 && (d.schemaMajor < 1 || (d.schemaMajor == 1 && d.schemaMinor < 1))
}

// NewDocument returns an empty Document backed by port, the device's
// memory/register access backend. Additional nodes are added with
// NewNode/Build (directly, or via Parse for XML-sourced trees).
func NewDocument(port Port, opts ...DocOption) *Document {
	d := &Document{
		byName: make(map[string]NodeID),
		port:   port,
		cache:  NewRegisterCache(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// BindChunkPort attaches a chunk lookup function, making chunk-bound
// features (Port nodes with isChunkPort) resolve through a buffer's
// trailing chunk data instead of the device's memory port (spec.md
// §4.5). Scoped to the lifetime of one buffer's chunk parse, per
// spec.md §9 ("scoped loan" replacing the original's weak reference).
func (d *Document) BindChunkPort(find func(id uint32) ([]byte, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunkFind = find
}

// UnbindChunkPort releases a previously bound chunk lookup.
func (d *Document) UnbindChunkPort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunkFind = nil
}

// InvalidateCache clears every cached register entry, conventionally
// called after AcquisitionStart (spec.md §4.4.4).
func (d *Document) InvalidateCache() { d.cache.InvalidateAll() }

// addNode appends n to the arena, assigning it an ID and indexing it by
// name. Used by the builder methods below and by Parse.
func (d *Document) addNode(n Node) NodeID {
	id := NodeID(len(d.nodes))
	n.ID = id
	if n.imposedAccess == AccessNotImplemented {
		n.imposedAccess = AccessReadWrite
	}
	d.nodes = append(d.nodes, n)
	d.byName[n.Name] = id
	return id
}

func (d *Document) node(name string) (*Node, error) {
	id, ok := d.byName[name]
	if !ok {
		return nil, fmt.Errorf("genicam: %q: %w", name, ErrNodeNotFound)
	}
	return &d.nodes[id], nil
}

func (d *Document) changeCountOf(id NodeID) uint64 { return d.nodes[id].changeCount }

// bump increments n's change_count (spec.md §4.4.8). Cache invalidation
// driven by pInvalidator is checked lazily at lookup time (RegisterCache
// compares each invalidator's current count against the count recorded
// at Store time), so bump needs no explicit fan-out.
func (d *Document) bump(n *Node) { n.changeCount++ }

// NodeBuilder assembles one Node via chained setters before Build
// assigns it a NodeID and adds it to the Document. The chain-of-setters
// shape mirrors spec.md §3's table of property nodes (Value/pValue,
// Min/pMin, ...) without needing one constructor per permutation.
type NodeBuilder struct {
	doc *Document
	n   Node
}

// NewNode starts building a node of the given kind and name.
func (d *Document) NewNode(kind NodeKind, name string) *NodeBuilder {
	return &NodeBuilder{doc: d, n: Node{Name: name, Kind: kind, imposedAccess: AccessReadWrite}}
}

func (b *NodeBuilder) Build() NodeID { return b.doc.addNode(b.n) }

func (b *NodeBuilder) Children(names ...string) *NodeBuilder {
	b.n.children = append(b.n.children, names...)
	return b
}
func (b *NodeBuilder) Value(v int64) *NodeBuilder                   { b.n.value = literalInt(v); return b }
func (b *NodeBuilder) ValueFloat(v float64) *NodeBuilder             { b.n.value = literalFloat(v); return b }
func (b *NodeBuilder) ValueString(v string) *NodeBuilder             { b.n.value = literalString(v); return b }
func (b *NodeBuilder) PValue(name string) *NodeBuilder               { b.n.value = pointerTo(name); return b }
func (b *NodeBuilder) Min(v int64) *NodeBuilder                      { b.n.min = literalInt(v); return b }
func (b *NodeBuilder) MinFloat(v float64) *NodeBuilder               { b.n.min = literalFloat(v); return b }
func (b *NodeBuilder) PMin(name string) *NodeBuilder                 { b.n.min = pointerTo(name); return b }
func (b *NodeBuilder) Max(v int64) *NodeBuilder                      { b.n.max = literalInt(v); return b }
func (b *NodeBuilder) MaxFloat(v float64) *NodeBuilder               { b.n.max = literalFloat(v); return b }
func (b *NodeBuilder) PMax(name string) *NodeBuilder                 { b.n.max = pointerTo(name); return b }
func (b *NodeBuilder) Inc(v int64) *NodeBuilder                      { b.n.inc = literalInt(v); return b }
func (b *NodeBuilder) IncFloat(v float64) *NodeBuilder               { b.n.inc = literalFloat(v); return b }
func (b *NodeBuilder) Unit(u string) *NodeBuilder                    { b.n.unit = u; return b }
func (b *NodeBuilder) Representation(r Representation) *NodeBuilder  { b.n.rep = r; return b }
func (b *NodeBuilder) MaxLength(n int64) *NodeBuilder                { b.n.maxLength = n; return b }

func (b *NodeBuilder) EnumEntries(names ...string) *NodeBuilder {
	b.n.enumEntries = append(b.n.enumEntries, names...)
	return b
}
func (b *NodeBuilder) NumericValue(v int64) *NodeBuilder { b.n.numericValue = v; return b }

func (b *NodeBuilder) Address(v uint64) *NodeBuilder       { b.n.address = literalInt(int64(v)); return b }
func (b *NodeBuilder) PAddress(name string) *NodeBuilder   { b.n.address = pointerTo(name); return b }
func (b *NodeBuilder) Length(n int64) *NodeBuilder         { b.n.length = literalInt(n); return b }
func (b *NodeBuilder) PLength(name string) *NodeBuilder    { b.n.length = pointerTo(name); return b }
func (b *NodeBuilder) Endianness(e ByteOrder) *NodeBuilder { b.n.endianness = e; return b }
func (b *NodeBuilder) Sign(s Sign) *NodeBuilder            { b.n.sign = s; return b }
func (b *NodeBuilder) Bits(lsb, msb int) *NodeBuilder      { b.n.lsb, b.n.msb = lsb, msb; return b }
func (b *NodeBuilder) Cachable(c Cachable) *NodeBuilder    { b.n.cachable = c; return b }
func (b *NodeBuilder) Port(name string) *NodeBuilder       { b.n.port = name; return b }
func (b *NodeBuilder) Invalidators(names ...string) *NodeBuilder {
	b.n.invalidators = append(b.n.invalidators, names...)
	return b
}
func (b *NodeBuilder) StructReg(name string) *NodeBuilder { b.n.structReg = name; return b }

func (b *NodeBuilder) Formula(f string) *NodeBuilder { b.n.formula = f; return b }
func (b *NodeBuilder) ConverterFormulas(to, from, convertsNode string) *NodeBuilder {
	b.n.formulaTo, b.n.formulaFrom, b.n.convertsNode = to, from, convertsNode
	return b
}
func (b *NodeBuilder) Variable(name, pointee string) *NodeBuilder {
	if b.n.variables == nil {
		b.n.variables = make(map[string]string)
	}
	b.n.variables[name] = pointee
	return b
}

func (b *NodeBuilder) ChunkPort(chunkID uint32) *NodeBuilder {
	b.n.isChunkPort = true
	b.n.chunkID = chunkID
	return b
}

func (b *NodeBuilder) Access(m AccessMode) *NodeBuilder { b.n.imposedAccess = m; return b }
func (b *NodeBuilder) Selected(names ...string) *NodeBuilder {
	b.n.pSelected = append(b.n.pSelected, names...)
	return b
}
func (b *NodeBuilder) IsImplemented(name string) *NodeBuilder { b.n.pIsImplemented = name; return b }
func (b *NodeBuilder) IsAvailable(name string) *NodeBuilder   { b.n.pIsAvailable = name; return b }
func (b *NodeBuilder) IsLocked(name string) *NodeBuilder      { b.n.pIsLocked = name; return b }

// --- boolean property resolution (pIsImplemented/pIsAvailable/pIsLocked) ---
// All unlocked: callers already hold d.mu.

func (d *Document) resolveBoolProperty(pointee string) (bool, error) {
	if pointee == "" {
		return true, nil
	}
	return d.getBoolByName(pointee)
}

// IsImplemented reports whether the named feature is implemented,
// defaulting to true when no pIsImplemented property is set.
func (d *Document) IsImplemented(name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(name)
	if err != nil {
		return false, err
	}
	return d.resolveBoolProperty(n.pIsImplemented)
}

// IsAvailable reports whether the named feature is currently available.
func (d *Document) IsAvailable(name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(name)
	if err != nil {
		return false, err
	}
	return d.resolveBoolProperty(n.pIsAvailable)
}

// IsLocked reports whether the named feature is currently locked
// (forced read-only regardless of its imposed access mode).
func (d *Document) IsLocked(name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(name)
	if err != nil {
		return false, err
	}
	if n.pIsLocked == "" {
		return false, nil
	}
	return d.resolveBoolProperty(n.pIsLocked)
}

func (d *Document) accessModeOf(n *Node) (AccessMode, error) {
	locked := false
	if n.pIsLocked != "" {
		l, err := d.resolveBoolProperty(n.pIsLocked)
		if err != nil {
			return AccessNotImplemented, err
		}
		locked = l
	}
	mode := n.imposedAccess
	if locked {
		switch mode {
		case AccessReadWrite:
			mode = AccessReadOnly
		case AccessWriteOnly:
			mode = AccessNotImplemented
		}
	}
	return mode, nil
}

// AccessModeOf returns the effective access mode of the named node:
// its imposed access mode narrowed by IsLocked (spec.md §4.4.6).
func (d *Document) AccessModeOf(name string) (AccessMode, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(name)
	if err != nil {
		return AccessNotImplemented, err
	}
	return d.accessModeOf(n)
}

func (d *Document) checkReadable(n *Node) error {
	if d.accessCheckPolicy == AccessCheckDisable {
		return nil
	}
	mode, err := d.accessModeOf(n)
	if err != nil {
		return err
	}
	if !mode.CanRead() {
		return fmt.Errorf("genicam: %s: %w", n.Name, ErrAccessDenied)
	}
	return nil
}

func (d *Document) checkWritable(n *Node) error {
	if d.accessCheckPolicy == AccessCheckDisable {
		return nil
	}
	mode, err := d.accessModeOf(n)
	if err != nil {
		return err
	}
	if !mode.CanWrite() {
		return fmt.Errorf("genicam: %s: %w", n.Name, ErrAccessDenied)
	}
	return nil
}

// --- selector / selected (spec.md §4.4.7) ---

// SelectedFeatures returns the names of the features this node selects
// among, for a node acting as a "selector" (e.g. gain channel).
func (d *Document) SelectedFeatures(name string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), n.pSelected...), nil
}

// --- integer/float ref resolution (used by Min/Max/Inc/Address/Length) ---

func (d *Document) resolveRefInt(r ref, fallback int64, haveFallback bool) (int64, error) {
	if r.isPointer {
		return d.getIntByName(r.pointee)
	}
	if r.hasLit {
		if r.intLit != 0 || r.floatLit == 0 {
			return r.intLit, nil
		}
		return int64(r.floatLit), nil
	}
	if haveFallback {
		return fallback, nil
	}
	return 0, ErrPropertyNotDefined
}

func (d *Document) resolveRefFloat(r ref, fallback float64, haveFallback bool) (float64, error) {
	if r.isPointer {
		return d.getFloatByName(r.pointee)
	}
	if r.hasLit {
		if r.floatLit != 0 || r.intLit == 0 {
			return r.floatLit, nil
		}
		return float64(r.intLit), nil
	}
	if haveFallback {
		return fallback, nil
	}
	return 0, ErrPropertyNotDefined
}

// MaskedBounds returns the theoretical [min, max] for a masked bit
// field of width w under sign s (spec.md §4.4.3, P5).
func MaskedBounds(width int, sign Sign) (min, max int64) {
	if width <= 0 {
		return 0, 0
	}
	if width >= 64 {
		if sign == Signed {
			return math.MinInt64, math.MaxInt64
		}
		return 0, math.MaxInt64
	}
	if sign == Unsigned {
		return 0, (int64(1) << uint(width)) - 1
	}
	return -(int64(1) << uint(width-1)), (int64(1) << uint(width-1)) - 1
}

// resolvedPort is a Port plus the address transform needed to reach it:
// the identity for the device's own memory port, or one that packs a
// chunk id ahead of the in-chunk offset for a chunk-bound register
// (spec.md §4.5).
type resolvedPort struct {
	port      Port
	remapAddr func(uint64) uint64
}

func (d *Document) portFor(n *Node) (resolvedPort, error) {
	identity := func(a uint64) uint64 { return a }
	if n.port == "" {
		if d.port == nil {
			return resolvedPort{}, fmt.Errorf("genicam: %s: %w", n.Name, ErrPropertyNotDefined)
		}
		return resolvedPort{port: d.port, remapAddr: identity}, nil
	}
	pn, err := d.node(n.port)
	if err != nil {
		return resolvedPort{}, err
	}
	if pn.isChunkPort {
		if d.chunkFind == nil {
			return resolvedPort{}, fmt.Errorf("genicam: %s: chunk port not bound: %w", n.Name, ErrAccessDenied)
		}
		cp := &chunkPort{find: d.chunkFind}
		chunkID := pn.chunkID
		return resolvedPort{port: cp, remapAddr: func(a uint64) uint64 { return chunkAddress(chunkID, uint32(a)) }}, nil
	}
	if d.port == nil {
		return resolvedPort{}, fmt.Errorf("genicam: %s: %w", n.Name, ErrPropertyNotDefined)
	}
	return resolvedPort{port: d.port, remapAddr: identity}, nil
}

func regLength(n *Node, def int64) int64 {
	if n.length.hasLit && n.length.intLit != 0 {
		return n.length.intLit
	}
	return def
}

// readRegisterRaw resolves address/length for a register-family node,
// consulting the register cache per spec.md §4.4.4 (Cachable,
// CachePolicy), then reading through the resolved Port.
func (d *Document) readRegisterRaw(n *Node) (addr uint64, length int, data []byte, err error) {
	a, err := d.resolveRefInt(n.address, 0, false)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("genicam: %s: address: %w", n.Name, err)
	}
	addr = uint64(a)
	length = int(regLength(n, 4))

	useCache := (d.cachePolicy == CachePolicyEnable || d.cachePolicy == CachePolicyDebug) && n.cachable != NoCache

	if useCache {
		if cached, ok := d.cache.Lookup(addr, length, d.changeCountOf); ok {
			if d.cachePolicy == CachePolicyDebug {
				if fresh, ferr := d.readRegisterDevice(n, addr, length); ferr == nil && string(fresh) != string(cached) {
					fmt.Printf("genicam: cache debug mismatch at %s (0x%x)\n", n.Name, addr)
				}
			}
			return addr, length, cached, nil
		}
	}

	data, err = d.readRegisterDevice(n, addr, length)
	if err != nil {
		return addr, length, nil, err
	}
	if useCache {
		d.cache.Store(addr, length, data, d.invalidatorIDs(n), d.changeCountOf)
	}
	return addr, length, data, nil
}

func (d *Document) readRegisterDevice(n *Node, addr uint64, length int) ([]byte, error) {
	rp, err := d.portFor(n)
	if err != nil {
		return nil, err
	}
	data, err := d.readThroughPort(rp, addr, length, n.endianness)
	if err != nil {
		return nil, fmt.Errorf("genicam: %s: read at 0x%x: %w", n.Name, addr, err)
	}
	return data, nil
}

// readThroughPort reads length bytes at addr through rp, using the
// narrow ReadRegister command in place of ReadMemory for a 4-byte
// access when legacyRegisterMode is active and rp.port supports it. The
// register command returns one already-assembled 32-bit value (that is
// the point of bypassing the generic memory path for these devices), so
// it is re-encoded in order to hand the rest of the read path bytes it
// can decode exactly as it would have decoded a ReadMemory result.
func (d *Document) readThroughPort(rp resolvedPort, addr uint64, length int, order ByteOrder) ([]byte, error) {
	if length == 4 && d.legacyRegisterMode() {
		if reg, ok := rp.port.(RegisterPort); ok {
			v, err := reg.ReadRegister(bgCtx, rp.remapAddr(addr))
			if err != nil {
				return nil, err
			}
			buf := make([]byte, 4)
			order.order().PutUint32(buf, v)
			return buf, nil
		}
	}
	return rp.port.ReadMemory(bgCtx, rp.remapAddr(addr), uint32(length))
}

func (d *Document) invalidatorIDs(n *Node) []NodeID {
	ids := make([]NodeID, 0, len(n.invalidators))
	for _, name := range n.invalidators {
		if id, ok := d.byName[name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (d *Document) writeRegisterRaw(n *Node, addr uint64, length int, data []byte) error {
	rp, err := d.portFor(n)
	if err != nil {
		return err
	}
	if err := d.writeThroughPort(rp, addr, length, data, n.endianness); err != nil {
		return fmt.Errorf("genicam: %s: write at 0x%x: %w", n.Name, addr, err)
	}
	switch n.cachable {
	case WriteThrough:
		if d.cachePolicy != CachePolicyDisable {
			d.cache.Store(addr, length, data, d.invalidatorIDs(n), d.changeCountOf)
		}
	case WriteAround:
		d.cache.Invalidate(addr, length)
	}
	return nil
}

// writeThroughPort writes data (length bytes, already encoded per
// order) at addr through rp, using the narrow WriteRegister command in
// place of WriteMemory for a 4-byte access when legacyRegisterMode is
// active and rp.port supports it.
func (d *Document) writeThroughPort(rp resolvedPort, addr uint64, length int, data []byte, order ByteOrder) error {
	if length == 4 && d.legacyRegisterMode() {
		if reg, ok := rp.port.(RegisterPort); ok {
			return reg.WriteRegister(bgCtx, rp.remapAddr(addr), order.order().Uint32(data))
		}
	}
	return rp.port.WriteMemory(bgCtx, rp.remapAddr(addr), data)
}

func intFromBytes(data []byte, order ByteOrder, sign Sign) int64 {
	n := len(data)
	var u uint64
	if order == LittleEndian {
		for i := n - 1; i >= 0; i-- {
			u = u<<8 | uint64(data[i])
		}
	} else {
		for i := 0; i < n; i++ {
			u = u<<8 | uint64(data[i])
		}
	}
	if sign == Unsigned || n >= 8 {
		return int64(u)
	}
	signBit := int64(1) << uint(n*8-1)
	v := int64(u)
	if v&signBit != 0 {
		v -= int64(1) << uint(n*8)
	}
	return v
}

func intToBytes(v int64, length int, order ByteOrder) []byte {
	buf := make([]byte, length)
	u := uint64(v)
	if order == LittleEndian {
		for i := 0; i < length; i++ {
			buf[i] = byte(u)
			u >>= 8
		}
	} else {
		for i := length - 1; i >= 0; i-- {
			buf[i] = byte(u)
			u >>= 8
		}
	}
	return buf
}

// readIntReg reads an IntReg or MaskedIntReg node's integer value
// (spec.md §4.4.3).
func (d *Document) readIntReg(n *Node) (int64, error) {
	_, length, data, err := d.readRegisterRaw(n)
	if err != nil {
		return 0, err
	}
	if n.Kind != KindMaskedIntReg {
		return intFromBytes(data, n.endianness, n.sign), nil
	}
	full := intFromBytes(data, n.endianness, Unsigned)
	width := n.msb - n.lsb + 1
	if width <= 0 || n.msb >= length*8 {
		return 0, fmt.Errorf("genicam: %s: %w", n.Name, ErrInvalidBitRange)
	}
	mask := int64(1)<<uint(width) - 1
	v := (full >> uint(n.lsb)) & mask
	if n.sign == Signed {
		signBit := int64(1) << uint(width-1)
		if v&signBit != 0 {
			v -= int64(1) << uint(width)
		}
	}
	return v, nil
}

// writeIntReg writes an IntReg or MaskedIntReg node's integer value. A
// masked write reads the full register (cached copy if valid), patches
// the bit range, and writes back (spec.md §4.4.3).
func (d *Document) writeIntReg(n *Node, value int64) error {
	if n.Kind != KindMaskedIntReg {
		addr, err := d.resolveRefInt(n.address, 0, false)
		if err != nil {
			return err
		}
		length := int(regLength(n, 4))
		data := intToBytes(value, length, n.endianness)
		return d.writeRegisterRaw(n, uint64(addr), length, data)
	}

	addr, length, data, err := d.readRegisterRaw(n)
	if err != nil {
		return err
	}
	full := intFromBytes(data, n.endianness, Unsigned)
	width := n.msb - n.lsb + 1
	if width <= 0 || n.msb >= length*8 {
		return fmt.Errorf("genicam: %s: %w", n.Name, ErrInvalidBitRange)
	}
	mask := int64(1)<<uint(width) - 1
	full &^= mask << uint(n.lsb)
	full |= (value & mask) << uint(n.lsb)
	return d.writeRegisterRaw(n, addr, length, intToBytes(full, length, n.endianness))
}

// rangeCheckInt enforces spec.md §4.4.5: min <= value <= max and
// (value-min) mod inc == 0. A node that lacks Min or Max is not
// range-checked.
func (d *Document) rangeCheckInt(n *Node, value int64) error {
	if d.rangeCheckPolicy == RangeCheckDisable {
		return nil
	}
	minV, err := d.resolveRefInt(n.min, 0, false)
	if err != nil {
		return nil
	}
	maxV, err := d.resolveRefInt(n.max, 0, false)
	if err != nil {
		return nil
	}
	if value < minV || value > maxV {
		return fmt.Errorf("genicam: %s: value %d out of range [%d,%d]: %w", n.Name, value, minV, maxV, ErrOutOfRange)
	}
	if inc, err := d.resolveRefInt(n.inc, 1, true); err == nil && inc > 0 && (value-minV)%inc != 0 {
		return fmt.Errorf("genicam: %s: value %d not aligned to inc %d from %d: %w", n.Name, value, inc, minV, ErrOutOfRange)
	}
	return nil
}

func (d *Document) rangeCheckFloat(n *Node, value float64) error {
	if d.rangeCheckPolicy == RangeCheckDisable {
		return nil
	}
	minV, err := d.resolveRefFloat(n.min, 0, false)
	if err != nil {
		return nil
	}
	maxV, err := d.resolveRefFloat(n.max, 0, false)
	if err != nil {
		return nil
	}
	if value < minV || value > maxV {
		return fmt.Errorf("genicam: %s: value %g out of range [%g,%g]: %w", n.Name, value, minV, maxV, ErrOutOfRange)
	}
	return nil
}

// --- unlocked by-name helpers: used internally by recursive resolution
// so a pValue chain never re-enters d.mu (sync.Mutex is not reentrant).

func (d *Document) getIntByName(name string) (int64, error) {
	n, err := d.node(name)
	if err != nil {
		return 0, err
	}
	return d.getIntegerNode(n)
}
func (d *Document) setIntByName(name string, v int64) error {
	n, err := d.node(name)
	if err != nil {
		return err
	}
	return d.setIntegerNode(n, v)
}
func (d *Document) getFloatByName(name string) (float64, error) {
	n, err := d.node(name)
	if err != nil {
		return 0, err
	}
	return d.getFloatNode(n)
}
func (d *Document) setFloatByName(name string, v float64) error {
	n, err := d.node(name)
	if err != nil {
		return err
	}
	return d.setFloatNode(n, v)
}
func (d *Document) getBoolByName(name string) (bool, error) {
	n, err := d.node(name)
	if err != nil {
		return false, err
	}
	return d.getBooleanNode(n)
}
func (d *Document) setBoolByName(name string, v bool) error {
	n, err := d.node(name)
	if err != nil {
		return err
	}
	return d.setBooleanNode(n, v)
}
func (d *Document) getStringByName(name string) (string, error) {
	n, err := d.node(name)
	if err != nil {
		return "", err
	}
	return d.getStringNode(n)
}
func (d *Document) setStringByName(name string, v string) error {
	n, err := d.node(name)
	if err != nil {
		return err
	}
	return d.setStringNode(n, v)
}

// --- public scalar API: each locks once, then delegates to the
// unlocked *Node-based resolution, which may recurse through pValue
// chains via the *ByName helpers above without re-locking.

// GetInteger resolves the named node's integer value through its
// resolution chain (spec.md §4.4.1): literal, pValue, register family,
// converter, or swiss-knife.
func (d *Document) GetInteger(name string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getIntByName(name)
}

func (d *Document) getIntegerNode(n *Node) (int64, error) {
	if err := d.checkReadable(n); err != nil {
		return 0, err
	}
	switch n.Kind {
	case KindInteger, KindCommand:
		if n.value.isPointer {
			return d.getIntByName(n.value.pointee)
		}
		if n.value.hasLit {
			return n.value.intLit, nil
		}
		return 0, fmt.Errorf("genicam: %s: %w", n.Name, ErrPvalueNotDefined)
	case KindBoolean:
		b, err := d.getBooleanNode(n)
		if err != nil {
			return 0, err
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case KindEnumeration:
		if n.value.isPointer {
			return d.getIntByName(n.value.pointee)
		}
		return n.value.intLit, nil
	case KindEnumEntry:
		return n.numericValue, nil
	case KindIntReg, KindMaskedIntReg:
		return d.readIntReg(n)
	case KindIntSwissKnife:
		v, err := d.evalFormula(n, IntMode)
		if err != nil {
			return 0, err
		}
		return int64(v), nil
	case KindIntConverter:
		v, err := d.evalConverterRead(n, IntMode)
		if err != nil {
			return 0, err
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("genicam: %s: %w", n.Name, ErrWrongNodeKind)
	}
}

// SetInteger writes the named node's integer value, applying range and
// access checks and propagating change_count (spec.md §4.4.5, §4.4.8).
func (d *Document) SetInteger(name string, value int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setIntByName(name, value)
}

func (d *Document) setIntegerNode(n *Node, value int64) error {
	if err := d.checkWritable(n); err != nil {
		return err
	}
	switch n.Kind {
	case KindInteger, KindCommand:
		if err := d.rangeCheckInt(n, value); err != nil {
			return err
		}
		if n.value.isPointer {
			if err := d.setIntByName(n.value.pointee, value); err != nil {
				return err
			}
		} else {
			n.value = literalInt(value)
		}
		d.bump(n)
		return nil
	case KindBoolean:
		return d.setBooleanNode(n, value != 0)
	case KindEnumeration:
		found := false
		for _, en := range n.enumEntries {
			if en2, err := d.node(en); err == nil && en2.numericValue == value {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("genicam: %s: value %d: %w", n.Name, value, ErrEnumEntryNotFound)
		}
		if n.value.isPointer {
			if err := d.setIntByName(n.value.pointee, value); err != nil {
				return err
			}
		} else {
			n.value = literalInt(value)
		}
		d.bump(n)
		return nil
	case KindIntReg, KindMaskedIntReg:
		if n.Kind == KindMaskedIntReg {
			lo, hi := MaskedBounds(n.msb-n.lsb+1, n.sign)
			if value < lo || value > hi {
				return fmt.Errorf("genicam: %s: value %d out of range [%d,%d]: %w", n.Name, value, lo, hi, ErrOutOfRange)
			}
		}
		if err := d.writeIntReg(n, value); err != nil {
			return err
		}
		d.bump(n)
		return nil
	case KindIntConverter:
		return d.evalConverterWrite(n, float64(value), IntMode)
	default:
		return fmt.Errorf("genicam: %s: %w", n.Name, ErrWrongNodeKind)
	}
}

// --- float ---

func (d *Document) GetFloat(name string) (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getFloatByName(name)
}

func (d *Document) getFloatNode(n *Node) (float64, error) {
	if err := d.checkReadable(n); err != nil {
		return 0, err
	}
	switch n.Kind {
	case KindFloat:
		if n.value.isPointer {
			return d.getFloatByName(n.value.pointee)
		}
		if n.value.hasLit {
			if n.value.floatLit != 0 || n.value.intLit == 0 {
				return n.value.floatLit, nil
			}
			return float64(n.value.intLit), nil
		}
		return 0, fmt.Errorf("genicam: %s: %w", n.Name, ErrPvalueNotDefined)
	case KindInteger, KindIntReg, KindMaskedIntReg, KindIntSwissKnife, KindIntConverter, KindBoolean, KindEnumeration, KindEnumEntry, KindCommand:
		v, err := d.getIntegerNode(n)
		return float64(v), err
	case KindFloatReg:
		return d.readFloatReg(n)
	case KindSwissKnife:
		return d.evalFormula(n, FloatMode)
	case KindConverter:
		return d.evalConverterRead(n, FloatMode)
	default:
		return 0, fmt.Errorf("genicam: %s: %w", n.Name, ErrWrongNodeKind)
	}
}

func (d *Document) SetFloat(name string, value float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setFloatByName(name, value)
}

func (d *Document) setFloatNode(n *Node, value float64) error {
	if err := d.checkWritable(n); err != nil {
		return err
	}
	switch n.Kind {
	case KindFloat:
		if err := d.rangeCheckFloat(n, value); err != nil {
			return err
		}
		if n.value.isPointer {
			if err := d.setFloatByName(n.value.pointee, value); err != nil {
				return err
			}
		} else {
			n.value = literalFloat(value)
		}
		d.bump(n)
		return nil
	case KindFloatReg:
		if err := d.writeFloatReg(n, value); err != nil {
			return err
		}
		d.bump(n)
		return nil
	case KindConverter:
		return d.evalConverterWrite(n, value, FloatMode)
	case KindInteger, KindIntReg, KindMaskedIntReg:
		return d.setIntegerNode(n, int64(value))
	default:
		return fmt.Errorf("genicam: %s: %w", n.Name, ErrWrongNodeKind)
	}
}

func (d *Document) readFloatReg(n *Node) (float64, error) {
	_, length, data, err := d.readRegisterRaw(n)
	if err != nil {
		return 0, err
	}
	bits := uint64(intFromBytes(data, n.endianness, Unsigned))
	if length == 4 {
		return float64(math.Float32frombits(uint32(bits))), nil
	}
	return math.Float64frombits(bits), nil
}

func (d *Document) writeFloatReg(n *Node, value float64) error {
	addr, err := d.resolveRefInt(n.address, 0, false)
	if err != nil {
		return err
	}
	length := int(regLength(n, 4))
	var bits uint64
	if length == 4 {
		bits = uint64(math.Float32bits(float32(value)))
	} else {
		bits = math.Float64bits(value)
	}
	return d.writeRegisterRaw(n, uint64(addr), length, intToBytes(int64(bits), length, n.endianness))
}

// --- boolean ---

func (d *Document) GetBoolean(name string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getBoolByName(name)
}

func (d *Document) getBooleanNode(n *Node) (bool, error) {
	if err := d.checkReadable(n); err != nil {
		return false, err
	}
	switch n.Kind {
	case KindBoolean:
		if n.value.isPointer {
			return d.getBoolByName(n.value.pointee)
		}
		return n.value.intLit != 0, nil
	case KindIntReg, KindMaskedIntReg, KindInteger:
		v, err := d.getIntegerNode(n)
		return v != 0, err
	default:
		return false, fmt.Errorf("genicam: %s: %w", n.Name, ErrWrongNodeKind)
	}
}

func (d *Document) SetBoolean(name string, value bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setBoolByName(name, value)
}

func (d *Document) setBooleanNode(n *Node, value bool) error {
	if err := d.checkWritable(n); err != nil {
		return err
	}
	var iv int64
	if value {
		iv = 1
	}
	switch n.Kind {
	case KindBoolean:
		if n.value.isPointer {
			if err := d.setBoolByName(n.value.pointee, value); err != nil {
				return err
			}
		} else {
			n.value = literalInt(iv)
		}
		d.bump(n)
		return nil
	case KindIntReg, KindMaskedIntReg, KindInteger:
		return d.setIntegerNode(n, iv)
	default:
		return fmt.Errorf("genicam: %s: %w", n.Name, ErrWrongNodeKind)
	}
}

// --- string ---

func (d *Document) GetString(name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getStringByName(name)
}

func (d *Document) getStringNode(n *Node) (string, error) {
	if err := d.checkReadable(n); err != nil {
		return "", err
	}
	switch n.Kind {
	case KindString:
		if n.value.isPointer {
			return d.getStringByName(n.value.pointee)
		}
		return n.value.stringLit, nil
	case KindStringReg:
		_, _, data, err := d.readRegisterRaw(n)
		if err != nil {
			return "", err
		}
		return cstringFrom(data), nil
	case KindEnumeration:
		return d.enumSymbolic(n)
	default:
		return "", fmt.Errorf("genicam: %s: %w", n.Name, ErrWrongNodeKind)
	}
}

func cstringFrom(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

func (d *Document) SetString(name string, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setStringByName(name, value)
}

func (d *Document) setStringNode(n *Node, value string) error {
	if err := d.checkWritable(n); err != nil {
		return err
	}
	switch n.Kind {
	case KindString:
		if n.maxLength > 0 && int64(len(value)) > n.maxLength {
			return fmt.Errorf("genicam: %s: string of length %d exceeds MaxLength %d: %w", n.Name, len(value), n.maxLength, ErrOutOfRange)
		}
		if n.value.isPointer {
			if err := d.setStringByName(n.value.pointee, value); err != nil {
				return err
			}
		} else {
			n.value = literalString(value)
		}
		d.bump(n)
		return nil
	case KindStringReg:
		length := int(regLength(n, int64(len(value)+1)))
		buf := make([]byte, length)
		copy(buf, value)
		addr, err := d.resolveRefInt(n.address, 0, false)
		if err != nil {
			return err
		}
		if err := d.writeRegisterRaw(n, uint64(addr), length, buf); err != nil {
			return err
		}
		d.bump(n)
		return nil
	case KindEnumeration:
		return d.setEnumSymbolic(n, value)
	default:
		return fmt.Errorf("genicam: %s: %w", n.Name, ErrWrongNodeKind)
	}
}

// --- enumeration ---

func (d *Document) enumSymbolic(n *Node) (string, error) {
	cur, err := d.getIntegerNode(n)
	if err != nil {
		return "", err
	}
	if len(n.enumEntries) == 0 {
		return "", ErrEmptyEnumeration
	}
	for _, name := range n.enumEntries {
		en, err := d.node(name)
		if err != nil {
			continue
		}
		if en.numericValue == cur {
			return en.Name, nil
		}
	}
	return "", fmt.Errorf("genicam: %s: value %d: %w", n.Name, cur, ErrEnumEntryNotFound)
}

func (d *Document) setEnumSymbolic(n *Node, entryName string) error {
	en, err := d.node(entryName)
	if err != nil || en.Kind != KindEnumEntry {
		return fmt.Errorf("genicam: %s: entry %q: %w", n.Name, entryName, ErrEnumEntryNotFound)
	}
	return d.setIntegerNode(n, en.numericValue)
}

// GetEnumSymbolic returns the currently-selected entry's name.
func (d *Document) GetEnumSymbolic(name string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(name)
	if err != nil {
		return "", err
	}
	if n.Kind != KindEnumeration {
		return "", fmt.Errorf("genicam: %s: %w", name, ErrWrongNodeKind)
	}
	return d.enumSymbolic(n)
}

// SetEnumSymbolic selects entryName on the named Enumeration node.
func (d *Document) SetEnumSymbolic(name, entryName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(name)
	if err != nil {
		return err
	}
	if n.Kind != KindEnumeration {
		return fmt.Errorf("genicam: %s: %w", name, ErrWrongNodeKind)
	}
	return d.setEnumSymbolic(n, entryName)
}

// --- command ---

// ExecuteCommand performs the side-effectful write of a Command node
// (spec.md §3 "Command: side-effectful write"). Executing
// AcquisitionStart also clears the whole register cache.
func (d *Document) ExecuteCommand(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.node(name)
	if err != nil {
		return err
	}
	if n.Kind != KindCommand {
		return fmt.Errorf("genicam: %s: %w", name, ErrWrongNodeKind)
	}
	if err := d.setIntegerNode(n, 1); err != nil {
		return err
	}
	if name == "AcquisitionStart" {
		d.cache.InvalidateAll()
	}
	return nil
}

// --- SwissKnife / Converter (spec.md §4.4.1, §4.4.2) ---

func (d *Document) buildVars(n *Node) (map[string]float64, error) {
	vars := make(map[string]float64, len(n.variables))
	for name, pointee := range n.variables {
		v, err := d.getFloatByName(pointee)
		if err != nil {
			return nil, fmt.Errorf("genicam: %s: variable %s (%s): %w", n.Name, name, pointee, err)
		}
		vars[name] = v
	}
	return vars, nil
}

func (d *Document) evalFormula(n *Node, mode Mode) (float64, error) {
	vars, err := d.buildVars(n)
	if err != nil {
		return 0, err
	}
	v, err := Evaluate(n.formula, vars, mode)
	if err != nil {
		return 0, fmt.Errorf("genicam: %s: %w", n.Name, err)
	}
	return v, nil
}

func (d *Document) evalConverterRead(n *Node, mode Mode) (float64, error) {
	vars, err := d.buildVars(n)
	if err != nil {
		return 0, err
	}
	to, err := d.getFloatByName(n.convertsNode)
	if err != nil {
		return 0, fmt.Errorf("genicam: %s: %w", n.Name, err)
	}
	vars["TO"] = to
	v, err := Evaluate(n.formulaFrom, vars, mode)
	if err != nil {
		return 0, fmt.Errorf("genicam: %s: %w", n.Name, err)
	}
	return v, nil
}

func (d *Document) evalConverterWrite(n *Node, value float64, mode Mode) error {
	vars, err := d.buildVars(n)
	if err != nil {
		return err
	}
	vars["FROM"] = value
	from, err := Evaluate(n.formulaTo, vars, mode)
	if err != nil {
		return fmt.Errorf("genicam: %s: %w", n.Name, err)
	}
	if mode == IntMode {
		if err := d.setIntByName(n.convertsNode, int64(from)); err != nil {
			return err
		}
	} else {
		if err := d.setFloatByName(n.convertsNode, from); err != nil {
			return err
		}
	}
	d.bump(n)
	return nil
}
