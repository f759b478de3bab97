package stub

import "fmt"

// TokenKind selects the metadata table a stub-local token lives in.
type TokenKind uint8

const (
	TokenType TokenKind = iota
	TokenMethod
	TokenField
	TokenSignature
)

var tokenTables = [...]uint32{
	TokenType:      0x02000000,
	TokenMethod:    0x06000000,
	TokenField:     0x04000000,
	TokenSignature: 0x11000000,
}

func (k TokenKind) String() string {
	switch k {
	case TokenType:
		return "type"
	case TokenMethod:
		return "method"
	case TokenField:
		return "field"
	case TokenSignature:
		return "signature"
	default:
		return fmt.Sprintf("token_kind(%d)", uint8(k))
	}
}

// TargetSigToken is the operand of the call emitted by EmitCallTarget. It
// names the stub's own target signature, which is only final after Build.
const TargetSigToken uint32 = 0x11FFFFFF

// TokenEntry records what a stub-local token refers to.
type TokenEntry struct {
	Sig   []byte
	Ref   uint64
	Token uint32
	Kind  TokenKind
}

type tokenKey struct {
	ref  uint64
	kind TokenKind
}

// tokenMap hands out per-stub tokens, one per distinct reference.
type tokenMap struct {
	byRef   map[tokenKey]uint32
	bySig   map[string]uint32
	entries []TokenEntry
	next    [len(tokenTables)]uint32
}

func (m *tokenMap) token(kind TokenKind, ref uint64) uint32 {
	key := tokenKey{ref: ref, kind: kind}
	if tok, ok := m.byRef[key]; ok {
		return tok
	}
	if m.byRef == nil {
		m.byRef = make(map[tokenKey]uint32)
	}
	tok := m.mint(kind)
	m.byRef[key] = tok
	m.entries = append(m.entries, TokenEntry{Token: tok, Kind: kind, Ref: ref})
	return tok
}

func (m *tokenMap) sigToken(raw []byte) uint32 {
	if tok, ok := m.bySig[string(raw)]; ok {
		return tok
	}
	if m.bySig == nil {
		m.bySig = make(map[string]uint32)
	}
	tok := m.mint(TokenSignature)
	m.bySig[string(raw)] = tok
	m.entries = append(m.entries, TokenEntry{
		Token: tok,
		Kind:  TokenSignature,
		Sig:   append([]byte(nil), raw...),
	})
	return tok
}

func (m *tokenMap) mint(kind TokenKind) uint32 {
	m.next[kind]++
	return tokenTables[kind] | m.next[kind]
}

func (m *tokenMap) snapshot() []TokenEntry {
	if len(m.entries) == 0 {
		return nil
	}
	return append([]TokenEntry(nil), m.entries...)
}
