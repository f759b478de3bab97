package stub

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
)

// Stub is a generated routine ready to be handed to an allocator.
type Stub struct {
	Code      []byte
	LocalSig  []byte
	TargetSig []byte
	EHClauses []EHClause
	Tokens    []TokenEntry
	MaxStack  int
}

// EHSection returns the encoded exception section, or nil without clauses.
func (s *Stub) EHSection() ([]byte, error) {
	return EncodeEHSection(s.EHClauses)
}

// Digest returns a blake3 hash over the generated code, signatures and
// exception clauses.
func (s *Stub) Digest() [32]byte {
	h := blake3.New()
	var hdr [8]byte

	for _, part := range [][]byte{s.Code, s.LocalSig, s.TargetSig} {
		binary.LittleEndian.PutUint64(hdr[:], uint64(len(part)))
		_, _ = h.Write(hdr[:])
		_, _ = h.Write(part)
	}
	binary.LittleEndian.PutUint64(hdr[:], uint64(s.MaxStack))
	_, _ = h.Write(hdr[:])

	var clause [24]byte
	for _, c := range s.EHClauses {
		binary.LittleEndian.PutUint32(clause[0:], c.Flags())
		binary.LittleEndian.PutUint32(clause[4:], c.TryOffset)
		binary.LittleEndian.PutUint32(clause[8:], c.TryLength)
		binary.LittleEndian.PutUint32(clause[12:], c.HandlerOffset)
		binary.LittleEndian.PutUint32(clause[16:], c.HandlerLength)
		binary.LittleEndian.PutUint32(clause[20:], c.ClassToken)
		_, _ = h.Write(clause[:])
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// DigestString returns the hex form of Digest.
func (s *Stub) DigestString() string {
	d := s.Digest()
	return hex.EncodeToString(d[:])
}

// Build serializes the signatures, links the streams and generates code.
// Signature failures are returned before any code is generated.
func (l *Linker) Build() (*Stub, error) {
	localSig, err := l.locals.Bytes()
	if err != nil {
		return nil, err
	}
	targetSig, err := l.target.Bytes()
	if err != nil {
		return nil, err
	}

	log := Logger()
	if ce := log.Check(zap.DebugLevel, "linking stub"); ce != nil {
		ce.Write(zap.String("streams", l.Dump()))
	}

	size, maxStack := l.Link()
	code := make([]byte, size)
	l.GenerateCode(code)

	st := &Stub{
		Code:      code,
		LocalSig:  localSig,
		TargetSig: targetSig,
		EHClauses: l.ehClauses(),
		Tokens:    l.tokens.snapshot(),
		MaxStack:  maxStack,
	}
	log.Debug("stub built",
		zap.Int("code_size", size),
		zap.Int("max_stack", maxStack),
		zap.Int("locals", l.locals.Count()),
		zap.Int("eh_clauses", len(st.EHClauses)),
	)
	return st, nil
}
