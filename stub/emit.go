package stub

import (
	"math"

	"github.com/wippyai/ilstub/errors"
	"github.com/wippyai/ilstub/opcode"
	"github.com/wippyai/ilstub/sig"
)

func (s *CodeStream) emit(op opcode.Opcode, delta int, arg uint64) {
	if delta < math.MinInt16 || delta > math.MaxInt16 {
		panic(errors.ContractViolation(errors.PhaseEmit, "%s stack delta %d out of range", op, delta))
	}
	s.Emit(op, int16(delta), arg)
}

func (s *CodeStream) branch(op opcode.Opcode, delta int16, lbl Label) {
	s.EmitBranch(op, delta, lbl)
}

func (s *CodeStream) emitIndex(op opcode.Opcode, delta int, idx int) {
	if idx < 0 || idx > math.MaxUint16 {
		panic(errors.ContractViolation(errors.PhaseEmit, "%s index %d out of range", op, idx))
	}
	s.emit(op, delta, uint64(idx))
}

// Arithmetic and logic.

func (s *CodeStream) EmitAdd()    { s.emit(opcode.Add, -1, 0) }
func (s *CodeStream) EmitAddOvf() { s.emit(opcode.AddOvf, -1, 0) }
func (s *CodeStream) EmitSub()    { s.emit(opcode.Sub, -1, 0) }
func (s *CodeStream) EmitMul()    { s.emit(opcode.Mul, -1, 0) }
func (s *CodeStream) EmitMulOvf() { s.emit(opcode.MulOvf, -1, 0) }
func (s *CodeStream) EmitAnd()    { s.emit(opcode.And, -1, 0) }
func (s *CodeStream) EmitOr()     { s.emit(opcode.Or, -1, 0) }
func (s *CodeStream) EmitXor()    { s.emit(opcode.Xor, -1, 0) }
func (s *CodeStream) EmitShrUn()  { s.emit(opcode.ShrUn, -1, 0) }
func (s *CodeStream) EmitNeg()    { s.emit(opcode.Neg, 0, 0) }
func (s *CodeStream) EmitNot()    { s.emit(opcode.Not, 0, 0) }

// Comparisons.

func (s *CodeStream) EmitCeq()   { s.emit(opcode.Ceq, -1, 0) }
func (s *CodeStream) EmitCgt()   { s.emit(opcode.Cgt, -1, 0) }
func (s *CodeStream) EmitCgtUn() { s.emit(opcode.CgtUn, -1, 0) }
func (s *CodeStream) EmitClt()   { s.emit(opcode.Clt, -1, 0) }
func (s *CodeStream) EmitCltUn() { s.emit(opcode.CltUn, -1, 0) }

// Stack manipulation.

func (s *CodeStream) EmitDup()     { s.emit(opcode.Dup, 1, 0) }
func (s *CodeStream) EmitPop()     { s.emit(opcode.Pop, -1, 0) }
func (s *CodeStream) EmitNop()     { s.emit(opcode.Nop, 0, 0) }
func (s *CodeStream) EmitBreak()   { s.emit(opcode.Break, 0, 0) }
func (s *CodeStream) EmitArglist() { s.emit(opcode.Arglist, 1, 0) }

// Constants.

func (s *CodeStream) EmitLdnull() { s.emit(opcode.Ldnull, 1, 0) }

// EmitLdc pushes an integer constant. Linking picks the shortest encoding.
func (s *CodeStream) EmitLdc(v int64) { s.emit(opcode.LdcI8, 1, uint64(v)) }

func (s *CodeStream) EmitLdcR4(v float32) { s.emit(opcode.LdcR4, 1, uint64(math.Float32bits(v))) }
func (s *CodeStream) EmitLdcR8(v float64) { s.emit(opcode.LdcR8, 1, math.Float64bits(v)) }

// EmitLoadNullPtr pushes a native-int zero.
func (s *CodeStream) EmitLoadNullPtr() {
	s.EmitLdc(0)
	s.EmitConvI()
}

// Conversions.

func (s *CodeStream) EmitConvI1()    { s.emit(opcode.ConvI1, 0, 0) }
func (s *CodeStream) EmitConvI2()    { s.emit(opcode.ConvI2, 0, 0) }
func (s *CodeStream) EmitConvI4()    { s.emit(opcode.ConvI4, 0, 0) }
func (s *CodeStream) EmitConvI8()    { s.emit(opcode.ConvI8, 0, 0) }
func (s *CodeStream) EmitConvU1()    { s.emit(opcode.ConvU1, 0, 0) }
func (s *CodeStream) EmitConvU2()    { s.emit(opcode.ConvU2, 0, 0) }
func (s *CodeStream) EmitConvU4()    { s.emit(opcode.ConvU4, 0, 0) }
func (s *CodeStream) EmitConvU8()    { s.emit(opcode.ConvU8, 0, 0) }
func (s *CodeStream) EmitConvR4()    { s.emit(opcode.ConvR4, 0, 0) }
func (s *CodeStream) EmitConvR8()    { s.emit(opcode.ConvR8, 0, 0) }
func (s *CodeStream) EmitConvI()     { s.emit(opcode.ConvI, 0, 0) }
func (s *CodeStream) EmitConvU()     { s.emit(opcode.ConvU, 0, 0) }
func (s *CodeStream) EmitConvOvfI4() { s.emit(opcode.ConvOvfI4, 0, 0) }

var convByElement = map[sig.ElementType]opcode.Opcode{
	sig.U1: opcode.ConvU1,
	sig.I1: opcode.ConvI1,
	sig.U2: opcode.ConvU2,
	sig.I2: opcode.ConvI2,
	sig.U4: opcode.ConvU4,
	sig.I4: opcode.ConvI4,
	sig.U8: opcode.ConvU8,
	sig.I8: opcode.ConvI8,
	sig.R4: opcode.ConvR4,
	sig.R8: opcode.ConvR8,
	sig.I:  opcode.ConvI,
	sig.U:  opcode.ConvU,
}

// EmitConvT converts the top of the stack to the given primitive type.
func (s *CodeStream) EmitConvT(t sig.ElementType) {
	op, ok := convByElement[t]
	if !ok {
		panic(errors.ContractViolation(errors.PhaseEmit, "no conversion to %s", t))
	}
	s.emit(op, 0, 0)
}

// Arguments and locals. Argument indices are shifted by one when the stub
// has an implicit this.

func (s *CodeStream) EmitLdarg(idx int) {
	s.emitIndex(opcode.Ldarg, 1, idx+s.owner.thisBias())
}

func (s *CodeStream) EmitLdarga(idx int) {
	s.emitIndex(opcode.Ldarga, 1, idx+s.owner.thisBias())
}

func (s *CodeStream) EmitStarg(idx int) { s.emitIndex(opcode.Starg, -1, idx) }

// EmitLoadThis pushes the implicit this argument.
func (s *CodeStream) EmitLoadThis() {
	if !s.owner.hasThis {
		panic(errors.ContractViolation(errors.PhaseEmit, "stub has no this argument"))
	}
	s.EmitLdarg(-1)
}

func (s *CodeStream) EmitLdloc(idx uint32)  { s.emitIndex(opcode.Ldloc, 1, int(idx)) }
func (s *CodeStream) EmitLdloca(idx uint32) { s.emitIndex(opcode.Ldloca, 1, int(idx)) }
func (s *CodeStream) EmitStloc(idx uint32)  { s.emitIndex(opcode.Stloc, -1, int(idx)) }

// Indirect loads and stores.

func (s *CodeStream) EmitLdindI1()  { s.emit(opcode.LdindI1, 0, 0) }
func (s *CodeStream) EmitLdindU1()  { s.emit(opcode.LdindU1, 0, 0) }
func (s *CodeStream) EmitLdindI2()  { s.emit(opcode.LdindI2, 0, 0) }
func (s *CodeStream) EmitLdindU2()  { s.emit(opcode.LdindU2, 0, 0) }
func (s *CodeStream) EmitLdindI4()  { s.emit(opcode.LdindI4, 0, 0) }
func (s *CodeStream) EmitLdindU4()  { s.emit(opcode.LdindU4, 0, 0) }
func (s *CodeStream) EmitLdindI8()  { s.emit(opcode.LdindI8, 0, 0) }
func (s *CodeStream) EmitLdindI()   { s.emit(opcode.LdindI, 0, 0) }
func (s *CodeStream) EmitLdindR4()  { s.emit(opcode.LdindR4, 0, 0) }
func (s *CodeStream) EmitLdindR8()  { s.emit(opcode.LdindR8, 0, 0) }
func (s *CodeStream) EmitLdindRef() { s.emit(opcode.LdindRef, 0, 0) }

func (s *CodeStream) EmitStindI1()  { s.emit(opcode.StindI1, -2, 0) }
func (s *CodeStream) EmitStindI2()  { s.emit(opcode.StindI2, -2, 0) }
func (s *CodeStream) EmitStindI4()  { s.emit(opcode.StindI4, -2, 0) }
func (s *CodeStream) EmitStindI8()  { s.emit(opcode.StindI8, -2, 0) }
func (s *CodeStream) EmitStindI()   { s.emit(opcode.StindI, -2, 0) }
func (s *CodeStream) EmitStindR4()  { s.emit(opcode.StindR4, -2, 0) }
func (s *CodeStream) EmitStindR8()  { s.emit(opcode.StindR8, -2, 0) }
func (s *CodeStream) EmitStindRef() { s.emit(opcode.StindRef, -2, 0) }

// EmitLdindT loads a value of the descriptor's type through the address on
// the stack. Pinned prefixes are ignored.
func (s *CodeStream) EmitLdindT(d sig.Descriptor) {
	switch t := d.Leaf(); t {
	case sig.I1:
		s.EmitLdindI1()
	case sig.Boolean, sig.U1:
		s.EmitLdindU1()
	case sig.I2:
		s.EmitLdindI2()
	case sig.Char, sig.U2:
		s.EmitLdindU2()
	case sig.I4:
		s.EmitLdindI4()
	case sig.U4:
		s.EmitLdindU4()
	case sig.I8, sig.U8:
		s.EmitLdindI8()
	case sig.R4:
		s.EmitLdindR4()
	case sig.R8:
		s.EmitLdindR8()
	case sig.Ptr, sig.FnPtr, sig.I, sig.U:
		s.EmitLdindI()
	case sig.String, sig.Class, sig.Array, sig.SzArray, sig.Object:
		s.EmitLdindRef()
	case sig.Internal:
		if d.ValueType {
			s.EmitLdobj(s.owner.Token(TokenType, uint64(d.Handle)))
		} else {
			s.EmitLdindRef()
		}
	default:
		panic(errors.ContractViolation(errors.PhaseEmit, "no indirect load for %s", t))
	}
}

// EmitStindT stores a value of the descriptor's type through an address.
func (s *CodeStream) EmitStindT(d sig.Descriptor) {
	switch t := d.Leaf(); t {
	case sig.I1, sig.Boolean, sig.U1:
		s.EmitStindI1()
	case sig.I2, sig.Char, sig.U2:
		s.EmitStindI2()
	case sig.I4, sig.U4:
		s.EmitStindI4()
	case sig.I8, sig.U8:
		s.EmitStindI8()
	case sig.R4:
		s.EmitStindR4()
	case sig.R8:
		s.EmitStindR8()
	case sig.Ptr, sig.FnPtr, sig.I, sig.U:
		s.EmitStindI()
	case sig.String, sig.Class, sig.Array, sig.SzArray, sig.Object:
		s.EmitStindRef()
	case sig.Internal:
		if d.ValueType {
			s.EmitStobj(s.owner.Token(TokenType, uint64(d.Handle)))
		} else {
			s.EmitStindRef()
		}
	default:
		panic(errors.ContractViolation(errors.PhaseEmit, "no indirect store for %s", t))
	}
}

// Calls. Stack deltas follow the declared argument and return counts.

func (s *CodeStream) EmitCall(token uint32, args, rets int) {
	s.emit(opcode.Call, rets-args, uint64(token))
}

func (s *CodeStream) EmitCallvirt(token uint32, args, rets int) {
	s.emit(opcode.Callvirt, rets-args, uint64(token))
}

// EmitCalli also pops the function pointer.
func (s *CodeStream) EmitCalli(token uint32, args, rets int) {
	s.emit(opcode.Calli, rets-args-1, uint64(token))
}

func (s *CodeStream) EmitNewobj(token uint32, args int) {
	s.emit(opcode.Newobj, 1-args, uint64(token))
}

func (s *CodeStream) EmitJmp(token uint32) { s.emit(opcode.Jmp, 0, uint64(token)) }

// EmitCallTarget calls the stub target through the function pointer on the
// stack, using the target signature assembled by the SetStubTarget methods.
func (s *CodeStream) EmitCallTarget() {
	s.emit(opcode.Calli, s.owner.targetStackDelta-1, uint64(TargetSigToken))
}

// Fields, objects and arrays.

func (s *CodeStream) EmitLdfld(token uint32)    { s.emit(opcode.Ldfld, 0, uint64(token)) }
func (s *CodeStream) EmitLdflda(token uint32)   { s.emit(opcode.Ldflda, 0, uint64(token)) }
func (s *CodeStream) EmitStfld(token uint32)    { s.emit(opcode.Stfld, -2, uint64(token)) }
func (s *CodeStream) EmitLdsfld(token uint32)   { s.emit(opcode.Ldsfld, 1, uint64(token)) }
func (s *CodeStream) EmitLdsflda(token uint32)  { s.emit(opcode.Ldsflda, 1, uint64(token)) }
func (s *CodeStream) EmitStsfld(token uint32)   { s.emit(opcode.Stsfld, -1, uint64(token)) }
func (s *CodeStream) EmitLdobj(token uint32)    { s.emit(opcode.Ldobj, 0, uint64(token)) }
func (s *CodeStream) EmitStobj(token uint32)    { s.emit(opcode.Stobj, -2, uint64(token)) }
func (s *CodeStream) EmitCpobj(token uint32)    { s.emit(opcode.Cpobj, -2, uint64(token)) }
func (s *CodeStream) EmitInitobj(token uint32)  { s.emit(opcode.Initobj, -1, uint64(token)) }
func (s *CodeStream) EmitLdtoken(token uint32)  { s.emit(opcode.Ldtoken, 1, uint64(token)) }
func (s *CodeStream) EmitLdftn(token uint32)    { s.emit(opcode.Ldftn, 1, uint64(token)) }
func (s *CodeStream) EmitLdelema(token uint32)  { s.emit(opcode.Ldelema, -1, uint64(token)) }
func (s *CodeStream) EmitLdlen()                { s.emit(opcode.Ldlen, 0, 0) }
func (s *CodeStream) EmitLdelemRef()            { s.emit(opcode.LdelemRef, -1, 0) }
func (s *CodeStream) EmitStelemRef()            { s.emit(opcode.StelemRef, -3, 0) }
func (s *CodeStream) EmitUnaligned(align uint8) { s.emit(opcode.Unaligned, 0, uint64(align)) }

// Memory blocks.

func (s *CodeStream) EmitLocalloc() { s.emit(opcode.Localloc, 0, 0) }
func (s *CodeStream) EmitCpblk()    { s.emit(opcode.Cpblk, -3, 0) }
func (s *CodeStream) EmitInitblk()  { s.emit(opcode.Initblk, -3, 0) }

// Control flow. Branches are always emitted in their long form.

func (s *CodeStream) EmitBr(lbl Label)      { s.branch(opcode.Br, 0, lbl) }
func (s *CodeStream) EmitLeave(lbl Label)   { s.branch(opcode.Leave, 0, lbl) }
func (s *CodeStream) EmitBrtrue(lbl Label)  { s.branch(opcode.Brtrue, -1, lbl) }
func (s *CodeStream) EmitBrfalse(lbl Label) { s.branch(opcode.Brfalse, -1, lbl) }
func (s *CodeStream) EmitBeq(lbl Label)     { s.branch(opcode.Beq, -2, lbl) }
func (s *CodeStream) EmitBge(lbl Label)     { s.branch(opcode.Bge, -2, lbl) }
func (s *CodeStream) EmitBgeUn(lbl Label)   { s.branch(opcode.BgeUn, -2, lbl) }
func (s *CodeStream) EmitBgt(lbl Label)     { s.branch(opcode.Bgt, -2, lbl) }
func (s *CodeStream) EmitBle(lbl Label)     { s.branch(opcode.Ble, -2, lbl) }
func (s *CodeStream) EmitBleUn(lbl Label)   { s.branch(opcode.BleUn, -2, lbl) }
func (s *CodeStream) EmitBlt(lbl Label)     { s.branch(opcode.Blt, -2, lbl) }
func (s *CodeStream) EmitBneUn(lbl Label)   { s.branch(opcode.BneUn, -2, lbl) }

func (s *CodeStream) EmitThrow()      { s.emit(opcode.Throw, -1, 0) }
func (s *CodeStream) EmitEndfinally() { s.emit(opcode.Endfinally, 0, 0) }

// EmitRet returns from the stub. A value is popped when the stub returns one.
func (s *CodeStream) EmitRet() {
	delta := 0
	if s.owner.returnPopsStack() {
		delta = -1
	}
	s.emit(opcode.Ret, delta, 0)
}
