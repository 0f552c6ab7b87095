package chain

import (
	"encoding/binary"
	"fmt"
)

// TxDataKind discriminates the tagged union that spec §9 calls for in place
// of the original's dynamic `data` field.
type TxDataKind byte

const (
	DataNone TxDataKind = iota
	DataCommand
	DataContract
	DataContractExe
)

// TxData is the sealed union of payloads a transaction can carry. Every
// implementation must produce a stable, deterministic encoding since it
// feeds directly into the transaction hash.
type TxData interface {
	Kind() TxDataKind
	encode(w *encoder)
}

// NoneData carries no payload; used by TxNone transfers.
type NoneData struct{}

func (NoneData) Kind() TxDataKind  { return DataNone }
func (NoneData) encode(w *encoder) {}

// CommandData names a builtin to invoke (setBalance, addAdmin, setConfig, ...).
type CommandData struct {
	Name   string
	Inputs []string
}

func (CommandData) Kind() TxDataKind { return DataCommand }

func (c CommandData) encode(w *encoder) {
	w.writeString(c.Name)
	w.writeUint32(uint32(len(c.Inputs)))
	for _, in := range c.Inputs {
		w.writeString(in)
	}
}

// ContractData deploys a contract at the transaction's To[0] address.
type ContractData struct {
	Code []byte
	ABI  []byte // compiled ABI, produced by the VM at deploy time; not part of the hashed encoding
}

func (ContractData) Kind() TxDataKind { return DataContract }

func (c ContractData) encode(w *encoder) {
	w.writeBytes(c.Code)
}

// ContractCall is one element of a CONTRACT_EXE transaction's call list.
type ContractCall struct {
	To     Address
	Method string
	Inputs []string
}

// ContractExeData invokes one or more methods across the tx's To[] targets.
type ContractExeData struct {
	Calls []ContractCall
}

func (ContractExeData) Kind() TxDataKind { return DataContractExe }

func (c ContractExeData) encode(w *encoder) {
	w.writeUint32(uint32(len(c.Calls)))
	for _, call := range c.Calls {
		w.writeString(string(call.To))
		w.writeString(call.Method)
		w.writeUint32(uint32(len(call.Inputs)))
		for _, in := range call.Inputs {
			w.writeString(in)
		}
	}
}

// encoder is a small deterministic byte-buffer builder, in the manual
// buffer-building style of the teacher's BlockHeader.SerializeWithoutNonce.
type encoder struct {
	buf []byte
}

func (e *encoder) writeByte(b byte) { e.buf = append(e.buf, b) }

func (e *encoder) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) writeUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *encoder) writeString(s string) { e.writeBytes([]byte(s)) }

func (e *encoder) writeBytes(b []byte) {
	e.writeUint32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *encoder) bytes() []byte { return e.buf }

// encodeTxData dispatches on kind and produces a self-describing prefix so
// that two different kinds never collide on the same byte sequence.
func encodeTxData(w *encoder, d TxData) error {
	if d == nil {
		d = NoneData{}
	}
	w.writeByte(byte(d.Kind()))
	d.encode(w)
	return nil
}

func decodeTxDataKindName(k TxDataKind) string {
	switch k {
	case DataNone:
		return "none"
	case DataCommand:
		return "command"
	case DataContract:
		return "contract"
	case DataContractExe:
		return "contract_exe"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}
