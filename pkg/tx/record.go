package tx

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Record is a wallet-relevant transaction as returned by a remote data
// provider: the raw transaction plus where it was mined.
type Record struct {
	Hash        chainhash.Hash
	BlockHeight uint32 // 0 while unconfirmed
	BlockHash   chainhash.Hash
	Timestamp   int64
	Raw         []byte
}

// FromHex builds a record from a hex-encoded raw transaction. The hash is
// recomputed from the raw bytes; a non-empty txid must match it.
func FromHex(txid, rawHex string, height uint32, blockHash chainhash.Hash, timestamp int64) (*Record, error) {
	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hex: %w", err)
	}
	r := &Record{BlockHeight: height, BlockHash: blockHash, Timestamp: timestamp, Raw: raw}
	msg, err := r.Decode()
	if err != nil {
		return nil, err
	}
	r.Hash = msg.TxHash()
	if txid != "" && r.Hash.String() != txid {
		return nil, fmt.Errorf("txid %s does not match raw transaction (%s)", txid, r.Hash)
	}
	return r, nil
}

// Confirmed reports whether the transaction was mined.
func (r *Record) Confirmed() bool {
	return r.BlockHeight > 0
}

// Decode parses the raw bytes as a wire transaction.
func (r *Record) Decode() (*wire.MsgTx, error) {
	var msg wire.MsgTx
	if err := msg.DeserializeNoWitness(bytes.NewReader(r.Raw)); err != nil {
		return nil, fmt.Errorf("decode tx: %w", err)
	}
	return &msg, nil
}

// Bytes returns the storage encoding.
// Format: height(4) | block_hash(32) | timestamp(8) | raw
func (r *Record) Bytes() []byte {
	buf := make([]byte, 0, 44+len(r.Raw))
	buf = binary.LittleEndian.AppendUint32(buf, r.BlockHeight)
	buf = append(buf, r.BlockHash[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(r.Timestamp))
	return append(buf, r.Raw...)
}

// RecordFromBytes decodes a record produced by Bytes.
func RecordFromBytes(data []byte) (*Record, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("tx record is %d bytes, want at least 44", len(data))
	}
	r := &Record{
		BlockHeight: binary.LittleEndian.Uint32(data[:4]),
		Timestamp:   int64(binary.LittleEndian.Uint64(data[36:44])),
		Raw:         append([]byte(nil), data[44:]...),
	}
	copy(r.BlockHash[:], data[4:36])
	msg, err := r.Decode()
	if err != nil {
		return nil, err
	}
	r.Hash = msg.TxHash()
	return r, nil
}
