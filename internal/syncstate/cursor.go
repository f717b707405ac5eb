// Package syncstate tracks how far a wallet's header sync has progressed and
// decides where a sync session starts.
package syncstate

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/Klingon-tech/ecashkit/config"
)

// Sync state errors.
var (
	ErrPersist          = errors.New("sync state not persisted")
	ErrCursorRegression = errors.New("sync cursor would move backwards")
	ErrDiscontinuous    = errors.New("sync cursor strategy mismatch")
	ErrCorruptCursor    = errors.New("corrupt sync cursor")
)

// Cursor is the last fully verified and persisted point of a sync strategy.
type Cursor struct {
	Strategy config.SyncMode
	Height   uint32
	Hash     chainhash.Hash
	// Cutover is the height at which the primary provider was found unable
	// to serve history; 0 when it never was.
	Cutover uint32
	// Source names the provider that took over at Cutover.
	Source string
}

// IsZero reports whether nothing has been synced yet.
func (c Cursor) IsZero() bool {
	return c.Hash == (chainhash.Hash{})
}

// Next is the first height not yet covered by the cursor.
func (c Cursor) Next() uint32 {
	if c.IsZero() {
		return 0
	}
	return c.Height + 1
}

func (c Cursor) String() string {
	if c.IsZero() {
		return fmt.Sprintf("%s@empty", c.Strategy)
	}
	if c.Cutover != 0 {
		return fmt.Sprintf("%s@%d/%s via %s since %d", c.Strategy, c.Height, c.Hash, c.Source, c.Cutover)
	}
	return fmt.Sprintf("%s@%d/%s", c.Strategy, c.Height, c.Hash)
}

// Bytes encodes the cursor.
// Format: height(4) | hash(32) | cutover(4) | len(source)(1) | source | strategy
func (c Cursor) Bytes() []byte {
	source := c.Source
	if len(source) > 255 {
		source = source[:255]
	}
	buf := make([]byte, 0, cursorFixedLen+len(source)+len(c.Strategy))
	buf = binary.LittleEndian.AppendUint32(buf, c.Height)
	buf = append(buf, c.Hash[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, c.Cutover)
	buf = append(buf, byte(len(source)))
	buf = append(buf, source...)
	return append(buf, c.Strategy...)
}

const cursorFixedLen = 41

// CursorFromBytes decodes a cursor produced by Bytes.
func CursorFromBytes(data []byte) (Cursor, error) {
	if len(data) < cursorFixedLen {
		return Cursor{}, fmt.Errorf("%w: %d bytes", ErrCorruptCursor, len(data))
	}
	var c Cursor
	c.Height = binary.LittleEndian.Uint32(data[:4])
	copy(c.Hash[:], data[4:36])
	c.Cutover = binary.LittleEndian.Uint32(data[36:40])
	n := int(data[40])
	rest := data[cursorFixedLen:]
	if len(rest) < n {
		return Cursor{}, fmt.Errorf("%w: source length %d exceeds %d bytes", ErrCorruptCursor, n, len(rest))
	}
	c.Source = string(rest[:n])
	c.Strategy = config.SyncMode(rest[n:])
	return c, nil
}
