// Package pcsc wraps a PC/SC card reader connection as an emv.Transport,
// so the transaction engine in core can drive a physical contact reader
// without knowing anything about PC/SC itself.
package pcsc

import (
	"fmt"

	"github.com/ebfe/scard"
)

// Connection wraps one PC/SC card connection.
type Connection struct {
	ctx    *scard.Context
	card   *scard.Card
	Reader string
}

// Connect establishes a PC/SC context and connects to the reader at
// readerIndex (0-based, in the order ListReaders returns them).
func Connect(readerIndex int) (*Connection, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc: establish context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) == 0 {
		ctx.Release()
		return nil, fmt.Errorf("pcsc: no readers found: %v", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		ctx.Release()
		return nil, fmt.Errorf("pcsc: reader index out of range (0..%d)", len(readers)-1)
	}

	reader := readers[readerIndex]
	card, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("pcsc: connect: %w", err)
	}

	return &Connection{ctx: ctx, card: card, Reader: reader}, nil
}

// Close disconnects the card and releases the PC/SC context.
func (c *Connection) Close() {
	if c == nil {
		return
	}
	if c.card != nil {
		_ = c.card.Disconnect(scard.LeaveCard)
	}
	if c.ctx != nil {
		_ = c.ctx.Release()
	}
}

// Transmit sends one raw APDU to the card and returns its raw reply. This
// is an emv.Transport once bound to a *Connection receiver.
func (c *Connection) Transmit(apdu []byte) ([]byte, error) {
	if c == nil || c.card == nil {
		return nil, fmt.Errorf("pcsc: connection not established")
	}
	return c.card.Transmit(apdu)
}
