package storage

import (
	"context"
	"errors"

	"github.com/luma/hoxconform/protocol"
)

var (
	ErrTableNotFound = errors.New("Table not found")
	ErrSeatTaken     = errors.New("Seat is already taken")
	ErrNotAtTable    = errors.New("Player is not at the table")
	ErrStoreClosed   = errors.New("Store is closed")
)

// DefaultScore is the rating every player starts with.
const DefaultScore = 1500

type Store interface {
	CreateTable(ctx context.Context, owner string, itimes protocol.Times, color protocol.Color) (*protocol.TableInfo, error)
	Table(ctx context.Context, id string) (*protocol.TableInfo, error)
	Tables(ctx context.Context) ([]*protocol.TableInfo, error)

	Join(ctx context.Context, id, player string, color protocol.Color) (*protocol.TableInfo, error)

	// Leave removes player from the table. Tables left with nobody at them
	// are removed.
	Leave(ctx context.Context, id, player string) (*protocol.TableInfo, error)

	Restore(values []byte) error
	Backup() ([]byte, error)

	Close() error
}
