package repositories

import "context"

// StateStore is a durable string-keyed slot store. Load of an absent key
// returns (nil, nil), never an error; Save overwrites the whole slot
// (write-through, no partial updates).
type StateStore interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
	Close() error
}
