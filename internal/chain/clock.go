// Package chain provides the block height that block-scoped queries are
// stamped with.
package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"multicall/internal/storage"
)

const (
	// DefaultBlockInterval is the default time between blocks.
	DefaultBlockInterval = time.Second
)

// keyHeight stores the last produced height as a big-endian uint64.
var keyHeight = []byte("m:height")

// Clock owns the current block height. The height advances once per
// interval while Run is active and survives restarts through storage.
type Clock struct {
	db       *storage.Storage // db persists the height
	interval time.Duration    // interval is the time between blocks
	log      *slog.Logger

	height  atomic.Uint64 // height is the current block height
	advance sync.Mutex    // advance serializes height increments with their writes
}

// NewClock creates a Clock resuming from the height stored in db.
// A zero interval selects DefaultBlockInterval.
func NewClock(log *slog.Logger, db *storage.Storage, interval time.Duration) (*Clock, error) {
	if interval <= 0 {
		interval = DefaultBlockInterval
	}

	c := &Clock{
		db:       db,
		interval: interval,
		log:      log,
	}

	data, err := db.Get(keyHeight)
	if err != nil {
		return nil, fmt.Errorf("read height:\n%w", err)
	}

	if data != nil {
		if len(data) != 8 {
			return nil, fmt.Errorf("invalid stored height: %d bytes", len(data))
		}
		c.height.Store(binary.BigEndian.Uint64(data))
	}

	return c, nil
}

// Height returns the current block height.
func (c *Clock) Height() uint64 {
	return c.height.Load()
}

// Advance produces the next block and returns its height.
func (c *Clock) Advance() (uint64, error) {
	c.advance.Lock()
	defer c.advance.Unlock()

	next := c.height.Load() + 1

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)

	if err := c.db.Set(keyHeight, buf[:]); err != nil {
		return c.height.Load(), fmt.Errorf("store height:\n%w", err)
	}

	c.height.Store(next)

	return next, nil
}

// Run advances the height once per interval until ctx is cancelled.
func (c *Clock) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.log.Info("block clock started", "height", c.Height(), "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			height, err := c.Advance()
			if err != nil {
				return err
			}
			c.log.Debug("block", "height", height)
		}
	}
}
