package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/danderson/dbuswire"
)

// ReplayStats summarizes a call to [Replay].
type ReplayStats struct {
	// Records is the number of records read from the capture.
	Records int
	// Delivered is the number of messages passed to the callback.
	Delivered int
	// Skipped is the number of records that failed to decode.
	Skipped int
}

// Replay decodes each message in the capture file read from r, and
// calls fn with it.
//
// A record that is correctly framed but does not decode as a valid
// message is logged to logger and skipped. A framing error, or an
// error returned by fn, stops the replay. logger may be nil, in which
// case slog.Default is used.
func Replay(r io.Reader, caps dbus.Capabilities, logger *slog.Logger, fn func(*dbus.Message) error) (ReplayStats, error) {
	var stats ReplayStats
	if logger == nil {
		logger = slog.Default()
	}
	cr, err := NewReader(r)
	if err != nil {
		return stats, err
	}
	defer cr.Close()
	logger.Debug("replaying capture", "compression", cr.Compression())

	for {
		blob, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return stats, err
		}
		idx := stats.Records
		stats.Records++

		msg, err := dbus.Unmarshal(blob, caps)
		if err != nil {
			logger.Warn("skipping undecodable message", "record", idx, "size", len(blob), "err", err)
			stats.Skipped++
			continue
		}
		logger.Debug("replaying message", "record", idx, "type", msg.Type(), "serial", msg.Serial())
		stats.Delivered++
		if err := fn(msg); err != nil {
			return stats, fmt.Errorf("record %d: %w", idx, err)
		}
	}
	logger.Debug("replay done", "records", stats.Records, "skipped", stats.Skipped)
	return stats, nil
}
