package connection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rickgao/autowhitelist/internal/protocol"
)

var errDuplicateKey = errors.New("key in use by another connection")

// Keep holds a connection to the relay open until ctx is done, passing every
// frame to handle. Lost connections are retried with exponential backoff. An
// unknown key is final and returns ErrRejected; ctx cancellation returns nil.
func Keep(ctx context.Context, ccfg ClientConfig, kcfg KeepConfig, handle func(Frame), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultKeepConfig()
	if kcfg.ReconnectBaseWait <= 0 {
		kcfg.ReconnectBaseWait = defaults.ReconnectBaseWait
	}
	if kcfg.ReconnectMaxWait < kcfg.ReconnectBaseWait {
		kcfg.ReconnectMaxWait = kcfg.ReconnectBaseWait
	}

	wait := kcfg.ReconnectBaseWait
	for attempt := 1; ; attempt++ {
		c := NewClient(ccfg, logger)
		err := c.Connect(ctx)
		if err == nil {
			err = serve(ctx, c, handle, func() { wait = kcfg.ReconnectBaseWait })
		}
		c.Close()

		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, ErrRejected) {
			return err
		}

		logger.Warn("relay connection lost",
			"attempt", attempt,
			"retry_in", wait,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}

		// Exponential backoff
		wait *= 2
		if wait > kcfg.ReconnectMaxWait {
			wait = kcfg.ReconnectMaxWait
		}
	}
}

// serve forwards frames until the connection fails. verified is called on
// each acknowledgement so the backoff restarts after a good session.
func serve(ctx context.Context, c Client, handle func(Frame), verified func()) error {
	dispatch := func(f Frame) error {
		handle(f)
		switch f.Code {
		case protocol.CodeVerified:
			verified()
		case protocol.CodeUnknownKey:
			return ErrRejected
		case protocol.CodeDuplicateKey:
			return errDuplicateKey
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f := <-c.Frames():
			if err := dispatch(f); err != nil {
				return err
			}

		case err := <-c.Errors():
			// Frames read before the failure still count.
			for {
				select {
				case f := <-c.Frames():
					if derr := dispatch(f); derr != nil {
						return derr
					}
				default:
					return err
				}
			}
		}
	}
}
