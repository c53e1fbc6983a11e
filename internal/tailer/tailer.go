package tailer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// DefaultPollInterval matches the cadence used when the file has no new data.
const DefaultPollInterval = 500 * time.Millisecond

// Config controls how a file is followed.
type Config struct {
	Path         string
	PollInterval time.Duration
	// FromStart replays existing contents instead of seeking to the end on first open.
	FromStart bool
}

// Tailer follows a growing log file across rotation and truncation.
type Tailer struct {
	cfg    Config
	logger *slog.Logger
}

// New constructs a tailer for the configured path.
func New(cfg Config, logger *slog.Logger) *Tailer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Tailer{cfg: cfg, logger: logger}
}

// Follow delivers complete lines to handle, one at a time and in file order, until ctx is
// cancelled. A missing file is retried until it appears.
func (t *Tailer) Follow(ctx context.Context, handle func(line string)) error {
	if t.cfg.Path == "" {
		return errors.New("tailer: path is required")
	}

	seekEnd := !t.cfg.FromStart
	missingLogged := false
	for {
		f, err := os.Open(t.cfg.Path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("open %s: %w", t.cfg.Path, err)
			}
			if !missingLogged {
				t.logger.Error("log file not found, waiting", slog.String("path", t.cfg.Path))
				missingLogged = true
			}
			// A file created after startup has never been read, so start from its beginning.
			seekEnd = false
			if err := t.sleep(ctx); err != nil {
				return nil
			}
			continue
		}
		missingLogged = false

		err = t.follow(ctx, f, seekEnd, handle)
		_ = f.Close()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		// Rotated: the replacement file is new, read it from the top.
		seekEnd = false
	}
}

// follow reads f until it is rotated away (returns nil) or ctx ends.
func (t *Tailer) follow(ctx context.Context, f *os.File, seekEnd bool, handle func(string)) error {
	var offset int64
	if seekEnd {
		pos, err := f.Seek(0, io.SeekEnd)
		if err != nil {
			return fmt.Errorf("seek %s: %w", t.cfg.Path, err)
		}
		offset = pos
	}
	t.logger.Info("tailing log file", slog.String("path", t.cfg.Path), slog.Int64("offset", offset))

	reader := bufio.NewReader(f)
	var partial []byte
	for {
		chunk, err := reader.ReadBytes('\n')
		if len(chunk) > 0 {
			offset += int64(len(chunk))
			if chunk[len(chunk)-1] == '\n' {
				line := string(append(partial, chunk...))
				partial = partial[:0]
				handle(line)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			partial = append(partial, chunk...)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read %s: %w", t.cfg.Path, err)
		}

		if err := t.sleep(ctx); err != nil {
			return err
		}

		rotated, truncated, statErr := t.inspect(f, offset)
		if statErr != nil {
			// Path temporarily missing mid-rotation; reopen via the outer loop.
			t.logger.Warn("log file unavailable, reopening", slog.String("path", t.cfg.Path), slog.Any("error", statErr))
			return nil
		}
		if truncated {
			t.logger.Warn("log file truncated, rewinding", slog.String("path", t.cfg.Path), slog.Int("discarded_bytes", len(partial)))
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("rewind %s: %w", t.cfg.Path, err)
			}
			offset = 0
			partial = partial[:0]
			reader.Reset(f)
			continue
		}
		if rotated {
			// Drain whatever the old file still holds before switching.
			if drained := t.drain(reader, &partial, handle); drained {
				continue
			}
			if len(partial) > 0 {
				t.logger.Warn("discarding unterminated line from rotated file",
					slog.String("path", t.cfg.Path), slog.Int("bytes", len(partial)))
			}
			t.logger.Info("log file rotated, reopening", slog.String("path", t.cfg.Path))
			return nil
		}
	}
}

func (t *Tailer) drain(reader *bufio.Reader, partial *[]byte, handle func(string)) bool {
	chunk, _ := reader.ReadBytes('\n')
	if len(chunk) == 0 {
		return false
	}
	if chunk[len(chunk)-1] == '\n' {
		handle(string(append(*partial, chunk...)))
		*partial = (*partial)[:0]
		return true
	}
	*partial = append(*partial, chunk...)
	return true
}

// inspect compares the open handle with the path on disk.
func (t *Tailer) inspect(f *os.File, offset int64) (rotated, truncated bool, err error) {
	pathInfo, err := os.Stat(t.cfg.Path)
	if err != nil {
		return false, false, err
	}
	openInfo, err := f.Stat()
	if err != nil {
		return false, false, err
	}
	if !os.SameFile(pathInfo, openInfo) {
		return true, false, nil
	}
	return false, openInfo.Size() < offset, nil
}

func (t *Tailer) sleep(ctx context.Context) error {
	timer := time.NewTimer(t.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
