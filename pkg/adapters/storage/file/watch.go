package file

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/aescanero/hrrelay/pkg/ports"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settleDelay lets a burst of events from one write (truncate, then write)
// collapse into a single notification.
const settleDelay = 20 * time.Millisecond

// Watch reports changes to the backing file (ports.StoreWatcher interface).
// The parent directory is watched, not the file, so replacements by rename
// and files created after Watch started are both seen.
func (s *Store) Watch(ctx context.Context) (<-chan string, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s.logger.Debug("watching file store", zap.String("dir", dir), zap.String("path", s.path))

	changes := make(chan string, 1)
	go s.watchLoop(ctx, watcher, changes)
	return changes, nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, changes chan string) {
	defer close(changes)
	defer watcher.Close()

	base := filepath.Base(s.path)

	settle := time.NewTimer(settleDelay)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			settle.Reset(settleDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file watch error", zap.String("path", s.path), zap.Error(err))

		case <-settle.C:
			value, err := s.Read(ctx)
			if err != nil && !errors.Is(err, ports.ErrNotFound) {
				s.logger.Debug("failed to read changed file", zap.Error(err))
			}
			sendLatest(changes, value)
		}
	}
}

// sendLatest replaces any pending notification with value.
// Only the watch goroutine sends, so the second send cannot block.
func sendLatest(changes chan string, value string) {
	select {
	case changes <- value:
	default:
		select {
		case <-changes:
		default:
		}
		changes <- value
	}
}
