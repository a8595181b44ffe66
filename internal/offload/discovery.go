package offload

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"tensord/internal/common/fsutil"
	"tensord/pkg/status"
)

// Record is one published receiver endpoint. Receivers drop a record into
// the shared discovery directory; senders poll for it.
type Record struct {
	Name    string `json:"name"`
	Addr    string `json:"addr"`
	Session string `json:"session"`
	PID     int    `json:"pid"`
	Started int64  `json:"started_unix"`
}

const discoverPollInterval = 50 * time.Millisecond

func recordPath(dir, service string) string {
	return filepath.Join(dir, service+".json")
}

// publish writes the record atomically (temp file + rename) so a polling
// sender never observes a half-written record.
func publish(dir string, rec Record) (string, error) {
	expanded, err := fsutil.EnsureDir(dir)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	final := recordPath(expanded, rec.Name)
	tmp, err := os.CreateTemp(expanded, "."+rec.Name+".*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return final, nil
}

// discover polls the discovery directory for the named service until the
// deadline passes. The timeout is reported as a distinct status so callers
// can tell "nobody listening yet" from a failed transfer.
func discover(ctx context.Context, dir, service string, timeout time.Duration) (Record, error) {
	expanded, err := fsutil.ExpandHome(dir)
	if err != nil {
		return Record{}, err
	}
	deadline := time.Now().Add(timeout)
	path := recordPath(expanded, service)
	for {
		b, err := os.ReadFile(path)
		if err == nil {
			var rec Record
			if jsonErr := json.Unmarshal(b, &rec); jsonErr == nil && rec.Addr != "" {
				return rec, nil
			}
		}
		if time.Now().After(deadline) {
			return Record{}, status.Errorf(status.DiscoveryTimeout,
				"service %q not discovered in %s under %s", service, timeout, dir)
		}
		select {
		case <-ctx.Done():
			return Record{}, ctx.Err()
		case <-time.After(discoverPollInterval):
		}
	}
}
