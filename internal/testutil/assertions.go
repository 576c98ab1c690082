package testutil

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/dwsmith1983/fleetmon/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// ReadAlertLog decodes a JSON-lines alert file written by the file sink.
// A missing file reads as no alerts; undecodable lines are skipped.
func ReadAlertLog(t *testing.T, path string) []types.Alert {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var alerts []types.Alert
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var a types.Alert
		if err := json.Unmarshal(sc.Bytes(), &a); err != nil {
			continue
		}
		alerts = append(alerts, a)
	}
	return alerts
}

// AlertsFrom filters alerts by source.
func AlertsFrom(alerts []types.Alert, source string) []types.Alert {
	var out []types.Alert
	for _, a := range alerts {
		if a.Source == source {
			out = append(out, a)
		}
	}
	return out
}
