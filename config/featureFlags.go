package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// DownloadPreservesPendingEdits controls the download-path conflict rule:
// when true (default), a local record still waiting to upload is not
// overwritten by a remote row fetched during the download pass.
//
// Set via env:
// - SYNC_DOWNLOAD_PRESERVE_PENDING=false to let the remote side win unconditionally
func DownloadPreservesPendingEdits() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SYNC_DOWNLOAD_PRESERVE_PENDING")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// ReconnectDelay is how long the connectivity monitor waits after an
// offline->online transition before kicking a reconciliation pass,
// letting the network stabilize first.
//
// Set via env:
// - SYNC_RECONNECT_DELAY_SECONDS (default 2)
func ReconnectDelay() time.Duration {
	v := strings.TrimSpace(os.Getenv("SYNC_RECONNECT_DELAY_SECONDS"))
	if v == "" {
		return 2 * time.Second
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 2 * time.Second
	}
	return time.Duration(n) * time.Second
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}

// EnablePubSubPushEndpoint gates the /api/sync/push route. On by default;
// turn off for single-instance deployments that only use the in-process trigger.
func EnablePubSubPushEndpoint() bool {
	return envBoolDefault("ENABLE_SYNC_PUBSUB_PUSH_ENDPOINT", true)
}
