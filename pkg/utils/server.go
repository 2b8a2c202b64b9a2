package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const serverIDFile = ".server_id"

// GetPersistentServerID returns the id this process tags its websocket
// fan-out with, so a server can skip its own publications. An explicit
// override wins. Otherwise the id stored under storagePath is reused, or a
// new one is generated and stored there.
func GetPersistentServerID(override, storagePath string) string {
	if id := strings.TrimSpace(override); id != "" {
		return id
	}

	idFile := filepath.Join(storagePath, serverIDFile)
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := newServerID()
	if err := CreateFolder(storagePath); err != nil {
		logrus.WithError(err).Warn("[SERVER] Could not persist server id")
		return id
	}
	if err := os.WriteFile(idFile, []byte(id), 0644); err != nil {
		logrus.WithError(err).Warn("[SERVER] Could not persist server id")
	}
	return id
}

// newServerID is hostname plus a random suffix; replicas often share a hostname.
func newServerID() string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	host, _ := os.Hostname()
	host = strings.Trim(keySafe(strings.ToLower(host), -1), "-_")
	if host == "" || host == "localhost" {
		return "wa-sales-" + suffix
	}
	return "wa-sales-" + host + "-" + suffix
}
