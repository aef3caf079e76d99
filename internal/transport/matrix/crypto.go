// ABOUTME: End-to-end encryption setup for the Matrix transport
// ABOUTME: Runs mautrix crypto over its own store and resets it on device id mismatch

package matrix

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix/crypto/cryptohelper"
	"maunium.net/go/mautrix/event"
)

// EnableEncryption sets up end-to-end encryption for the client. The
// crypto state lives in a dedicated SQLite database under dataDir, keyed
// to the bot account. Must be called after Login and before Run so the
// device identity is known; encrypted events that cannot be decrypted
// surface through the self-heal signal.
func (c *Client) EnableEncryption(ctx context.Context, dataDir string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, fmt.Sprintf("crypto-%s.db", slugify(c.SelfID())))

	if c.mx.DeviceID == "" {
		whoami, err := c.mx.Whoami(ctx)
		if err != nil {
			return fmt.Errorf("resolving device id: %w", err)
		}
		c.mx.DeviceID = whoami.DeviceID
	}

	// A fresh login gets a new device id while the crypto store still
	// holds keys for the old one. Reset the store before init so the
	// machine starts over instead of failing on the mismatch.
	if mismatch, err := storedDeviceMismatch(dbPath, c.mx.DeviceID.String()); err != nil {
		c.logger.Debug("could not check crypto store device id", "error", err)
	} else if mismatch {
		c.logger.Warn("device id changed, resetting crypto store", "db", dbPath)
		if err := removeCryptoStore(dbPath); err != nil {
			return err
		}
	}

	helper, err := cryptohelper.NewCryptoHelper(c.mx, deriveStoreKey(c.SelfID()), dbPath)
	if err != nil {
		return fmt.Errorf("creating crypto helper: %w", err)
	}
	helper.DecryptErrorCallback = func(evt *event.Event, err error) {
		c.reportUndecryptable(context.Background(), evt, err)
	}
	if err := helper.Init(ctx); err != nil {
		return fmt.Errorf("initializing crypto helper: %w", err)
	}

	c.mx.Crypto = helper
	c.crypto = helper
	c.logger.Info("encryption enabled", "db", dbPath, "device_id", c.mx.DeviceID)
	return nil
}

// Close releases the crypto store. Safe to call when encryption was
// never enabled.
func (c *Client) Close() error {
	if c.crypto == nil {
		return nil
	}
	return c.crypto.Close()
}

// storedDeviceMismatch reports whether an existing crypto store belongs
// to a different device id than the current one.
func storedDeviceMismatch(dbPath, currentDeviceID string) (bool, error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return false, nil
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return false, err
	}
	defer db.Close()

	var storedDeviceID string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&storedDeviceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return storedDeviceID != currentDeviceID, nil
}

// removeCryptoStore deletes the crypto database and its WAL sidecars.
func removeCryptoStore(dbPath string) error {
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing crypto store: %w", err)
	}
	_ = os.Remove(dbPath + "-wal")
	_ = os.Remove(dbPath + "-shm")
	return nil
}

// slugify converts a Matrix user id to a filesystem-safe string,
// e.g. "@warden:example.org" -> "warden_example.org".
func slugify(userID string) string {
	s := userID
	if len(s) > 0 && s[0] == '@' {
		s = s[1:]
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '.', c == '-', c == '_':
			out = append(out, c)
		case c == ':':
			out = append(out, '_')
		}
	}
	return string(out)
}

// deriveStoreKey derives a deterministic pickle key from the user id so
// each account's crypto store is encrypted without an external secret.
func deriveStoreKey(userID string) []byte {
	h := sha256.Sum256([]byte("groupwarden-crypto:" + userID))
	return h[:]
}
