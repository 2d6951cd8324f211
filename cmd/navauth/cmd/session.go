package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/navauth/client"
	"github.com/jmcleod/navauth/internal/config"
	"github.com/jmcleod/navauth/internal/util"
	bboltstorage "github.com/jmcleod/navauth/storage/bbolt"
)

const (
	dbFileName  = "navauth.db"
	keyFileName = "storage.key"
)

var (
	wrappingKeySalt = []byte("navauth")
	wrappingKeyInfo = []byte("navauth:storage-wrapping-key:v1")
)

// resolveDataDir returns the configured data directory, defaulting to
// <user config dir>/navauth.
func resolveDataDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(base, "navauth"), nil
}

// wrappingKey derives the storage wrapping key from secret, or loads it from
// the key file in dir, creating the file on first use.
func wrappingKey(dir, secret string) ([]byte, error) {
	if secret != "" {
		return util.HKDF([]byte(secret), wrappingKeySalt, wrappingKeyInfo)
	}
	path := filepath.Join(dir, keyFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(data) != util.AESKeySize {
			return nil, fmt.Errorf("key file %s: expected %d bytes, got %d", path, util.AESKeySize, len(data))
		}
		return data, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	key, err := util.NewAESKey()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	return key, nil
}

// openClient opens the session database and wires a client over it. The
// returned function closes both. An interrupt wipes the in-memory token
// before exiting.
func openClient(c *config.Config) (*client.Client, func(), error) {
	memguard.CatchInterrupt()
	dir, err := resolveDataDir(c.DataDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	key, err := wrappingKey(dir, c.StorageSecret)
	if err != nil {
		return nil, nil, err
	}
	defer util.WipeBytes(key)

	repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(dir, dbFileName), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session storage: %w", err)
	}
	cl, err := client.New(c.BaseURL,
		client.WithRepository(repo, key),
		client.WithTimeout(c.RequestTimeout),
		client.WithLogger(logger),
	)
	if err != nil {
		repo.Close()
		return nil, nil, err
	}
	logger.Debug("session storage opened", "dir", dir)
	return cl, func() {
		cl.Close()
		repo.Close()
	}, nil
}

// bootClient opens a client and waits for the boot refresh to finish.
func bootClient(ctx context.Context) (*client.Client, func(), error) {
	cl, closeFn, err := openClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	<-cl.Boot(ctx)
	return cl, closeFn, nil
}
