package wallet

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zold-go/zold/internal/domain"
)

// FileExt is the extension wallet files carry on disk, keyed by Id
// (§6 "zold-wallets/<id>.z").
const FileExt = ".z"

// Wallets is the directory-of-wallets registry: every wallet lives at
// <Dir>/<id>.z, keyed by its Id (§3 "Wallets").
type Wallets struct {
	Dir string
}

// NewWallets returns a registry rooted at dir, creating it if necessary.
func NewWallets(dir string) (*Wallets, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create wallets dir %s: %w", dir, err)
	}
	return &Wallets{Dir: dir}, nil
}

// Path returns the on-disk path a wallet with the given id would live at,
// whether or not it currently exists.
func (w *Wallets) Path(id domain.Id) string {
	return filepath.Join(w.Dir, id.String()+FileExt)
}

// Exists reports whether a wallet file for id is present.
func (w *Wallets) Exists(id domain.Id) bool {
	_, err := os.Stat(w.Path(id))
	return err == nil
}

// Get loads the wallet for id.
func (w *Wallets) Get(id domain.Id) (*Wallet, error) {
	wlt, err := Load(w.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("get wallet %s: %w", id, domain.ErrWalletNotFound)
		}
		return nil, err
	}
	return wlt, nil
}

// Create initializes a new wallet for id in this registry. It fails if a
// wallet for id already exists.
func (w *Wallets) Create(id domain.Id, pub *domain.PublicKey, network string) (*Wallet, error) {
	return Init(w.Path(id), id, pub, network, false)
}

// All lists the ids of every wallet currently in the registry, in no
// particular order.
func (w *Wallets) All() ([]domain.Id, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, fmt.Errorf("list wallets in %s: %w", w.Dir, err)
	}
	ids := make([]domain.Id, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, FileExt) {
			continue
		}
		id, err := domain.ParseId(strings.TrimSuffix(name, FileExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Count returns the number of wallets currently in the registry.
func (w *Wallets) Count() (int, error) {
	ids, err := w.All()
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
