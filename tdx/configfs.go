package tdx

import (
	"fmt"
	"path"
	"sync"

	"github.com/google/go-configfs-tsm/configfs/configfsi"
	"github.com/google/go-configfs-tsm/configfs/linuxtsm"
	"go.uber.org/zap"
)

const (
	// reportEntryPattern is the name pattern of per request report entries.
	// The trailing random suffix keeps concurrent requests apart.
	reportEntryPattern = "quote_"
	inblobFile         = "inblob"
	outblobFile        = "outblob"
)

// ConfigfsBackend requests quotes through the Linux configfs-tsm report interface.
//
// Every request creates its own report entry below the report root
// and removes it again, no matter whether the request succeeded.
type ConfigfsBackend struct {
	root string
	log  *zap.Logger

	mu        sync.Mutex
	client    configfsi.Client
	newClient func() (configfsi.Client, error)
}

// NewConfigfsBackend returns a backend creating report entries below root.
func NewConfigfsBackend(root string, log *zap.Logger) *ConfigfsBackend {
	if log == nil {
		log = zap.NewNop()
	}
	return &ConfigfsBackend{root: root, log: log, newClient: linuxtsm.MakeClient}
}

// GetQuote requests a quote over reportData by writing it to inblob and reading outblob.
func (b *ConfigfsBackend) GetQuote(reportData [ReportDataSize]byte) ([]byte, error) {
	client, err := b.getClient()
	if err != nil {
		b.log.Error("TSM configfs client unavailable", zap.Error(err))
		return nil, err
	}

	entry, err := client.MkdirTemp(b.root, reportEntryPattern)
	if err != nil {
		b.log.Error("TSM configfs failed", zap.String("root", b.root), zap.Error(err))
		return nil, fmt.Errorf("%w: creating report entry below %s: %w", ErrConfigfsIO, b.root, err)
	}
	defer func() {
		if err := client.RemoveAll(entry); err != nil {
			b.log.Debug("Removing TSM report entry failed", zap.String("path", entry), zap.Error(err))
		}
	}()
	b.log.Info("TSM: Created report", zap.String("path", entry))

	if err := client.WriteFile(path.Join(entry, inblobFile), reportData[:]); err != nil {
		b.log.Error("TSM configfs failed", zap.String("path", entry), zap.Error(err))
		return nil, fmt.Errorf("%w: writing %s: %w", ErrConfigfsIO, inblobFile, err)
	}
	quote, err := client.ReadFile(path.Join(entry, outblobFile))
	if err != nil {
		b.log.Error("TSM configfs failed", zap.String("path", entry), zap.Error(err))
		return nil, fmt.Errorf("%w: reading %s: %w", ErrConfigfsIO, outblobFile, err)
	}
	if len(quote) == 0 {
		b.log.Error("TSM configfs returned an empty quote", zap.String("path", entry))
		return nil, fmt.Errorf("%w: %s is empty", ErrConfigfsIO, outblobFile)
	}

	b.log.Info("TSM: Got quote", zap.Int("size", len(quote)))
	return quote, nil
}

// getClient returns the configfs client, creating it on first use.
func (b *ConfigfsBackend) getClient() (configfsi.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}
	client, err := b.newClient()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigfsUnavailable, err)
	}
	b.client = client
	return client, nil
}
