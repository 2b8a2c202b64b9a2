package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/AzielCF/az-wap-sales/pkg/utils"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type FactoryOptions struct {
	// StoreDir holds one sqlite device store per instance.
	StoreDir string
	// StoreURI, when it is a postgres DSN, is shared by every instance.
	StoreURI string
	LogLevel string
	OSName   string
	Platform waCompanionReg.DeviceProps_PlatformType
}

// Factory builds a SessionAdapter per instance on top of a whatsmeow device store.
type Factory struct {
	opts     FactoryOptions
	bindings IDeviceBindings

	mu     sync.Mutex
	shared *sqlstore.Container
}

func NewFactory(ctx context.Context, opts FactoryOptions, bindings IDeviceBindings) (*Factory, error) {
	if opts.LogLevel == "" {
		opts.LogLevel = "ERROR"
	}
	configureDeviceProps(opts)

	f := &Factory{opts: opts, bindings: bindings}
	if isPostgres(opts.StoreURI) {
		if bindings == nil {
			return nil, fmt.Errorf("a shared device store needs instance bindings")
		}
		container, err := sqlstore.New(ctx, "postgres", opts.StoreURI, waLog.Stdout("Database", opts.LogLevel, true))
		if err != nil {
			return nil, fmt.Errorf("failed to init device store: %w", err)
		}
		f.shared = container
		logrus.Info("[WHATSAPP] Using shared postgres device store")
		return f, nil
	}

	if err := utils.CreateFolder(opts.StoreDir); err != nil {
		return nil, err
	}
	return f, nil
}

func configureDeviceProps(opts FactoryOptions) {
	osName := opts.OSName
	if osName == "" {
		osName = "Linux"
	}
	platform := opts.Platform
	if platform == 0 {
		platform = waCompanionReg.DeviceProps_CHROME
	}
	store.DeviceProps.PlatformType = &platform
	store.DeviceProps.Os = &osName
}

func isPostgres(uri string) bool {
	return strings.HasPrefix(uri, "postgres:") || strings.HasPrefix(uri, "postgresql:")
}

// New satisfies domainInstance.AdapterFactory.
func (f *Factory) New(ctx context.Context, instanceID string) (domainInstance.ICapabilityAdapter, error) {
	if f.shared != nil {
		return f.newShared(ctx, instanceID)
	}
	return f.newStandalone(ctx, instanceID)
}

func (f *Factory) newStandalone(ctx context.Context, instanceID string) (domainInstance.ICapabilityAdapter, error) {
	dbURI := fmt.Sprintf("file:%s?_foreign_keys=on", utils.InstanceStorePath(f.opts.StoreDir, instanceID))
	container, err := sqlstore.New(ctx, "sqlite3", dbURI, waLog.Stdout("DB-"+shortID(instanceID), f.opts.LogLevel, true))
	if err != nil {
		return nil, fmt.Errorf("failed to init instance store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	if device == nil {
		device = container.NewDevice()
	}

	client := f.newClient(instanceID, device)
	return newSessionAdapter(instanceID, client, container.Close, nil), nil
}

func (f *Factory) newShared(ctx context.Context, instanceID string) (domainInstance.ICapabilityAdapter, error) {
	var device *store.Device
	raw, ok, err := f.bindings.Get(ctx, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to read device binding: %w", err)
	}
	if ok {
		jid, err := types.ParseJID(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid device binding %q: %w", raw, err)
		}
		if device, err = f.shared.GetDevice(ctx, jid); err != nil {
			return nil, fmt.Errorf("failed to get device: %w", err)
		}
	}
	if device == nil {
		device = f.shared.NewDevice()
	}

	onPaired := func(jid types.JID) {
		if err := f.bindings.Save(context.Background(), instanceID, jid.String()); err != nil {
			logrus.WithError(err).Errorf("[WHATSAPP] Could not store device binding for %s", instanceID)
		}
	}
	client := f.newClient(instanceID, device)
	return newSessionAdapter(instanceID, client, nil, onPaired), nil
}

func (f *Factory) newClient(instanceID string, device *store.Device) *whatsmeow.Client {
	client := whatsmeow.NewClient(device, waLog.Stdout("Client-"+shortID(instanceID), f.opts.LogLevel, true))
	// la reconexion la decide el LifecycleController
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true
	return client
}

// Close releases the shared store, if any.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.shared == nil {
		return nil
	}
	err := f.shared.Close()
	f.shared = nil
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
