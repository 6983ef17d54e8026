package devices

import (
	"context"
	"errors"
	"fmt"

	"github.com/R3E-Network/factory_os/internal/app/domain/device"
	"github.com/R3E-Network/factory_os/internal/app/storage"
	svcerrors "github.com/R3E-Network/factory_os/internal/errors"
	"github.com/R3E-Network/factory_os/internal/logging"
	"github.com/R3E-Network/factory_os/internal/metrics"
)

// Service reads and writes devices, consulting an optional cache first.
type Service struct {
	store   storage.DeviceStore
	cache   storage.DeviceCache
	metrics *metrics.Metrics
	log     *logging.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithCache puts a look-aside cache in front of the store.
func WithCache(cache storage.DeviceCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithMetrics records cache lookups.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs a device service.
func New(store storage.DeviceStore, log *logging.Logger, opts ...Option) *Service {
	if log == nil {
		log = logging.NewDefault("devices")
	}
	s := &Service{store: store, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the device with id. Unknown ids yield a NOT_FOUND service
// error with message "Device not found".
func (s *Service) Get(ctx context.Context, id int64) (device.Device, error) {
	defer s.log.TracePerformance(ctx, "get_device")()

	if s.cache != nil {
		d, ok, err := s.cache.Get(ctx, id)
		switch {
		case err != nil:
			s.metrics.RecordCacheLookup("error")
			s.log.WithContext(ctx).WithError(err).WithField("device_id", id).Warn("device cache read failed")
		case ok:
			s.metrics.RecordCacheLookup("hit")
			return d, nil
		default:
			s.metrics.RecordCacheLookup("miss")
		}
	}

	d, err := s.store.GetDevice(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return device.Device{}, svcerrors.NotFound("Device").WithDetails("device_id", id)
	}
	if err != nil {
		return device.Device{}, svcerrors.Unavailable("Device store unavailable", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, d); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("device_id", id).Warn("device cache write failed")
		}
	}
	return d, nil
}

// List returns devices matching filter, ordered by id.
func (s *Service) List(ctx context.Context, filter storage.DeviceFilter) ([]device.Device, error) {
	if filter.Status != "" && !device.IsValidStatus(filter.Status) {
		return nil, svcerrors.Validation(fmt.Sprintf("unknown status %q", filter.Status), nil)
	}
	list, err := s.store.ListDevices(ctx, filter)
	if err != nil {
		return nil, svcerrors.Unavailable("Device store unavailable", err)
	}
	return list, nil
}

// Save validates and stores d, then drops any cached copy.
func (s *Service) Save(ctx context.Context, d device.Device) (device.Device, error) {
	if err := d.Validate(); err != nil {
		return device.Device{}, svcerrors.Validation(err.Error(), err)
	}

	saved, err := s.store.SaveDevice(ctx, d)
	if err != nil {
		return device.Device{}, svcerrors.Unavailable("Device store unavailable", err)
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, saved.ID); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("device_id", saved.ID).Warn("device cache invalidation failed")
		}
	}

	s.log.WithContext(ctx).
		WithField("device_id", saved.ID).
		WithField("factory_id", saved.FactoryID).
		WithField("status", saved.Status).
		Info("device saved")
	return saved, nil
}

// Exists reports whether the store holds a device with id. The cache is
// not consulted.
func (s *Service) Exists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	_, err := s.store.GetDevice(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		return false, nil
	default:
		return false, svcerrors.Unavailable("Device store unavailable", err)
	}
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
