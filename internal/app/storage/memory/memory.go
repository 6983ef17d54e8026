package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/R3E-Network/factory_os/internal/app/domain/device"
	"github.com/R3E-Network/factory_os/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu      sync.RWMutex
	maxID   int64
	devices map[int64]device.Device
}

var _ storage.DeviceStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{devices: make(map[int64]device.Device)}
}

func (s *Store) GetDevice(_ context.Context, id int64) (device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return device.Device{}, storage.ErrNotFound
	}
	return d, nil
}

func (s *Store) SaveDevice(_ context.Context, d device.Device) (device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == 0 {
		d.ID = s.maxID + 1
	}
	if d.ID > s.maxID {
		s.maxID = d.ID
	}
	s.devices[d.ID] = d
	return d, nil
}

func (s *Store) ListDevices(_ context.Context, filter storage.DeviceFilter) ([]device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]device.Device, 0, len(s.devices))
	for _, d := range s.devices {
		if filter.Matches(d) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) Ping(context.Context) error { return nil }

// Cache is an in-process DeviceCache without expiry.
type Cache struct {
	mu      sync.RWMutex
	devices map[int64]device.Device
}

var _ storage.DeviceCache = (*Cache)(nil)

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{devices: make(map[int64]device.Device)}
}

func (c *Cache) Get(_ context.Context, id int64) (device.Device, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.devices[id]
	return d, ok, nil
}

func (c *Cache) Set(_ context.Context, d device.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices[d.ID] = d
	return nil
}

func (c *Cache) Invalidate(_ context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.devices, id)
	return nil
}
