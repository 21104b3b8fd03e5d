package discovery

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"xcam-worker-go/internal/config"
	"xcam-worker-go/internal/logging"
	"xcam-worker-go/internal/models"
)

// CacheStore persists discovery results between runs.
type CacheStore interface {
	ReadCameraCache() models.CameraCache
	WriteCameraCache(cache models.CameraCache) error
}

// Service finds cameras on the local network by scanning the RTSP port and
// joining hits with the ARP table. Results are cached on disk with a TTL so
// back-to-back jobs do not rescan the subnet.
type Service struct {
	cfg   *config.Config
	store CacheStore
	log   zerolog.Logger

	scan     func(ctx context.Context) []string
	arpTable func(ctx context.Context) (map[string]models.CameraEndpoint, error)
	now      func() time.Time
}

func NewService(cfg *config.Config, store CacheStore) *Service {
	s := &Service{
		cfg:      cfg,
		store:    store,
		log:      logging.NewServiceLogger(cfg, "discovery"),
		arpTable: arpTable,
		now:      time.Now,
	}
	s.scan = s.scanNetwork
	return s
}

// Cameras returns the known camera endpoints. cached reports whether the
// result came from the on-disk cache rather than a fresh scan.
func (s *Service) Cameras(ctx context.Context) (endpoints []models.CameraEndpoint, cached bool, err error) {
	cache := s.store.ReadCameraCache()
	if cache.Fresh(s.now(), s.cfg.DiscoveryTTL) {
		s.log.Debug().Int("cameras", len(cache.Cameras)).Msg("using cached discovery results")
		return cache.Cameras, true, nil
	}

	s.log.Info().Str("network", s.cfg.DiscoveryNetwork).Msg("scanning network for cameras")
	ips := s.scan(ctx)
	if len(ips) == 0 {
		if cache.Valid() {
			s.log.Warn().Msg("scan found no cameras, keeping stale cache")
			return cache.Cameras, true, nil
		}
		return nil, false, fmt.Errorf("no cameras found on %s", s.cfg.DiscoveryNetwork)
	}

	macs, err := s.arpTable(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("read arp table: %w", err)
	}
	for _, ip := range ips {
		entry, ok := macs[ip]
		if !ok {
			s.log.Warn().Str("ip", ip).Msg("open rtsp port with no arp entry, skipping")
			continue
		}
		endpoints = append(endpoints, entry)
	}
	if len(endpoints) == 0 {
		if cache.Valid() {
			s.log.Warn().Msg("no scan hit resolved to a mac address, keeping stale cache")
			return cache.Cameras, true, nil
		}
		return nil, false, fmt.Errorf("no camera on %s resolved to a mac address", s.cfg.DiscoveryNetwork)
	}

	newCache := models.CameraCache{Cameras: endpoints, UpdatedAt: s.now().Unix()}
	if err := s.store.WriteCameraCache(newCache); err != nil {
		s.log.Warn().Err(err).Msg("failed to persist discovery cache")
	}
	s.log.Info().Int("cameras", len(endpoints)).Msg("discovery scan complete")
	return endpoints, false, nil
}

// scanNetwork probes every host in the configured subnet for an open RTSP
// port with a bounded worker pool.
func (s *Service) scanNetwork(ctx context.Context) []string {
	hosts, err := hostsInCIDR(s.cfg.DiscoveryNetwork)
	if err != nil {
		s.log.Error().Err(err).Str("network", s.cfg.DiscoveryNetwork).Msg("invalid discovery network")
		return nil
	}

	dialer := net.Dialer{Timeout: s.cfg.DiscoveryDialTimeout}
	sem := make(chan struct{}, s.cfg.DiscoveryWorkers)
	var (
		mu   sync.Mutex
		open []string
		wg   sync.WaitGroup
	)
	for _, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(host string) {
			defer wg.Done()
			defer func() { <-sem }()

			addr := net.JoinHostPort(host, fmt.Sprintf("%d", s.cfg.DiscoveryPort))
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				return
			}
			conn.Close()
			mu.Lock()
			open = append(open, host)
			mu.Unlock()
		}(host)
	}
	wg.Wait()

	sort.Strings(open)
	return open
}

// hostsInCIDR expands a CIDR into its usable host addresses.
func hostsInCIDR(cidr string) ([]string, error) {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, err
	}
	var hosts []string
	for ip := ip.Mask(ipNet.Mask); ipNet.Contains(ip); incIP(ip) {
		hosts = append(hosts, ip.String())
	}
	// Drop network and broadcast addresses.
	if len(hosts) > 2 {
		hosts = hosts[1 : len(hosts)-1]
	}
	return hosts, nil
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}
}
