package usecases

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb/maptile"
	"go.opentelemetry.io/otel/attribute"

	"github.com/samirrijal/s1webapp/internal/core/domain"
	"github.com/samirrijal/s1webapp/internal/core/ports"
	"github.com/samirrijal/s1webapp/internal/pkg/metrics"
	"github.com/samirrijal/s1webapp/internal/pkg/telemetry"
)

// maxTileBytes bounds a single upstream tile body.
const maxTileBytes = 4 << 20

// TileService proxies background tiles and caches them.
type TileService struct {
	layer     domain.TileLayer
	cache     ports.CacheService
	client    *http.Client
	ttl       time.Duration
	userAgent string
	next      atomic.Uint64
}

// NewTileService creates a new TileService. cache may be nil.
func NewTileService(layer domain.TileLayer, cache ports.CacheService, client *http.Client, ttl time.Duration, userAgent string) *TileService {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TileService{layer: layer, cache: cache, client: client, ttl: ttl, userAgent: userAgent}
}

// Tile returns the image bytes of tile z/x/y and their content type.
func (s *TileService) Tile(ctx context.Context, z, x, y int) ([]byte, string, error) {
	mt, err := s.tile(z, x, y)
	if err != nil {
		return nil, "", err
	}

	cacheKey := fmt.Sprintf("tiles:%d:%d:%d", mt.Z, mt.X, mt.Y)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil && len(data) > 0 {
			metrics.CacheHits.WithLabelValues("tile").Inc()
			return data, http.DetectContentType(data), nil
		}
		metrics.CacheMisses.WithLabelValues("tile").Inc()
	}

	data, contentType, err := s.fetch(ctx, mt)
	if err != nil {
		return nil, "", err
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, cacheKey, data, int(s.ttl/time.Second))
	}
	return data, contentType, nil
}

// URL expands the tile template for mt, rotating over the subdomains.
func (s *TileService) URL(mt maptile.Tile) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(int(mt.Z)),
		"{x}", strconv.Itoa(int(mt.X)),
		"{y}", strconv.Itoa(int(mt.Y)),
		"{s}", s.subdomain(),
	)
	return r.Replace(s.layer.URLTemplate)
}

func (s *TileService) subdomain() string {
	if len(s.layer.Subdomains) == 0 {
		return ""
	}
	n := s.next.Add(1) - 1
	return s.layer.Subdomains[n%uint64(len(s.layer.Subdomains))]
}

func (s *TileService) tile(z, x, y int) (maptile.Tile, error) {
	if z < 0 || z > s.layer.MaxZoom {
		return maptile.Tile{}, fmt.Errorf("%w: zoom %d not in 0..%d", domain.ErrInvalidTile, z, s.layer.MaxZoom)
	}
	n := 1 << uint(z)
	if x < 0 || y < 0 || x >= n || y >= n {
		return maptile.Tile{}, fmt.Errorf("%w: %d/%d/%d", domain.ErrInvalidTile, z, x, y)
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), nil
}

func (s *TileService) fetch(ctx context.Context, mt maptile.Tile) ([]byte, string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanTileFetch)
	defer span.End()
	span.SetAttributes(attribute.String(telemetry.AttrTile, fmt.Sprintf("%d/%d/%d", mt.Z, mt.X, mt.Y)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL(mt), nil)
	if err != nil {
		return nil, "", err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.TileFetches.WithLabelValues("error").Inc()
		return nil, "", fmt.Errorf("%w: %v", domain.ErrTileUnavailable, err)
	}
	defer resp.Body.Close()
	metrics.TileFetches.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: upstream status %d", domain.ErrTileUnavailable, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrTileUnavailable, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty tile", domain.ErrTileUnavailable)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}
