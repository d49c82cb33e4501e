package weather

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chancai/internal/types"
)

// ErrUnknownCountry is returned for countries with no monitored ports.
var ErrUnknownCountry = errors.New("weather: unknown country")

// Service answers per-country port weather. With a Redis client it is a
// read-through cache; with rdb == nil every call fetches live.
type Service struct {
	client *Client
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewService(client *Client, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{client: client, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(pais string) string {
	return "clima:" + pais
}

// ForCountry returns current conditions for every monitored port of pais.
// Ports whose lookup fails are omitted. The country match is
// case-insensitive; the upstream query keeps the caller's spelling.
func (s *Service) ForCountry(ctx context.Context, pais string) ([]types.PuertoClima, error) {
	key := strings.ToLower(pais)
	ports, ok := portsByCountry[key]
	if !ok {
		return nil, ErrUnknownCountry
	}

	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, cacheKey(key)).Bytes(); err == nil {
			var cached []types.PuertoClima
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	list := s.fetchPorts(ctx, pais, ports)
	s.store(ctx, key, list)
	return list, nil
}

// Refresh warms the cache for every known country and returns how many
// port observations were fetched.
func (s *Service) Refresh(ctx context.Context) int {
	total := 0
	for pais, ports := range portsByCountry {
		if ctx.Err() != nil {
			return total
		}
		list := s.fetchPorts(ctx, pais, ports)
		s.store(ctx, pais, list)
		total += len(list)
	}
	return total
}

func (s *Service) fetchPorts(ctx context.Context, pais string, ports []string) []types.PuertoClima {
	list := make([]types.PuertoClima, 0, len(ports))
	for _, puerto := range ports {
		obs, err := s.client.Current(ctx, puerto+","+pais)
		if err != nil {
			s.logger.Debug("port weather lookup failed", "port", puerto, "country", pais, "error", err)
			continue
		}
		list = append(list, types.PuertoClima{
			Puerto:    puerto,
			Condicion: obs.Condition,
			VientoKPH: obs.WindKPH,
		})
	}
	return list
}

// store caches a non-empty result set. Empty sets are not cached so a
// misconfigured upstream key does not pin empty answers for a full TTL.
func (s *Service) store(ctx context.Context, key string, list []types.PuertoClima) {
	if s.rdb == nil || len(list) == 0 {
		return
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cacheKey(key), raw, s.ttl).Err(); err != nil {
		s.logger.Warn("clima cache write failed", "key", key, "error", err)
	}
}
