// Package distancecache implements the Distance Cache (C2): a persisted,
// per-city matrix of pairwise travel legs, computed in batches against a
// geoprovider.Provider and extended incrementally as new POIs enter a
// tour's candidate set (re-optimization, spec §4.7).
package distancecache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tripweave/pkg/geo"
	"tripweave/pkg/geoprovider"
	"tripweave/pkg/model"
	"tripweave/pkg/planerr"
)

// Cache is the process-wide, read-mostly distance cache. It holds one
// Matrix per city behind a per-city mutex so concurrent Extend calls for
// different cities never block each other, while Extend calls for the same
// city serialize (spec §6: "Distance Cache is process-wide read-mostly with
// per-city-mutexed extend").
type Cache struct {
	rootDir string

	mu      sync.Mutex // guards matrices map itself, not its contents
	matrices map[string]*cityEntry
}

type cityEntry struct {
	mu     sync.Mutex
	matrix *model.Matrix
}

// New returns a Cache persisting under rootDir/<city>/distance_matrix.json.
func New(rootDir string) *Cache {
	return &Cache{rootDir: rootDir, matrices: make(map[string]*cityEntry)}
}

func (c *Cache) entryFor(city string) *cityEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.matrices[city]
	if !ok {
		e = &cityEntry{}
		c.matrices[city] = e
	}
	return e
}

func (c *Cache) path(city string) string {
	return filepath.Join(c.rootDir, city, "distance_matrix.json")
}

// Load reads a city's persisted matrix, returning an empty one if none
// exists yet.
func (c *Cache) Load(city string) (*model.Matrix, error) {
	e := c.entryFor(city)
	e.mu.Lock()
	defer e.mu.Unlock()
	return c.loadLocked(e, city)
}

func (c *Cache) loadLocked(e *cityEntry, city string) (*model.Matrix, error) {
	if e.matrix != nil {
		return e.matrix, nil
	}
	data, err := os.ReadFile(c.path(city))
	if err != nil {
		if os.IsNotExist(err) {
			e.matrix = model.NewMatrix(city)
			return e.matrix, nil
		}
		return nil, planerr.IO("DISTANCE_CACHE_READ_FAILED", "failed to read distance cache", err)
	}
	var onDisk struct {
		City        string            `json:"city"`
		GeneratedAt time.Time         `json:"generated_at"`
		POICount    int               `json:"poi_count"`
		Pairs       []model.PairEntry `json:"pairs"`
	}
	if err := json.Unmarshal(data, &onDisk); err != nil {
		return nil, planerr.IO("DISTANCE_CACHE_CORRUPT", "failed to parse distance cache", err)
	}
	m := model.NewMatrix(city)
	m.GeneratedAt = onDisk.GeneratedAt
	m.POICount = onDisk.POICount
	m.LoadEntries(onDisk.Pairs)
	e.matrix = m
	return m, nil
}

func (c *Cache) persistLocked(e *cityEntry, city string) error {
	dir := filepath.Join(c.rootDir, city)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return planerr.IO("DISTANCE_CACHE_WRITE_FAILED", "failed to create cache directory", err)
	}
	onDisk := struct {
		City        string            `json:"city"`
		GeneratedAt time.Time         `json:"generated_at"`
		POICount    int               `json:"poi_count"`
		Pairs       []model.PairEntry `json:"pairs"`
	}{
		City:        e.matrix.City,
		GeneratedAt: e.matrix.GeneratedAt,
		POICount:    e.matrix.POICount,
		Pairs:       e.matrix.Entries(),
	}
	data, err := json.MarshalIndent(onDisk, "", "  ")
	if err != nil {
		return planerr.IO("DISTANCE_CACHE_WRITE_FAILED", "failed to marshal distance cache", err)
	}
	tmp := c.path(city) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return planerr.IO("DISTANCE_CACHE_WRITE_FAILED", "failed to write distance cache", err)
	}
	return os.Rename(tmp, c.path(city))
}

// Lookup returns the leg for (origin, dest, mode). If the pair is missing
// entirely (the provider could not resolve it), ok is false and callers
// should fall back to geo.ConservativeUnknownKM rather than treat it as
// zero distance.
func (c *Cache) Lookup(city, origin, dest string, mode model.TravelMode) (model.Leg, bool) {
	e := c.entryFor(city)
	e.mu.Lock()
	defer e.mu.Unlock()
	m, err := c.loadLocked(e, city)
	if err != nil || m == nil {
		return model.Leg{}, false
	}
	return m.Lookup(origin, dest, mode)
}

// ComputeAll builds a fresh matrix for the given POIs, batching requests to
// the provider at geoprovider.MaxBatchSize, and persists the result.
func (c *Cache) ComputeAll(ctx context.Context, city string, pois []*model.POI, modes []model.TravelMode, provider geoprovider.Provider) (*model.Matrix, error) {
	e := c.entryFor(city)
	e.mu.Lock()
	defer e.mu.Unlock()

	m := model.NewMatrix(city)
	if err := fillMatrix(ctx, m, pois, pois, modes, provider); err != nil {
		return nil, err
	}
	m.GeneratedAt = time.Now()
	m.POICount = len(pois)
	e.matrix = m
	if err := c.persistLocked(e, city); err != nil {
		return nil, err
	}
	return m, nil
}

// Extend computes legs between newPOIs and existingPOIs (both directions)
// and adds them to the city's matrix, without requerying pairs already
// known. This is idempotent: calling it twice with the same inputs issues
// no additional provider calls the second time (testable property: distance
// cache idempotence).
func (c *Cache) Extend(ctx context.Context, city string, newPOIs, existingPOIs []*model.POI, modes []model.TravelMode, provider geoprovider.Provider) (*model.Matrix, error) {
	e := c.entryFor(city)
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := c.loadLocked(e, city)
	if err != nil {
		return nil, err
	}

	all := append(append([]*model.POI{}, existingPOIs...), newPOIs...)

	missingOrigins, missingDests := pairsNeeding(m, newPOIs, all, modes)
	if len(missingOrigins) > 0 {
		if err := fillMatrix(ctx, m, missingOrigins, missingDests, modes, provider); err != nil {
			return nil, err
		}
	}
	// also cover existing-POI-to-new-POI direction
	missingOrigins2, missingDests2 := pairsNeeding(m, existingPOIs, newPOIs, modes)
	if len(missingOrigins2) > 0 {
		if err := fillMatrix(ctx, m, missingOrigins2, missingDests2, modes, provider); err != nil {
			return nil, err
		}
	}

	m.POICount = len(all)
	m.GeneratedAt = time.Now()
	if err := c.persistLocked(e, city); err != nil {
		return nil, err
	}
	return m, nil
}

// pairsNeeding narrows origins/dests down to those that still have at least
// one missing mode, so Extend never requeries known pairs.
func pairsNeeding(m *model.Matrix, origins, dests []*model.POI, modes []model.TravelMode) ([]*model.POI, []*model.POI) {
	var needOrigins []*model.POI
	for _, o := range origins {
		needsAny := false
		for _, d := range dests {
			if o.Slug == d.Slug {
				continue
			}
			for _, mode := range modes {
				if _, ok := m.Lookup(o.Slug, d.Slug, mode); !ok {
					needsAny = true
					break
				}
			}
			if needsAny {
				break
			}
		}
		if needsAny {
			needOrigins = append(needOrigins, o)
		}
	}
	return needOrigins, dests
}

// fillMatrix requests legs for origins x dests in provider.MaxBatchSize
// chunks and records every resolved pair into m. Unresolved pairs are left
// absent, never defaulted.
func fillMatrix(ctx context.Context, m *model.Matrix, origins, dests []*model.POI, modes []model.TravelMode, provider geoprovider.Provider) error {
	if len(origins) == 0 || len(dests) == 0 {
		return nil
	}

	for _, originBatch := range chunk(origins, geoprovider.MaxBatchSize) {
		for _, destBatch := range chunk(dests, geoprovider.MaxBatchSize) {
			originPoints := make([]model.Point, len(originBatch))
			for i, p := range originBatch {
				originPoints[i] = p.Coords
			}
			destPoints := make([]model.Point, len(destBatch))
			for i, p := range destBatch {
				destPoints[i] = p.Coords
			}

			results, err := provider.DistanceMatrix(ctx, originPoints, destPoints, modes)
			if err != nil {
				return planerr.Wrap(planerr.KindExternalTransient, "GEOPROVIDER_DISTANCE_MATRIX_FAILED", "distance matrix request failed", err)
			}

			for i, o := range originBatch {
				if i >= len(results) {
					continue
				}
				row := results[i]
				for j, d := range destBatch {
					if o.Slug == d.Slug || j >= len(row) {
						continue
					}
					for mode, leg := range row[j] {
						m.Set(o.Slug, d.Slug, mode, leg)
					}
				}
			}
		}
	}
	return nil
}

func chunk(pois []*model.POI, size int) [][]*model.POI {
	var out [][]*model.POI
	for i := 0; i < len(pois); i += size {
		end := i + size
		if end > len(pois) {
			end = len(pois)
		}
		out = append(out, pois[i:end])
	}
	return out
}

// FallbackKM returns the conservative distance to use when a pair is
// missing from the cache entirely, per spec §3 ("2km conservative
// fallback").
func FallbackKM() float64 {
	return geo.ConservativeUnknownKM
}

// PersistError wraps persistence failures with a stable message, used by
// callers (tourstore) that want to report a consistent code.
func PersistError(city string, err error) error {
	return planerr.IO("DISTANCE_CACHE_PERSIST_FAILED", fmt.Sprintf("failed to persist distance cache for %s", city), err)
}
