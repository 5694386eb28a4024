package geodata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/shockwave-sim/internal/config"
)

const (
	elevationResolution = 0.001 // 標高グリッドの解像度（度）
	elevationBatchSize  = 100   // Open-Elevation のレート制限に合わせたバッチサイズ
	elevationBatchPause = 100 * time.Millisecond
)

// Fetcher は Overpass / Open-Elevation からの取得と結果キャッシュを担います。
type Fetcher struct {
	client       *http.Client
	overpassURL  string
	elevationURL string
	cache        *Cache
	logger       *zap.SugaredLogger
}

// NewFetcher は Fetcher を作成します。cache は nil でも構いません（キャッシュ無効）。
func NewFetcher(cfg *config.Config, cache *Cache, logger *zap.SugaredLogger) *Fetcher {
	timeout := time.Duration(cfg.GeodataFetchTimeoutS) * time.Second
	return &Fetcher{
		client:       &http.Client{Timeout: timeout},
		overpassURL:  cfg.OverpassURL,
		elevationURL: cfg.ElevationURL,
		cache:        cache,
		logger:       logger,
	}
}

// Fetch は指定領域の建物・道路・標高を並行に取得します。
// 各ソースの失敗は空のフォールバックに置き換わり、全体は失敗しません。
func (f *Fetcher) Fetch(ctx context.Context, bbox BoundingBox) (*UrbanData, error) {
	if cached, ok := f.cache.Get(ctx, bbox); ok {
		f.logger.Debugw("geodata cache hit", "bbox", bbox.String())
		return cached, nil
	}

	var (
		buildings []Building
		roads     []Road
		elevation [][]float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		buildings = f.fetchBuildings(gctx, bbox)
		return nil
	})
	g.Go(func() error {
		roads = f.fetchRoads(gctx, bbox)
		return nil
	})
	g.Go(func() error {
		elevation = f.fetchElevation(gctx, bbox)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	width := 0
	if len(elevation) > 0 {
		width = len(elevation[0])
	}

	data := &UrbanData{
		BBox:      bbox,
		Buildings: buildings,
		Roads:     roads,
		Elevation: ElevationGrid{
			Data:       elevation,
			Resolution: elevationResolution,
			Width:      width,
			Height:     len(elevation),
		},
		Metadata: Meta{
			BuildingsCount: len(buildings),
			RoadsCount:     len(roads),
			DataSources:    []string{"OpenStreetMap", "Open-Elevation"},
			Timestamp:      float64(time.Now().UnixMilli()) / 1000.0,
		},
	}

	f.cache.Set(ctx, bbox, data)
	return data, nil
}

// fetchBuildings は建物フットプリントを取得します。失敗時は空リストを返します。
func (f *Fetcher) fetchBuildings(ctx context.Context, bbox BoundingBox) []Building {
	query := fmt.Sprintf(`
	[out:json][timeout:25];
	(
	  way["building"](%[1]s);
	  relation["building"](%[1]s);
	);
	out body;
	>;
	out skel qt;
	`, bbox.String())

	resp, err := f.queryOverpass(ctx, query)
	if err != nil {
		f.logger.Warnw("failed to fetch OSM buildings", "bbox", bbox.String(), "error", err)
		return []Building{}
	}

	nodes := collectNodes(resp)
	buildings := []Building{}
	for _, element := range resp.Elements {
		if element.Type != "way" && element.Type != "relation" {
			continue
		}
		if element.Tags["building"] == "" {
			continue
		}
		coords := resolveCoordinates(element.Nodes, nodes)
		if len(coords) == 0 {
			continue
		}
		buildings = append(buildings, Building{
			ID:          strconv.FormatInt(element.ID, 10),
			Coordinates: coords,
			Tags:        element.Tags,
			Height:      buildingHeight(element.Tags),
		})
	}
	return buildings
}

// fetchRoads は主要道路を取得します。失敗時は空リストを返します。
func (f *Fetcher) fetchRoads(ctx context.Context, bbox BoundingBox) []Road {
	query := fmt.Sprintf(`
	[out:json][timeout:25];
	(
	  way["highway"~"^(primary|secondary|tertiary|residential|trunk|motorway)$"](%s);
	);
	out body;
	>;
	out skel qt;
	`, bbox.String())

	resp, err := f.queryOverpass(ctx, query)
	if err != nil {
		f.logger.Warnw("failed to fetch OSM roads", "bbox", bbox.String(), "error", err)
		return []Road{}
	}

	nodes := collectNodes(resp)
	roads := []Road{}
	for _, element := range resp.Elements {
		if element.Type != "way" || element.Tags["highway"] == "" {
			continue
		}
		coords := resolveCoordinates(element.Nodes, nodes)
		if len(coords) == 0 {
			continue
		}
		roads = append(roads, Road{
			ID:          strconv.FormatInt(element.ID, 10),
			Coordinates: coords,
			Tags:        element.Tags,
		})
	}
	return roads
}

// fetchElevation は標高グリッドを取得します。バッチ単位で失敗した箇所は
// 標高0で埋め、全体としては常にグリッドを返します。
func (f *Fetcher) fetchElevation(ctx context.Context, bbox BoundingBox) [][]float64 {
	latRange := bbox.North - bbox.South
	lngRange := bbox.East - bbox.West
	latSteps := int(latRange / elevationResolution)
	lngSteps := int(lngRange / elevationResolution)
	if latSteps <= 0 || lngSteps <= 0 {
		return [][]float64{}
	}

	grid := make([][]float64, 0, latSteps)
	for i := 0; i < latSteps; i++ {
		lat := bbox.South + float64(i)*latRange/float64(latSteps)

		row := make([]float64, 0, lngSteps)
		for j := 0; j < lngSteps; j += elevationBatchSize {
			end := j + elevationBatchSize
			if end > lngSteps {
				end = lngSteps
			}
			points := make([]elevationPoint, 0, end-j)
			for k := j; k < end; k++ {
				lng := bbox.West + float64(k)*lngRange/float64(lngSteps)
				points = append(points, elevationPoint{Latitude: lat, Longitude: lng})
			}

			row = append(row, f.fetchElevationBatch(ctx, points)...)

			// レート制限対策のペーシング
			if end < lngSteps {
				select {
				case <-ctx.Done():
					row = append(row, make([]float64, lngSteps-len(row))...)
					grid = append(grid, row)
					return padGrid(grid, latSteps, lngSteps)
				case <-time.After(elevationBatchPause):
				}
			}
		}
		grid = append(grid, row)
	}
	return grid
}

type elevationPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (f *Fetcher) fetchElevationBatch(ctx context.Context, points []elevationPoint) []float64 {
	fallback := make([]float64, len(points))

	body, err := json.Marshal(map[string]any{"locations": points})
	if err != nil {
		return fallback
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.elevationURL, bytes.NewReader(body))
	if err != nil {
		return fallback
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warnw("elevation batch fetch failed", "error", err)
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warnw("elevation API error", "status", resp.StatusCode)
		return fallback
	}

	var parsed struct {
		Results []struct {
			Elevation float64 `json:"elevation"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || len(parsed.Results) != len(points) {
		return fallback
	}

	elevations := make([]float64, len(points))
	for i, result := range parsed.Results {
		elevations[i] = result.Elevation
	}
	return elevations
}

type overpassElement struct {
	Type  string            `json:"type"`
	ID    int64             `json:"id"`
	Lat   float64           `json:"lat"`
	Lon   float64           `json:"lon"`
	Nodes []int64           `json:"nodes"`
	Tags  map[string]string `json:"tags"`
}

type overpassResponse struct {
	Elements []overpassElement `json:"elements"`
}

func (f *Fetcher) queryOverpass(ctx context.Context, query string) (*overpassResponse, error) {
	form := url.Values{"data": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.overpassURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// エラーメッセージの先頭だけ読んでログに残す
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("OSM API error: %d %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed overpassResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse overpass response: %w", err)
	}
	return &parsed, nil
}

func collectNodes(resp *overpassResponse) map[int64][]float64 {
	nodes := make(map[int64][]float64)
	for _, element := range resp.Elements {
		if element.Type == "node" {
			nodes[element.ID] = []float64{element.Lon, element.Lat}
		}
	}
	return nodes
}

func resolveCoordinates(nodeIDs []int64, nodes map[int64][]float64) [][]float64 {
	coords := make([][]float64, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		if c, ok := nodes[id]; ok {
			coords = append(coords, c)
		}
	}
	return coords
}

// buildingHeight はOSMタグから建物高さを推定します。
// 明示的な height タグ、building:levels、建物種別ごとの既定値の順で解決します。
func buildingHeight(tags map[string]string) float64 {
	if raw, ok := tags["height"]; ok {
		cleaned := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(raw, "m", ""), "ft", ""))
		if height, err := strconv.ParseFloat(cleaned, 64); err == nil {
			if strings.Contains(raw, "ft") {
				height *= 0.3048
			}
			return height
		}
	}

	if raw, ok := tags["building:levels"]; ok {
		if levels, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			return float64(levels) * 3.5 // 1フロアあたり3.5m
		}
	}

	defaultHeights := map[string]float64{
		"house":       8.0,
		"residential": 12.0,
		"apartments":  25.0,
		"commercial":  15.0,
		"office":      30.0,
		"industrial":  12.0,
		"warehouse":   10.0,
		"hospital":    20.0,
		"school":      12.0,
		"church":      15.0,
		"yes":         10.0, // 種別未指定の建物
	}
	buildingType := tags["building"]
	if buildingType == "" {
		buildingType = "yes"
	}
	if height, ok := defaultHeights[buildingType]; ok {
		return height
	}
	return 10.0
}

func padGrid(grid [][]float64, latSteps, lngSteps int) [][]float64 {
	for len(grid) < latSteps {
		grid = append(grid, make([]float64, lngSteps))
	}
	return grid
}
