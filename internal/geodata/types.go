// Package geodata は外部プロバイダーから都市ジオメトリと標高データを取得します。
// 建物・道路・標高の各フェッチは並行かつ独立に実行され、個別の失敗は
// 空のフォールバックに置き換えられます（全体の取得は失敗しません）。
package geodata

import (
	"fmt"
	"strconv"
	"strings"
)

// BoundingBox は取得対象の矩形領域です（south, west, north, east）。
type BoundingBox struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// String は "south,west,north,east" 形式の文字列を返します。キャッシュキーにも使います。
func (b BoundingBox) String() string {
	parts := []string{
		strconv.FormatFloat(b.South, 'f', -1, 64),
		strconv.FormatFloat(b.West, 'f', -1, 64),
		strconv.FormatFloat(b.North, 'f', -1, 64),
		strconv.FormatFloat(b.East, 'f', -1, 64),
	}
	return strings.Join(parts, ",")
}

// ParseBBox は "south,west,north,east" 形式の文字列を解析します。
func ParseBBox(s string) (BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("bbox は south,west,north,east の4要素で指定してください")
	}
	values := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("bbox の要素 %d が数値ではありません: %q", i+1, part)
		}
		values[i] = v
	}
	bbox := BoundingBox{South: values[0], West: values[1], North: values[2], East: values[3]}
	if bbox.North <= bbox.South || bbox.East <= bbox.West {
		return BoundingBox{}, fmt.Errorf("bbox は south < north かつ west < east である必要があります")
	}
	return bbox, nil
}

// Building はOSM由来の建物フットプリントです。
type Building struct {
	ID          string            `json:"id"`
	Coordinates [][]float64       `json:"coordinates"` // [lng, lat] の列
	Tags        map[string]string `json:"tags"`
	Height      float64           `json:"height"`
}

// Road はOSM由来の道路です。
type Road struct {
	ID          string            `json:"id"`
	Coordinates [][]float64       `json:"coordinates"`
	Tags        map[string]string `json:"tags"`
}

// ElevationGrid は標高グリッドです。
type ElevationGrid struct {
	Data       [][]float64 `json:"data"`
	Resolution float64     `json:"resolution"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
}

// Meta は取得結果の付帯情報です。
type Meta struct {
	BuildingsCount int      `json:"buildings_count"`
	RoadsCount     int      `json:"roads_count"`
	DataSources    []string `json:"data_sources"`
	Timestamp      float64  `json:"timestamp"` // Unix秒
}

// UrbanData は1回の取得結果の全体です。
type UrbanData struct {
	BBox      BoundingBox   `json:"bbox"`
	Buildings []Building    `json:"buildings"`
	Roads     []Road        `json:"roads"`
	Elevation ElevationGrid `json:"elevation"`
	Metadata  Meta          `json:"metadata"`
}
