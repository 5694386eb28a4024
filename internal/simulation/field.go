package simulation

import "math"

// 爆風伝播モデルの定数。格子サイズ・帯域幅・減衰率は可視化側と合意済みの値です。
const (
	pressureGridSize = 50
	velocityGridSize = 25

	waveSpeed = 30.0 // 衝撃波面の伝播速度（距離単位/秒）

	pressureBand  = 5.0
	peakPressure  = 15.0
	pressureDecay = 0.5

	velocityBand  = 3.0
	peakVelocity  = 300.0
	velocityDecay = 0.3
)

// PressureField は時刻 t における50x50の圧力場を生成します。
// 中心から半径 t*waveSpeed の円形衝撃波面の近傍だけが非ゼロになります。
func PressureField(t float64) [][]float64 {
	center := float64(pressureGridSize / 2)
	waveRadius := t * waveSpeed

	field := make([][]float64, pressureGridSize)
	for i := 0; i < pressureGridSize; i++ {
		row := make([]float64, pressureGridSize)
		for j := 0; j < pressureGridSize; j++ {
			r := math.Hypot(float64(i)-center, float64(j)-center)

			pressure := 0.0
			if math.Abs(r-waveRadius) < pressureBand {
				pressure = peakPressure * math.Exp(-t*pressureDecay) * (1 - math.Abs(r-waveRadius)/pressureBand)
			}
			row[j] = math.Max(0, pressure)
		}
		field[i] = row
	}
	return field
}

// VelocityField は時刻 t における25x25の速度場を生成します。
// 波面近傍のセルに中心から放射状の速度ベクトルを与えます。原点セルは常にゼロです。
func VelocityField(t float64) [][]Vector {
	center := float64(velocityGridSize / 2)
	waveRadius := t * waveSpeed

	field := make([][]Vector, velocityGridSize)
	for i := 0; i < velocityGridSize; i++ {
		row := make([]Vector, velocityGridSize)
		for j := 0; j < velocityGridSize; j++ {
			dx := float64(i) - center
			dy := float64(j) - center
			r := math.Hypot(dx, dy)

			var vx, vy float64
			if r > 0 && math.Abs(r-waveRadius) < velocityBand {
				magnitude := peakVelocity * math.Exp(-t*velocityDecay)
				vx = magnitude * dx / r
				vy = magnitude * dy / r
			}
			row[j] = Vector{X: vx, Y: vy}
		}
		field[i] = row
	}
	return field
}

// MaxPressureAt は時刻 t の最大圧力サマリーを返します。
// ラスター場の式とは独立した閉形式の包絡線であり、メタデータの集計に使われます。
func MaxPressureAt(t float64) float64 {
	return 15.0 * math.Exp(-t*0.5) * math.Max(0, math.Sin(t*2))
}

// MaxVelocityAt は時刻 t の最大速度サマリーを返します。
func MaxVelocityAt(t float64) float64 {
	return 350.0 * math.Exp(-t*0.3) * math.Max(0, math.Cos(t*1.5))
}

// NewFrame はフレームindexに対応する全場データとサマリーを計算して組み立てます。
func NewFrame(index, totalFrames int, duration float64) Frame {
	t := float64(index) / float64(totalFrames) * duration

	return Frame{
		Index:         index,
		Time:          t,
		MaxPressure:   MaxPressureAt(t),
		MaxVelocity:   MaxVelocityAt(t),
		PressureField: PressureField(t),
		VelocityField: VelocityField(t),
	}
}
