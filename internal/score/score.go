// Package score はスコアから評価バンドと表示色への純粋な変換を提供する。
// 同じスコアは常に同じ結果を返す。I/Oや時刻には依存しない。
package score

import (
	"fmt"
	"math"
)

// Band はスコアの評価バンドを表す。チェスの手の評価用語を流用している。
type Band int

const (
	// BandBlunder はスコア0（大失敗）のバンド。
	BandBlunder Band = iota
	// BandMistake はスコア1〜2のバンド。
	BandMistake
	// BandInaccuracy はスコア3〜4のバンド。
	BandInaccuracy
	// BandNeutral はスコア5（可もなく不可もなく）のバンド。
	BandNeutral
	// BandGood はスコア6〜7のバンド。
	BandGood
	// BandGreat はスコア8〜9のバンド。
	BandGreat
	// BandBrilliant はスコア10（最高の一日）のバンド。
	BandBrilliant
)

// Label はバンドの表示名を返す。
func (b Band) Label() string {
	switch b {
	case BandBlunder:
		return "Blunder"
	case BandMistake:
		return "Mistake"
	case BandInaccuracy:
		return "Inaccuracy"
	case BandNeutral:
		return "Neutral"
	case BandGood:
		return "Good"
	case BandGreat:
		return "Great"
	case BandBrilliant:
		return "Brilliant"
	default:
		return "Unknown"
	}
}

// Color はsRGB色を表す。
type Color struct {
	R uint8
	G uint8
	B uint8
}

// Hex は色を#rrggbb形式（小文字）で返す。
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// anchor はスコア軸上の色の基準点。
type anchor struct {
	score int
	color Color
}

// アンカーはスコア昇順に並べる。隣接アンカー間のスコアは
// RGB各チャンネルを線形補間して色を決める。
// 低スコアほど暖色（赤系）、高スコアほど寒色（青系）。
// 青チャンネルはスコアに対して単調増加になるよう選んである。
var anchors = []anchor{
	{0, Color{0x70, 0x18, 0x1E}},
	{1, Color{0xCD, 0x31, 0x2A}},
	{3, Color{0xEC, 0x88, 0x40}},
	{5, Color{0x94, 0x98, 0xA0}},
	{6, Color{0x86, 0xDE, 0xC8}},
	{8, Color{0x2B, 0xC8, 0xCE}},
	{10, Color{0x29, 0x79, 0xFF}},
}

// Clamp はスコアを有効範囲[0, 10]に丸める。
func Clamp(s int) int {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}

// BandFor はスコアの評価バンドを返す。範囲外のスコアはClampで丸めてから判定する。
func BandFor(s int) Band {
	switch s := Clamp(s); {
	case s == 0:
		return BandBlunder
	case s <= 2:
		return BandMistake
	case s <= 4:
		return BandInaccuracy
	case s == 5:
		return BandNeutral
	case s <= 7:
		return BandGood
	case s <= 9:
		return BandGreat
	default:
		return BandBrilliant
	}
}

// ColorFor はスコアの表示色を返す。範囲外のスコアはClampで丸めてから変換する。
func ColorFor(s int) Color {
	c := Clamp(s)
	for i := 1; i < len(anchors); i++ {
		hi := anchors[i]
		if c > hi.score {
			continue
		}
		lo := anchors[i-1]
		t := float64(c-lo.score) / float64(hi.score-lo.score)
		return Color{
			R: lerp(lo.color.R, hi.color.R, t),
			G: lerp(lo.color.G, hi.color.G, t),
			B: lerp(lo.color.B, hi.color.B, t),
		}
	}
	return anchors[len(anchors)-1].color
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
}
