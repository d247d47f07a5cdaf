package template

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"golang.org/x/text/language"
	numfmt "golang.org/x/text/message"
)

// Direction は値動きの方向
// すべてのテンプレートで同じマーカーと色を使う
type Direction int

const (
	Flat Direction = iota
	Up
	Down
)

const (
	colorUp      = "#16A34A"
	colorDown    = "#DC2626"
	colorNeutral = "#6B7280"
	colorLabel   = "#8C8C8C"
	colorMuted   = "#AAAAAA"
)

// DirectionOf は変動率の符号から方向を返す
func DirectionOf(change decimal.Decimal) Direction {
	switch change.Round(2).Sign() {
	case 1:
		return Up
	case -1:
		return Down
	default:
		return Flat
	}
}

// Marker はカード表示用の記号
func (d Direction) Marker() string {
	switch d {
	case Up:
		return "▲"
	case Down:
		return "▼"
	default:
		return "―"
	}
}

// Color はカード表示用の色
func (d Direction) Color() string {
	switch d {
	case Up:
		return colorUp
	case Down:
		return colorDown
	default:
		return colorNeutral
	}
}

var printer = numfmt.NewPrinter(language.English)

// FormatPercent は変動率を小数2桁・符号付きで整形する（例: +8.33%）
// 0は符号なしの 0.00%
func FormatPercent(change decimal.Decimal) string {
	rounded := change.Round(2)
	switch rounded.Sign() {
	case 1:
		return "+" + rounded.StringFixed(2) + "%"
	case -1:
		return rounded.StringFixed(2) + "%"
	default:
		return "0.00%"
	}
}

// FormatPrice は価格を3桁区切りで整形する
// 1未満の価格は小数6桁、それ以外は小数2桁
func FormatPrice(price decimal.Decimal) string {
	places := int32(2)
	if price.Abs().LessThan(decimal.NewFromInt(1)) && !price.IsZero() {
		places = 6
	}
	f, _ := price.Round(places).Float64()
	if places == 6 {
		return printer.Sprintf("$%.6f", f)
	}
	return printer.Sprintf("$%.2f", f)
}

// FormatVolume は出来高を整数・3桁区切りで整形する
func FormatVolume(volume decimal.Decimal) string {
	f, _ := volume.Round(0).Float64()
	return printer.Sprintf("%.0f", f)
}

// Data はテンプレートに渡すデータ
type Data map[string]any

// String は key の値を空白除去した文字列で返す
func (d Data) String(key string) (string, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Decimal は key の値を数値として返す
// 文字列・数値・json.Number を受け付ける
func (d Data) Decimal(key string) (decimal.Decimal, bool) {
	v, ok := d[key]
	if !ok || v == nil {
		return decimal.Zero, false
	}
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case string:
		dec, err := decimal.NewFromString(strings.TrimSpace(n))
		return dec, err == nil
	case json.Number:
		dec, err := decimal.NewFromString(n.String())
		return dec, err == nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// List は key の値をデータのリストとして返す
// マップに変換できない要素は読み飛ばす
func (d Data) List(key string) []Data {
	v, ok := d[key]
	if !ok || v == nil {
		return nil
	}
	if list, ok := v.([]Data); ok {
		return list
	}
	items, err := cast.ToSliceE(v)
	if err != nil {
		return nil
	}
	out := make([]Data, 0, len(items))
	for _, item := range items {
		if m, ok := item.(Data); ok {
			out = append(out, m)
			continue
		}
		m, err := cast.ToStringMapE(item)
		if err != nil {
			continue
		}
		out = append(out, Data(m))
	}
	return out
}

// priceOr は key の価格を整形して返す。値がなければプレースホルダ
func (d Data) priceOr(key, placeholder string) string {
	if v, ok := d.Decimal(key); ok {
		return FormatPrice(v)
	}
	return placeholder
}

// changeOr は key の変動率を整形して返す。値がなければプレースホルダと Flat
func (d Data) changeOr(key, placeholder string) (string, Direction) {
	if v, ok := d.Decimal(key); ok {
		return FormatPercent(v), DirectionOf(v)
	}
	return placeholder, Flat
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
