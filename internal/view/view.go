// Package view は埋め込みHTMLテンプレートのレンダリングを提供する。
// ページ全体のレンダリングと、htmxで差し替えるパーシャルのレンダリングの2系統を持つ。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/hitoshi/hansei/internal/model"
	"github.com/hitoshi/hansei/internal/score"
)

//go:embed templates/*.html templates/components/*.html
var templateFS embed.FS

// pageFiles はページ名から構成テンプレートファイルへのマッピング。
// 各ページはレイアウトと自身のcontent定義を組にして独立したテンプレートセットとして解析する。
var pageFiles = map[string][]string{
	"login":    {"templates/layout.html", "templates/login.html"},
	"register": {"templates/layout.html", "templates/register.html"},
	"calendar": {"templates/layout.html", "templates/components/day_cell.html", "templates/calendar.html"},
	"settings": {"templates/layout.html", "templates/settings.html"},
}

// partialFiles はパーシャル名から構成テンプレートファイルへのマッピング。
var partialFiles = map[string][]string{
	"entry_form": {"templates/components/entry_form.html"},
	"day_cell":   {"templates/components/day_cell.html"},
}

// LoginPageData はログインページのテンプレートデータ。
type LoginPageData struct {
	Error string
	Email string
}

// RegisterPageData は新規登録ページのテンプレートデータ。
type RegisterPageData struct {
	Error string
	Email string
}

// CalendarPageData はカレンダーページのテンプレートデータ。
type CalendarPageData struct {
	Email      string
	Year       int
	Month      int
	MonthLabel string
	Weeks      [][]DayCellData
	PrevYear   int
	PrevMonth  int
	NextYear   int
	NextMonth  int
	Legend     []LegendItem
}

// DayCellData はカレンダーの1セル分のテンプレートデータ。
// InMonthがfalseのセルは前後の週の詰め物として空白で描画される。
type DayCellData struct {
	Date    string // YYYY-MM-DD
	Num     int
	InMonth bool
	Today   bool
	Future  bool
	Entry   *model.Entry
}

// LegendItem はスコア凡例の1項目。
type LegendItem struct {
	Label string
	Range string
	Color template.CSS
}

// EntryFormData は記録入力モーダルのテンプレートデータ。
// Entryは入力欄の初期値（既存の記録、または検証エラー時の入力保持）で、
// 削除ボタンの表示はHasEntryで制御する。
type EntryFormData struct {
	Date     string
	Entry    *model.Entry
	HasEntry bool
	Error    string
	Future   bool
}

// SettingsPageData は設定ページのテンプレートデータ。
type SettingsPageData struct {
	Email     string
	CreatedAt time.Time
}

// legendRanges はバンドごとのスコア範囲の表示文字列。スコア昇順。
var legendRanges = []struct {
	score int
	label string
}{
	{0, "0"},
	{1, "1-2"},
	{3, "3-4"},
	{5, "5"},
	{6, "6-7"},
	{8, "8-9"},
	{10, "10"},
}

// BandLegend は7バンドの凡例をスコア昇順で返す。
func BandLegend() []LegendItem {
	items := make([]LegendItem, len(legendRanges))
	for i, r := range legendRanges {
		items[i] = LegendItem{
			Label: score.BandFor(r.score).Label(),
			Range: r.label,
			Color: template.CSS(score.ColorFor(r.score).Hex()),
		}
	}
	return items
}

// Renderer は解析済みテンプレートセットを保持しHTMLを描画する。
type Renderer struct {
	pages    map[string]*template.Template
	partials map[string]*template.Template
}

// NewRenderer は埋め込みテンプレートをすべて解析したRendererを生成する。
// テンプレートに構文エラーがある場合は起動時にここで検出される。
func NewRenderer() (*Renderer, error) {
	funcs := template.FuncMap{
		// scoreColor はスコアの表示色を#rrggbb形式で返す。
		"scoreColor": func(s int) template.CSS {
			return template.CSS(score.ColorFor(s).Hex())
		},
		// scoreBand はスコアの評価バンド名を返す。
		"scoreBand": func(s int) string {
			return score.BandFor(s).Label()
		},
		// scoreScale はスコア選択肢の0〜10を返す。
		"scoreScale": func() []int {
			scale := make([]int, model.ScoreMax-model.ScoreMin+1)
			for i := range scale {
				scale[i] = model.ScoreMin + i
			}
			return scale
		},
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for name, files := range pageFiles {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, files...)
		if err != nil {
			return nil, fmt.Errorf("ページテンプレートの解析に失敗しました (%s): %w", name, err)
		}
		pages[name] = t
	}

	partials := make(map[string]*template.Template, len(partialFiles))
	for name, files := range partialFiles {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, files...)
		if err != nil {
			return nil, fmt.Errorf("パーシャルテンプレートの解析に失敗しました (%s): %w", name, err)
		}
		partials[name] = t
	}

	return &Renderer{
		pages:    pages,
		partials: partials,
	}, nil
}

// RenderPage はページ全体をレイアウト込みで描画する。
// 描画は一旦バッファに行い、成功した場合のみwに書き込む。
func (r *Renderer) RenderPage(w io.Writer, page string, data interface{}) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("未定義のページテンプレートです: %s", page)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		return fmt.Errorf("ページの描画に失敗しました (%s): %w", page, err)
	}

	_, err := buf.WriteTo(w)
	return err
}

// RenderPartial はhtmx差し替え用のパーシャルを描画する。
func (r *Renderer) RenderPartial(w io.Writer, partial string, data interface{}) error {
	t, ok := r.partials[partial]
	if !ok {
		return fmt.Errorf("未定義のパーシャルテンプレートです: %s", partial)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, partial, data); err != nil {
		return fmt.Errorf("パーシャルの描画に失敗しました (%s): %w", partial, err)
	}

	_, err := buf.WriteTo(w)
	return err
}
