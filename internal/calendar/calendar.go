// Package calendar は月表示用のカレンダーグリッドを構築する。
// DBにもHTTPにも依存しない純粋なロジックのみを置く。
package calendar

import "time"

// 表示可能な年の範囲。範囲外の指定は現在の年月にフォールバックする。
const (
	YearMin = 2000
	YearMax = 2100
)

// Day はグリッドの1セルを表す。
// 月外のパディングセルはゼロ値（InMonth=false, Num=0）になる。
type Day struct {
	Date    time.Time
	Num     int
	InMonth bool
	Today   bool
	Future  bool
}

// Month は1か月分のグリッド。各週は日曜始まりの7セルで揃えられる。
type Month struct {
	Year  int
	Month time.Month
	Weeks [][]Day
}

// Build は指定年月のカレンダーグリッドを構築する。
// todayは当日・未来判定の基準で、時刻部分は無視される。
func Build(year int, month time.Month, today time.Time) Month {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := first.AddDate(0, 1, -1).Day()
	lead := int(first.Weekday()) // time.Sunday == 0

	todayDate := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	var weeks [][]Day
	week := make([]Day, lead, 7)
	for num := 1; num <= daysInMonth; num++ {
		date := time.Date(year, month, num, 0, 0, 0, 0, time.UTC)
		week = append(week, Day{
			Date:    date,
			Num:     num,
			InMonth: true,
			Today:   date.Equal(todayDate),
			Future:  date.After(todayDate),
		})
		if len(week) == 7 {
			weeks = append(weeks, week)
			week = make([]Day, 0, 7)
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, Day{})
		}
		weeks = append(weeks, week)
	}

	return Month{Year: year, Month: month, Weeks: weeks}
}

// Prev は前月の年月を返す。
func (m Month) Prev() (int, time.Month) {
	if m.Month == time.January {
		return m.Year - 1, time.December
	}
	return m.Year, m.Month - 1
}

// Next は翌月の年月を返す。
func (m Month) Next() (int, time.Month) {
	if m.Month == time.December {
		return m.Year + 1, time.January
	}
	return m.Year, m.Month + 1
}

// Normalize は年月の指定値を検証し、範囲外や未指定の場合はnowの年月に置き換える。
// 年と月は独立に検証される。
func Normalize(year, month int, now time.Time) (int, time.Month) {
	if month < 1 || month > 12 {
		month = int(now.Month())
	}
	if year < YearMin || year > YearMax {
		year = now.Year()
	}
	return year, time.Month(month)
}

// Bounds は指定年月の月初と月末の日付を返す。
func Bounds(year int, month time.Month) (time.Time, time.Time) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	return first, last
}
