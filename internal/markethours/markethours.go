// Package markethours knows the US equity session calendar. It tags
// timestamps as RTH (regular trading hours, 9:30–16:00 ET) or EXT
// (pre/post market and weekends) and locates the current session open,
// which anchors the session VWAP.
package markethours

import "time"

// Eastern is the US market time zone. DST-aware when tzdata is available.
var Eastern = loadEastern()

func loadEastern() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("ET", -5*3600)
	}
	return loc
}

// Regular session bounds in ET.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

// IsRTH returns true if t falls within regular trading hours
// (9:30 AM – 4:00 PM ET, Mon–Fri, excluding holidays).
func IsRTH(t time.Time) bool {
	et := t.In(Eastern)
	if !IsTradingDay(et) {
		return false
	}
	hm := et.Hour()*60 + et.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon–Fri in ET.
func IsWeekday(t time.Time) bool {
	wd := t.In(Eastern).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	et := t.In(Eastern)
	return IsWeekday(et) && !IsHoliday(et)
}

// SessionOpen returns the RTH open (9:30 AM ET) of the session containing t.
// If t is before today's open, the previous trading day's open is returned,
// so a pre-market timestamp still anchors to the last completed session.
func SessionOpen(t time.Time) time.Time {
	et := t.In(Eastern)
	open := time.Date(et.Year(), et.Month(), et.Day(), OpenHour, OpenMinute, 0, 0, Eastern)
	if et.Before(open) || !IsTradingDay(et) {
		d := et.AddDate(0, 0, -1)
		for i := 0; i < 10; i++ {
			if IsTradingDay(d) {
				return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, Eastern)
			}
			d = d.AddDate(0, 0, -1)
		}
	}
	return open
}

// SessionClose returns the RTH close (4:00 PM ET) of the day containing t.
func SessionClose(t time.Time) time.Time {
	et := t.In(Eastern)
	return time.Date(et.Year(), et.Month(), et.Day(), CloseHour, CloseMinute, 0, 0, Eastern)
}
