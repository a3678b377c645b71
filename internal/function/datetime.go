package function

import (
	"fmt"
	"time"

	"github.com/parasol-framework/xquery/internal/eval"
	"github.com/parasol-framework/xquery/internal/value"
)

func registerDateTimeFunctions(r *Registry) {
	r.register("fn:current-date", 0, fnCurrentDate)
	r.register("fn:current-time", 0, fnCurrentTime)
	r.register("fn:current-dateTime", 0, fnCurrentDateTime)
	r.register("fn:implicit-timezone", 0, fnImplicitTimezone)
	r.register("fn:year-from-dateTime", 1, fnYearFromDateTime)
	r.register("fn:month-from-dateTime", 1, fnMonthFromDateTime)
	r.register("fn:day-from-dateTime", 1, fnDayFromDateTime)
}

// now is the single clock read point for date/time built-ins. It reads the
// wall clock on every call, not the evaluation context, so two calls within
// one evaluation can observe different instants.
func now() time.Time { return time.Now() }

func fnCurrentDate(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.String(now().Format("2006-01-02-07:00")), nil
}

func fnCurrentTime(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.String(now().Format("15:04:05-07:00")), nil
}

func fnCurrentDateTime(ctx *eval.Context, args []value.Value) (value.Value, error) {
	return value.String(now().Format("2006-01-02T15:04:05-07:00")), nil
}

func fnImplicitTimezone(ctx *eval.Context, args []value.Value) (value.Value, error) {
	_, offset := now().Zone()
	hours := offset / 3600
	minutes := (offset % 3600) / 60
	if minutes < 0 {
		minutes = -minutes
	}
	return value.String(fmt.Sprintf("%+03d:%02d", hours, minutes)), nil
}

func parseDateTime(s string) (time.Time, error) {
	layouts := []string{"2006-01-02T15:04:05Z07:00", "2006-01-02T15:04:05", "2006-01-02"}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

func fnYearFromDateTime(ctx *eval.Context, args []value.Value) (value.Value, error) {
	t, err := parseDateTime(argString(ctx, args[0]))
	if err != nil {
		return value.Empty(), nil
	}
	return value.Integer(int64(t.Year())), nil
}

func fnMonthFromDateTime(ctx *eval.Context, args []value.Value) (value.Value, error) {
	t, err := parseDateTime(argString(ctx, args[0]))
	if err != nil {
		return value.Empty(), nil
	}
	return value.Integer(int64(t.Month())), nil
}

func fnDayFromDateTime(ctx *eval.Context, args []value.Value) (value.Value, error) {
	t, err := parseDateTime(argString(ctx, args[0]))
	if err != nil {
		return value.Empty(), nil
	}
	return value.Integer(int64(t.Day())), nil
}
