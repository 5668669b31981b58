package search

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/astro"
	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
)

// Filters 对象检索条件, nil 表示不使用该条件. 时间为 MJD, 半径为角秒.
type Filters struct {
	RA     *float64
	Dec    *float64
	Radius *float64

	WindowT0              *float64
	WindowT1              *float64
	MinWindowNumDetection *int
	MaxWindowNumDetection *int

	MinTFirstDetection   *float64
	MaxTFirstDetection   *float64
	MinMagFirstDetection *float64
	MaxMagFirstDetection *float64

	MinTLastDetection   *float64
	MaxTLastDetection   *float64
	MinMagLastDetection *float64
	MaxMagLastDetection *float64

	MinTMaxDetection   *float64
	MaxTMaxDetection   *float64
	MinMagMaxDetection *float64
	MaxMagMaxDetection *float64

	MinNumDetections *int
	MaxNumDetections *int
	MinBandsDetected *int

	MinDtFirstLastDetection *float64
	MaxDtFirstLastDetection *float64

	MinLastMag *float64
	MaxLastMag *float64

	StatBands []string
}

type setter func(f *Filters, key string, v any) error

func floatField(field func(f *Filters) **float64) setter {
	return func(f *Filters, key string, v any) error {
		x, err := toFloat(key, v)
		if err != nil {
			return err
		}
		*field(f) = &x
		return nil
	}
}

func intField(field func(f *Filters) **int) setter {
	return func(f *Filters, key string, v any) error {
		x, err := toFloat(key, v)
		if err != nil {
			return err
		}
		if x != math.Trunc(x) {
			return xerr.Wrapf(xerr.ErrInvalidParams, "%s must be an integer, got %v", key, v)
		}
		if x < math.MinInt || x >= math.MaxInt {
			return xerr.Wrapf(xerr.ErrInvalidParams, "%s out of range: %v", key, v)
		}
		n := int(x)
		*field(f) = &n
		return nil
	}
}

func angleField(parse func(string) (float64, error), field func(f *Filters) **float64) setter {
	return func(f *Filters, key string, v any) error {
		if s, ok := v.(string); ok {
			x, err := parse(s)
			if err != nil {
				return xerr.Wrapf(xerr.ErrInvalidParams, "%s: %v", key, err)
			}
			*field(f) = &x
			return nil
		}
		return floatField(field)(f, key, v)
	}
}

// knownFilters 所有合法的检索关键字
var knownFilters = map[string]setter{
	"ra":     angleField(astro.ParseRA, func(f *Filters) **float64 { return &f.RA }),
	"dec":    angleField(astro.ParseDec, func(f *Filters) **float64 { return &f.Dec }),
	"radius": floatField(func(f *Filters) **float64 { return &f.Radius }),

	"window_t0":                floatField(func(f *Filters) **float64 { return &f.WindowT0 }),
	"window_t1":                floatField(func(f *Filters) **float64 { return &f.WindowT1 }),
	"min_window_numdetections": intField(func(f *Filters) **int { return &f.MinWindowNumDetection }),
	"max_window_numdetections": intField(func(f *Filters) **int { return &f.MaxWindowNumDetection }),

	"mint_firstdetection":   floatField(func(f *Filters) **float64 { return &f.MinTFirstDetection }),
	"maxt_firstdetection":   floatField(func(f *Filters) **float64 { return &f.MaxTFirstDetection }),
	"minmag_firstdetection": floatField(func(f *Filters) **float64 { return &f.MinMagFirstDetection }),
	"maxmag_firstdetection": floatField(func(f *Filters) **float64 { return &f.MaxMagFirstDetection }),

	"mint_lastdetection":   floatField(func(f *Filters) **float64 { return &f.MinTLastDetection }),
	"maxt_lastdetection":   floatField(func(f *Filters) **float64 { return &f.MaxTLastDetection }),
	"minmag_lastdetection": floatField(func(f *Filters) **float64 { return &f.MinMagLastDetection }),
	"maxmag_lastdetection": floatField(func(f *Filters) **float64 { return &f.MaxMagLastDetection }),

	"mint_maxdetection":   floatField(func(f *Filters) **float64 { return &f.MinTMaxDetection }),
	"maxt_maxdetection":   floatField(func(f *Filters) **float64 { return &f.MaxTMaxDetection }),
	"minmag_maxdetection": floatField(func(f *Filters) **float64 { return &f.MinMagMaxDetection }),
	"maxmag_maxdetection": floatField(func(f *Filters) **float64 { return &f.MaxMagMaxDetection }),

	"min_numdetections": intField(func(f *Filters) **int { return &f.MinNumDetections }),
	"max_numdetections": intField(func(f *Filters) **int { return &f.MaxNumDetections }),
	"min_bandsdetected": intField(func(f *Filters) **int { return &f.MinBandsDetected }),

	"mindt_firstlastdetection": floatField(func(f *Filters) **float64 { return &f.MinDtFirstLastDetection }),
	"maxdt_firstlastdetection": floatField(func(f *Filters) **float64 { return &f.MaxDtFirstLastDetection }),

	"min_lastmag": floatField(func(f *Filters) **float64 { return &f.MinLastMag }),
	"max_lastmag": floatField(func(f *Filters) **float64 { return &f.MaxLastMag }),

	"statbands": setStatBands,
}

func setStatBands(f *Filters, key string, v any) error {
	switch b := v.(type) {
	case string:
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.StatBands = append(f.StatBands, part)
			}
		}
	case []string:
		f.StatBands = append(f.StatBands, b...)
	case []any:
		for _, item := range b {
			s, ok := item.(string)
			if !ok {
				return xerr.Wrapf(xerr.ErrInvalidParams, "%s must be a string or a list of strings", key)
			}
			f.StatBands = append(f.StatBands, s)
		}
	default:
		return xerr.Wrapf(xerr.ErrInvalidParams, "%s must be a string or a list of strings", key)
	}
	return nil
}

func toFloat(key string, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, xerr.Wrapf(xerr.ErrInvalidParams, "%s must be a number, got %v", key, v)
}

// ParseFilters 任何不认识的关键字都直接报错, 不忽略
func ParseFilters(raw map[string]any) (Filters, error) {
	var f Filters
	var unknown []string
	for key := range raw {
		if _, ok := knownFilters[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Filters{}, xerr.Wrapf(xerr.ErrUnknownFilter, "unknown search keywords: %s", strings.Join(unknown, ", "))
	}
	for key, v := range raw {
		if v == nil {
			continue
		}
		if err := knownFilters[key](&f, key, v); err != nil {
			return Filters{}, err
		}
	}
	return f, nil
}

func inconsistent(format string, args ...any) error {
	return xerr.Wrapf(xerr.ErrInconsistentFilter, format, args...)
}

type floatBound struct {
	minName, maxName string
	min, max         *float64
}

// Validate 在访问数据库前检查条件组合是否自洽
func (f Filters) Validate() error {
	given := 0
	for _, p := range []*float64{f.RA, f.Dec, f.Radius} {
		if p != nil {
			given++
		}
	}
	if given != 0 && given != 3 {
		return inconsistent("must give either all or none of ra, dec, radius")
	}
	if f.Radius != nil && *f.Radius < 0 {
		return xerr.Wrapf(xerr.ErrInvalidParams, "radius must not be negative, got %g", *f.Radius)
	}

	if (f.WindowT0 == nil) != (f.WindowT1 == nil) {
		return inconsistent("must give both or neither of window_t0, window_t1")
	}
	if (f.MinWindowNumDetection != nil || f.MaxWindowNumDetection != nil) && f.WindowT0 == nil {
		return inconsistent("(min|max)_window_numdetections requires window_t0 and window_t1")
	}

	bounds := []floatBound{
		{"window_t0", "window_t1", f.WindowT0, f.WindowT1},
		{"mint_firstdetection", "maxt_firstdetection", f.MinTFirstDetection, f.MaxTFirstDetection},
		{"mint_lastdetection", "maxt_lastdetection", f.MinTLastDetection, f.MaxTLastDetection},
		{"mint_maxdetection", "maxt_maxdetection", f.MinTMaxDetection, f.MaxTMaxDetection},
		{"minmag_firstdetection", "maxmag_firstdetection", f.MinMagFirstDetection, f.MaxMagFirstDetection},
		{"minmag_lastdetection", "maxmag_lastdetection", f.MinMagLastDetection, f.MaxMagLastDetection},
		{"minmag_maxdetection", "maxmag_maxdetection", f.MinMagMaxDetection, f.MaxMagMaxDetection},
		{"mindt_firstlastdetection", "maxdt_firstlastdetection", f.MinDtFirstLastDetection, f.MaxDtFirstLastDetection},
		{"min_lastmag", "max_lastmag", f.MinLastMag, f.MaxLastMag},
		// 最后一次探测不可能早于第一次探测
		{"mint_firstdetection", "maxt_lastdetection", f.MinTFirstDetection, f.MaxTLastDetection},
		{"window_t0", "maxt_lastdetection", f.WindowT0, f.MaxTLastDetection},
		{"mint_firstdetection", "window_t1", f.MinTFirstDetection, f.WindowT1},
	}
	for _, b := range bounds {
		if b.min != nil && b.max != nil && *b.min > *b.max {
			return inconsistent("%s=%g and %s=%g are inconsistent", b.minName, *b.min, b.maxName, *b.max)
		}
	}

	intBounds := []struct {
		minName, maxName string
		min, max         *int
	}{
		{"min_window_numdetections", "max_window_numdetections", f.MinWindowNumDetection, f.MaxWindowNumDetection},
		{"min_numdetections", "max_numdetections", f.MinNumDetections, f.MaxNumDetections},
	}
	for _, b := range intBounds {
		if b.min != nil && b.max != nil && *b.min > *b.max {
			return inconsistent("%s=%d and %s=%d are inconsistent", b.minName, *b.min, b.maxName, *b.max)
		}
	}
	return nil
}

// withMJDNow 未指定的 maxt_* 取 mjdNow
func (f Filters) withMJDNow(mjdNow *float64) Filters {
	if mjdNow == nil {
		return f
	}
	for _, p := range []**float64{&f.MaxTFirstDetection, &f.MaxTLastDetection, &f.MaxTMaxDetection} {
		if *p == nil {
			now := *mjdNow
			*p = &now
		}
	}
	return f
}

func (f Filters) String() string {
	var parts []string
	add := func(name string, p *float64) {
		if p != nil {
			parts = append(parts, fmt.Sprintf("%s=%g", name, *p))
		}
	}
	add("ra", f.RA)
	add("dec", f.Dec)
	add("radius", f.Radius)
	add("window_t0", f.WindowT0)
	add("window_t1", f.WindowT1)
	add("mint_firstdetection", f.MinTFirstDetection)
	add("maxt_lastdetection", f.MaxTLastDetection)
	if len(f.StatBands) > 0 {
		parts = append(parts, "statbands="+strings.Join(f.StatBands, ","))
	}
	return strings.Join(parts, " ")
}
