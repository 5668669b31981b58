// Package astro 提供坐标、时间和星等换算等与数据库无关的小工具.
package astro

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultZeropoint 对应以 nJy 为单位的流量
const DefaultZeropoint = 31.4

// MJD of the Unix epoch
const unixEpochMJD = 40587.0

const secondsPerDay = 86400.0

// MagToFlux 把星等换算为流量阈值: 10^((m-zp)/-2.5)
func MagToFlux(mag, zeropoint float64) float64 {
	return math.Pow(10, (mag-zeropoint)/-2.5)
}

// FluxToMag 非正流量返回 NaN
func FluxToMag(flux, zeropoint float64) float64 {
	if flux <= 0 {
		return math.NaN()
	}
	return -2.5*math.Log10(flux) + zeropoint
}

func MJDFromTime(t time.Time) float64 {
	return float64(t.UnixNano())/1e9/secondsPerDay + unixEpochMJD
}

func TimeFromMJD(mjd float64) time.Time {
	sec := (mjd - unixEpochMJD) * secondsPerDay
	whole := math.Floor(sec)
	return time.Unix(int64(whole), int64((sec-whole)*1e9)).UTC()
}

// AngularSeparation 返回两点间的角距离 (度), 使用 haversine 公式
func AngularSeparation(ra1, dec1, ra2, dec2 float64) float64 {
	r1, d1 := ra1*math.Pi/180, dec1*math.Pi/180
	r2, d2 := ra2*math.Pi/180, dec2*math.Pi/180
	sd := math.Sin((d2 - d1) / 2)
	sr := math.Sin((r2 - r1) / 2)
	h := sd*sd + math.Cos(d1)*math.Cos(d2)*sr*sr
	return 2 * math.Asin(math.Min(1, math.Sqrt(h))) * 180 / math.Pi
}

// ParseSexagesimal 解析 "a:b:c" 或 "a b c" 形式, 符号作用于整个值
func ParseSexagesimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty sexagesimal value")
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ' ' })
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("can't parse %q as sexagesimal", s)
	}
	val := 0.0
	scale := 1.0
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("can't parse %q as sexagesimal: %w", s, err)
		}
		if f < 0 || (i > 0 && f >= 60) {
			return 0, fmt.Errorf("sexagesimal component %q out of range", p)
		}
		val += f / scale
		scale *= 60
	}
	return sign * val, nil
}

// ParseRA 接受十进制度数或 hh:mm:ss
func ParseRA(s string) (float64, error) {
	if strings.ContainsAny(s, ": ") {
		h, err := ParseSexagesimal(s)
		if err != nil {
			return 0, err
		}
		return h * 15, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// ParseDec 接受十进制度数或 ±dd:mm:ss
func ParseDec(s string) (float64, error) {
	if strings.ContainsAny(strings.TrimSpace(s), ": ") {
		return ParseSexagesimal(s)
	}
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
