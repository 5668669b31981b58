package handlers

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/3Eeeecho/go-fastdb/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
)

// objectID 接受 JSON 数字或字符串, 整数 id 不经过 float64
type objectID string

func (o *objectID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*o = objectID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*o = objectID(n.String())
	return nil
}

func objectIDs(in []objectID) []string {
	out := make([]string, len(in))
	for i, id := range in {
		out[i] = string(id)
	}
	return out
}

func queryFloat(c *gin.Context, key string) (*float64, error) {
	s, ok := c.GetQuery(key)
	if !ok || s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, xerr.Wrapf(xerr.ErrInvalidParams, "%s must be a number, not %q", key, s)
	}
	return &v, nil
}

func queryBool(c *gin.Context, key string) (bool, error) {
	s, ok := c.GetQuery(key)
	if !ok || s == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, xerr.Wrapf(xerr.ErrInvalidParams, "%s must be a boolean, not %q", key, s)
	}
	return v, nil
}

// queryBands bands=g,r 与 bands=g&bands=r 两种写法都支持
func queryBands(c *gin.Context) []string {
	var out []string
	for _, v := range c.QueryArray("bands") {
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
