package browser

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/placerank/internal/geo"
	"github.com/nao1215/placerank/internal/model"
)

// BuildListURL returns the result list URL of keyword on route, centred on p:
// {base}/{route}/list?query=..&x={lon}&y={lat}&level=top&entry=pll
// Parameters keep the front end's order, which url.Values would sort.
func BuildListURL(base string, route model.Route, keyword string, p geo.Point) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(base, "/"))
	b.WriteString("/" + string(route) + "/list")
	b.WriteString("?query=" + url.QueryEscape(keyword))
	b.WriteString("&x=" + strconv.FormatFloat(p.Longitude, 'f', 7, 64))
	b.WriteString("&y=" + strconv.FormatFloat(p.Latitude, 'f', 7, 64))
	b.WriteString("&level=top&entry=pll")
	return b.String()
}
