package http

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

const (
	defaultScenePage = 50
	maxScenePage     = 100
)

// ScenePage is one page of the scene catalog.
type ScenePage struct {
	Data       []domain.Scene `json:"data"`
	Pagination Pagination     `json:"pagination"`
}

// Pagination contains offset-based pagination info.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// scenePageFromQuery reads offset and limit, falling back to the default
// page size when limit is missing or out of range.
func scenePageFromQuery(c *fiber.Ctx) Pagination {
	p := Pagination{Offset: c.QueryInt("offset", 0), Limit: c.QueryInt("limit", defaultScenePage)}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 || p.Limit > maxScenePage {
		p.Limit = defaultScenePage
	}
	return p
}

// lastOffset is where the final page starts, on a page boundary.
func (p Pagination) lastOffset() int {
	if p.Total <= p.Limit {
		return 0
	}
	return (p.Total - 1) / p.Limit * p.Limit
}

// SetLinkHeaders adds RFC 8288 Link headers for a catalog page. Query
// parameters other than offset and limit are carried into every link.
func SetLinkHeaders(c *fiber.Ctx, p Pagination) {
	rest := url.Values{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		if key := string(k); key != "offset" && key != "limit" {
			rest.Add(key, string(v))
		}
	})
	tail := ""
	if len(rest) > 0 {
		tail = "&" + rest.Encode()
	}
	link := func(offset int, rel string) string {
		return fmt.Sprintf(`<%s?offset=%d&limit=%d%s>; rel="%s"`, c.Path(), offset, p.Limit, tail, rel)
	}

	links := []string{link(0, "first")}
	if p.Offset > 0 {
		links = append(links, link(max(p.Offset-p.Limit, 0), "prev"))
	}
	if p.Offset+p.Limit < p.Total {
		links = append(links, link(p.Offset+p.Limit, "next"))
	}
	links = append(links, link(p.lastOffset(), "last"))

	c.Set("Link", strings.Join(links, ", "))
}
