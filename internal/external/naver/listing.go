package naver

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxListingPages bounds the market-sum crawl (50 rows per page)
const maxListingPages = 60

var itemCodeRe = regexp.MustCompile(`code=(\w{6})`)

// ListingItem is one row of the market-sum table
type ListingItem struct {
	Code string
	Name string
}

// marketCode maps an exchange tag to Naver's sosok parameter
func marketCode(exchange string) (string, error) {
	switch strings.ToUpper(exchange) {
	case "KOSPI", "KS", "":
		return "0", nil
	case "KOSDAQ", "KQ":
		return "1", nil
	default:
		return "", fmt.Errorf("unsupported exchange: %s", exchange)
	}
}

// FetchListing crawls the market-sum pages of an exchange, largest market cap first
func (c *Client) FetchListing(ctx context.Context, exchange string) ([]ListingItem, error) {
	sosok, err := marketCode(exchange)
	if err != nil {
		return nil, err
	}

	var items []ListingItem
	seen := make(map[string]struct{})

	for page := 1; page <= maxListingPages; page++ {
		body, err := c.fetch(ctx, c.baseURL, "/sise/sise_market_sum.naver", url.Values{
			"sosok": {sosok},
			"page":  {strconv.Itoa(page)},
		})
		if err != nil {
			return items, fmt.Errorf("listing page %d: %w", page, err)
		}

		pageItems, hasMore, err := parseListingHTML(body)
		if err != nil {
			return items, fmt.Errorf("parse listing page %d: %w", page, err)
		}

		for _, it := range pageItems {
			if _, dup := seen[it.Code]; dup {
				continue
			}
			seen[it.Code] = struct{}{}
			items = append(items, it)
		}

		if !hasMore || len(pageItems) == 0 {
			break
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"exchange": exchange,
		"count":    len(items),
	}).Info("Fetched exchange listing")

	return items, nil
}

// parseListingHTML extracts (code, name) rows and whether a last-page link exists
func parseListingHTML(body []byte) ([]ListingItem, bool, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}

	var items []ListingItem
	doc.Find("table.type_2 a.tltle").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := itemCodeRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		items = append(items, ListingItem{
			Code: m[1],
			Name: strings.TrimSpace(a.Text()),
		})
	})

	hasMore := doc.Find("td.pgRR").Length() > 0
	return items, hasMore, nil
}
