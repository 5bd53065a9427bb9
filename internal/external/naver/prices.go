package naver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/scanengine/internal/contracts"
)

var priceRowRe = regexp.MustCompile(`\["(\d{8})",\s*(\d+(?:\.\d+)?),\s*(\d+(?:\.\d+)?),\s*(\d+(?:\.\d+)?),\s*(\d+(?:\.\d+)?),\s*(\d+(?:\.\d+)?)`)

// FetchBars fetches daily bars for one instrument, ascending by date
// ⭐ SSOT: Naver Finance 가격 API 호출은 이 함수에서만
func (c *Client) FetchBars(ctx context.Context, code string, from, to time.Time) ([]contracts.Bar, error) {
	params := url.Values{
		"symbol":      {code},
		"requestType": {"1"},
		"startTime":   {from.Format("20060102")},
		"endTime":     {to.Format("20060102")},
		"timeframe":   {"day"},
	}

	body, err := c.fetch(ctx, c.chartURL, "/siseJson.naver", params)
	if err != nil {
		return nil, err
	}

	bars, err := parsePriceResponse(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse response failed: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"stock_code": code,
		"count":      len(bars),
	}).Debug("Fetched prices")

	return bars, nil
}

// parsePriceResponse parses the chart response: a JS array with a header row
func parsePriceResponse(body string) ([]contracts.Bar, error) {
	body = strings.TrimSpace(body)
	body = strings.ReplaceAll(body, "'", "\"")

	var rawData [][]interface{}
	if err := json.Unmarshal([]byte(body), &rawData); err == nil {
		return parsePriceJSON(rawData), nil
	}

	// Fallback to regex parsing
	return parsePriceRegex(body), nil
}

func parsePriceJSON(rawData [][]interface{}) []contracts.Bar {
	var bars []contracts.Bar
	for i, row := range rawData {
		if i == 0 || len(row) < 6 {
			continue // header
		}

		dateStr, ok := row[0].(string)
		if !ok {
			continue
		}
		date, err := time.Parse("20060102", strings.TrimSpace(dateStr))
		if err != nil {
			continue
		}

		bars = append(bars, contracts.Bar{
			Date:   date,
			Open:   toFloat(row[1]),
			High:   toFloat(row[2]),
			Low:    toFloat(row[3]),
			Close:  toFloat(row[4]),
			Volume: toFloat(row[5]),
		})
	}
	return bars
}

func parsePriceRegex(body string) []contracts.Bar {
	var bars []contracts.Bar
	for _, m := range priceRowRe.FindAllStringSubmatch(body, -1) {
		date, err := time.Parse("20060102", m[1])
		if err != nil {
			continue
		}
		bars = append(bars, contracts.Bar{
			Date:   date,
			Open:   toFloat(m[2]),
			High:   toFloat(m[3]),
			Low:    toFloat(m[4]),
			Close:  toFloat(m[5]),
			Volume: toFloat(m[6]),
		})
	}
	return bars
}

// toFloat converts the mixed number/string cells of the chart API
func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case int:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f
	default:
		return 0
	}
}
