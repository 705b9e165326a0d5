package crawler

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/devkyu/platewatch/internal/models"
)

// parseMenu extracts menu items from a menu page. Selectors follow the
// listing markup: each item is a ".menu-item" with name, price and an
// optional description.
func parseMenu(body []byte) ([]models.MenuItem, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var items []models.MenuItem
	doc.Find(".menu-item").Each(func(_ int, sel *goquery.Selection) {
		name := strings.TrimSpace(sel.Find(".name").Text())
		if name == "" {
			return
		}
		items = append(items, models.MenuItem{
			Name:        name,
			Price:       parsePrice(sel.Find(".price").Text()),
			Description: strings.TrimSpace(sel.Find(".description").Text()),
		})
	})

	return items, nil
}

// parseReviews extracts reviews from one review listing page.
func parseReviews(body []byte, restaurantID int64) ([]models.Review, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var reviews []models.Review
	doc.Find(".review-item").Each(func(_ int, sel *goquery.Selection) {
		content := strings.TrimSpace(sel.Find(".content").Text())
		if content == "" {
			return
		}

		rev := models.Review{
			RestaurantID: restaurantID,
			Author:       strings.TrimSpace(sel.Find(".author").Text()),
			Rating:       parseRating(sel),
			Content:      content,
		}
		if written := parseWrittenAt(sel.Find(".date").Text()); written != nil {
			rev.WrittenAt = written
		}
		reviews = append(reviews, rev)
	})

	return reviews, nil
}

// parsePrice strips currency symbols and separators, keeping digits only.
func parsePrice(raw string) int {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	price, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return price
}

func parseRating(sel *goquery.Selection) int {
	if v, ok := sel.Find(".rating").Attr("data-rating"); ok {
		if rating, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return rating
		}
	}
	return sel.Find(".rating .star.filled").Length()
}

func parseWrittenAt(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{"2006.01.02", "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
