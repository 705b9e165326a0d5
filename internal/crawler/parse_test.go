package crawler

import (
	"testing"
)

const menuPage = `
<html><body>
  <div class="menu-item">
    <span class="name">Kimchi Stew</span>
    <span class="price">9,500원</span>
    <p class="description">Served with rice</p>
  </div>
  <div class="menu-item">
    <span class="name">Bulgogi</span>
    <span class="price">$12.00</span>
  </div>
  <div class="menu-item">
    <span class="name"></span>
    <span class="price">3000</span>
  </div>
</body></html>`

func TestParseMenu(t *testing.T) {
	items, err := parseMenu([]byte(menuPage))
	if err != nil {
		t.Fatalf("parseMenu error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items (nameless skipped), got %d", len(items))
	}
	if items[0].Name != "Kimchi Stew" || items[0].Price != 9500 {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[0].Description != "Served with rice" {
		t.Fatalf("unexpected description %q", items[0].Description)
	}
	if items[1].Price != 1200 {
		t.Fatalf("expected digits-only price 1200, got %d", items[1].Price)
	}
}

const reviewPage = `
<html><body>
  <div class="review-item">
    <span class="author">minji</span>
    <span class="rating" data-rating="4"></span>
    <p class="content">Great stew, long wait.</p>
    <span class="date">2026.03.15</span>
  </div>
  <div class="review-item">
    <span class="author">anon</span>
    <span class="rating">
      <i class="star filled"></i><i class="star filled"></i><i class="star"></i>
    </span>
    <p class="content">Average.</p>
    <span class="date">not a date</span>
  </div>
  <div class="review-item">
    <span class="author">ghost</span>
    <p class="content"></p>
  </div>
</body></html>`

func TestParseReviews(t *testing.T) {
	reviews, err := parseReviews([]byte(reviewPage), 42)
	if err != nil {
		t.Fatalf("parseReviews error: %v", err)
	}
	if len(reviews) != 2 {
		t.Fatalf("expected 2 reviews (empty content skipped), got %d", len(reviews))
	}

	first := reviews[0]
	if first.RestaurantID != 42 || first.Author != "minji" || first.Rating != 4 {
		t.Fatalf("unexpected first review %+v", first)
	}
	if first.WrittenAt == nil || first.WrittenAt.Year() != 2026 {
		t.Fatalf("expected parsed date, got %v", first.WrittenAt)
	}

	second := reviews[1]
	if second.Rating != 2 {
		t.Fatalf("expected filled-star fallback rating 2, got %d", second.Rating)
	}
	if second.WrittenAt != nil {
		t.Fatalf("unparseable date must stay nil, got %v", second.WrittenAt)
	}
}

func TestParsePrice(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"9,500원", 9500},
		{"$12.00", 1200},
		{"free", 0},
		{"", 0},
	}
	for _, c := range cases {
		if got := parsePrice(c.in); got != c.want {
			t.Fatalf("parsePrice(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
