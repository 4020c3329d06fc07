package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ozrentals/drivenow-scraper/internal/models"
)

// vehicleCardSelector matches one result card in the listing.
const vehicleCardSelector = ".veh-list-container"

// fieldStrategy is one (selector, extractor) pair tried in order until a
// non-empty value comes back. Later entries cover older page layouts.
type fieldStrategy struct {
	selector string
	extract  func(*goquery.Selection) string
}

// CardParser turns one result card's HTML into vehicle fields. It works on
// raw HTML so it can be exercised against saved fixtures without a browser.
type CardParser struct {
	nameStrategies         []fieldStrategy
	fuelStrategies         []fieldStrategy
	typeStrategies         []fieldStrategy
	totalPriceStrategies   []fieldStrategy
	perDayPriceStrategies  []fieldStrategy
	logoStrategies         []fieldStrategy
	onclickURLPattern      *regexp.Regexp
	freeTextSeatsPattern   *regexp.Regexp
	freeTextDoorsPattern   *regexp.Regexp
	freeTextExcessPattern  *regexp.Regexp
	freeTextGearboxPattern *regexp.Regexp
}

func NewCardParser() *CardParser {
	text := func(s *goquery.Selection) string {
		return strings.TrimSpace(s.First().Text())
	}
	firstImgSrc := func(s *goquery.Selection) string {
		src, _ := s.First().Attr("src")
		return strings.TrimSpace(src)
	}

	return &CardParser{
		nameStrategies: []fieldStrategy{
			{".fuel-type-tag--container", text},
			{".vehicle-name", text},
			{"h3", text},
		},
		fuelStrategies: []fieldStrategy{
			{".fuel-type-tag", text},
		},
		typeStrategies: []fieldStrategy{
			{".vehicle-type", text},
			{".veh-category", text},
		},
		totalPriceStrategies: []fieldStrategy{
			{".total-price-number", text},
			{".total-price", text},
		},
		perDayPriceStrategies: []fieldStrategy{
			{".perdayprice", text},
			{".per-day-price", text},
		},
		logoStrategies: []fieldStrategy{
			{".img-responsive", firstImgSrc},
			{"img", firstImgSrc},
		},
		onclickURLPattern:      regexp.MustCompile(`['"]([^'"]+)['"]`),
		freeTextSeatsPattern:   regexp.MustCompile(`(?i)(\d+)\s*seats?`),
		freeTextDoorsPattern:   regexp.MustCompile(`(?i)(\d+)\s*doors?`),
		freeTextExcessPattern:  regexp.MustCompile(`(?i)excess[:\s]*\$?([\d,]+)`),
		freeTextGearboxPattern: regexp.MustCompile(`(?i)\b(automatic|manual)\b`),
	}
}

// ParseCard extracts one vehicle's fields from a card's outer HTML. Missing
// fields stay nil; only unparseable HTML is an error. The caller supplies
// the base record carrying run metadata.
func (p *CardParser) ParseCard(cardHTML string, vehicle *models.Vehicle) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cardHTML))
	if err != nil {
		return fmt.Errorf("failed to parse card HTML: %w", err)
	}
	root := doc.Selection

	vehicle.VehicleName = p.apply(root, p.nameStrategies)
	vehicle.FuelType = p.apply(root, p.fuelStrategies)
	vehicle.VehicleType = p.apply(root, p.typeStrategies)
	vehicle.TotalPrice = p.apply(root, p.totalPriceStrategies)
	vehicle.PricePerDay = p.apply(root, p.perDayPriceStrategies)
	vehicle.LogoURL = p.apply(root, p.logoStrategies)

	p.parseFeatureCells(root, vehicle)

	if vehicle.Seats == nil && vehicle.Doors == nil {
		p.parseFreeText(root.Text(), vehicle)
	}

	return nil
}

func (p *CardParser) apply(root *goquery.Selection, strategies []fieldStrategy) *string {
	for _, st := range strategies {
		sel := root.Find(st.selector)
		if sel.Length() == 0 {
			continue
		}
		if v := st.extract(sel); v != "" {
			return &v
		}
	}
	return nil
}

// parseFeatureCells reads the positional feature row. The order on the site
// is seats, doors, luggage, transmission, excess; luggage (index 2) is not
// stored.
func (p *CardParser) parseFeatureCells(root *goquery.Selection, vehicle *models.Vehicle) {
	root.Find(".feature-item").Each(func(i int, s *goquery.Selection) {
		v := strings.TrimSpace(s.Text())
		if v == "" {
			return
		}
		switch i {
		case 0:
			vehicle.Seats = &v
		case 1:
			vehicle.Doors = &v
		case 3:
			vehicle.Transmission = &v
		case 4:
			vehicle.Excess = &v
		}
	})
}

// parseFreeText is the fallback for cards without a feature row: it scans
// the card's visible text for the same attributes.
func (p *CardParser) parseFreeText(cardText string, vehicle *models.Vehicle) {
	if m := p.freeTextSeatsPattern.FindStringSubmatch(cardText); m != nil {
		vehicle.Seats = &m[1]
	}
	if m := p.freeTextDoorsPattern.FindStringSubmatch(cardText); m != nil {
		vehicle.Doors = &m[1]
	}
	if m := p.freeTextExcessPattern.FindStringSubmatch(cardText); m != nil {
		excess := "$" + m[1]
		vehicle.Excess = &excess
	}
	if m := p.freeTextGearboxPattern.FindStringSubmatch(cardText); m != nil {
		gearbox := strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:])
		vehicle.Transmission = &gearbox
	}
}

// ExtractDetailURL finds the booking detail link for a card, trying the
// card's own anchors first and then data attributes and onclick handlers.
// pageFallback is the same-index entry from a page-wide anchor sweep, used
// when the card itself carries no link.
func (p *CardParser) ExtractDetailURL(cardHTML, pageURL, pageFallback string) *string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(cardHTML))
	if err != nil {
		return nil
	}
	root := doc.Selection

	if href, ok := root.Find("a[href]").First().Attr("href"); ok {
		if u := resolveURL(pageURL, href); u != "" {
			return &u
		}
	}
	if href, ok := root.Find(".vehicle-details a, .details-link, button[data-url]").First().Attr("href"); ok {
		if u := resolveURL(pageURL, href); u != "" {
			return &u
		}
	}
	if pageFallback != "" {
		if u := resolveURL(pageURL, pageFallback); u != "" {
			return &u
		}
	}
	for _, attr := range []string{"data-url", "data-href", "data-link"} {
		if v, ok := root.Find("[" + attr + "]").First().Attr(attr); ok {
			if u := resolveURL(pageURL, v); u != "" {
				return &u
			}
		}
	}
	if onclick, ok := root.Find("[onclick]").First().Attr("onclick"); ok {
		if m := p.onclickURLPattern.FindStringSubmatch(onclick); m != nil {
			if u := resolveURL(pageURL, m[1]); u != "" {
				return &u
			}
		}
	}
	return nil
}

// resolveURL joins a possibly relative href against the page URL and
// rejects javascript: pseudo links.
func resolveURL(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
