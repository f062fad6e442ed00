package kufar

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"apartment-bot/internal/domain"
)

const searchPage = `<html><body><main>
<section>
  <a href="https://re.kufar.by/vi/minsk/snyat/kvartiru/1001">
    <img src="https://rms.kufar.by/1001.jpg">
    <p class="styles_price__usd__HpXMa">$ 450 *</p>
    <p class="styles_parameters__7zKlL">2 комн., 54 м²</p>
    <p class="styles_address__l6Qe_">  Минск, ул. Немига 5  </p>
    <p class="styles_body__5BrnC"> Уютная квартира </p>
  </a>
</section>
<section>
  <a href="/vi/minsk/snyat/kvartiru/1002">
    <p class="styles_price__usd__HpXMa">1 200 $</p>
    <p class="styles_parameters__7zKlL">Студия, 25 м²</p>
  </a>
</section>
<section>
  <a href="https://re.kufar.by/vi/minsk/snyat/kvartiru/1003">
    <p class="styles_price__usd__HpXMa">Договорная</p>
  </a>
</section>
<section>
  <a href="https://re.kufar.by/vi/minsk/snyat/kvartiru/1004">
    <p class="styles_parameters__7zKlL">3 комн.</p>
  </a>
</section>
<section>
  <a>
    <p class="styles_price__usd__HpXMa">300 $</p>
  </a>
</section>
</main></body></html>`

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	base, err := url.Parse("https://re.kufar.by")
	if err != nil {
		t.Fatal(err)
	}
	return NewExtractor(base, zerolog.Nop())
}

func TestExtractParsesCandidates(t *testing.T) {
	listings, err := newTestExtractor(t).Extract(strings.NewReader(searchPage), "minsk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("expected 2 listings, got %d: %+v", len(listings), listings)
	}

	first := listings[0]
	if first.Link != "https://re.kufar.by/vi/minsk/snyat/kvartiru/1001" {
		t.Fatalf("unexpected link %q", first.Link)
	}
	if first.Price != 450 {
		t.Fatalf("expected price 450, got %d", first.Price)
	}
	if first.Rooms == nil || *first.Rooms != 2 {
		t.Fatalf("expected 2 rooms, got %v", first.Rooms)
	}
	if first.Address != "Минск, ул. Немига 5" {
		t.Fatalf("unexpected address %q", first.Address)
	}
	if first.Description != "Уютная квартира" {
		t.Fatalf("unexpected description %q", first.Description)
	}
	if first.Image == nil || *first.Image != "https://rms.kufar.by/1001.jpg" {
		t.Fatalf("unexpected image %v", first.Image)
	}
	if first.Source != domain.SourceKufar || first.City != "minsk" {
		t.Fatalf("unexpected source/city %q/%q", first.Source, first.City)
	}

	second := listings[1]
	if second.Link != "https://re.kufar.by/vi/minsk/snyat/kvartiru/1002" {
		t.Fatalf("relative link must be resolved, got %q", second.Link)
	}
	if second.Price != 1200 {
		t.Fatalf("expected price 1200, got %d", second.Price)
	}
	if second.Rooms == nil || *second.Rooms != 0 {
		t.Fatalf("studio must give 0 rooms, got %v", second.Rooms)
	}
	if second.Address != domain.DefaultAddress || second.Description != domain.DefaultDescription {
		t.Fatalf("expected placeholders, got %q / %q", second.Address, second.Description)
	}
	if second.Image != nil {
		t.Fatalf("expected nil image, got %q", *second.Image)
	}
}

func TestExtractEmptyDocument(t *testing.T) {
	listings, err := newTestExtractor(t).Extract(strings.NewReader(""), "brest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(listings) != 0 {
		t.Fatalf("expected no listings, got %d", len(listings))
	}
}

func TestExtractKeepsDocumentOrder(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, id := range []string{"3", "1", "2"} {
		b.WriteString(`<section><a href="https://re.kufar.by/vi/` + id + `"><p class="styles_price__usd__HpXMa">` + id + `00</p></a></section>`)
	}
	b.WriteString("</body></html>")
	listings, err := newTestExtractor(t).Extract(strings.NewReader(b.String()), "gomel")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"3", "1", "2"}
	for i, l := range listings {
		if !strings.HasSuffix(l.Link, "/"+want[i]) {
			t.Fatalf("position %d: expected link ending %s, got %s", i, want[i], l.Link)
		}
	}
}

func TestParseRooms(t *testing.T) {
	cases := []struct {
		text string
		want *int
	}{
		{"2 комн., 54 м²", intp(2)},
		{"Студия, 25 м²", intp(0)},
		{"студия", intp(0)},
		{"  СТУДИЯ 18 м² ", intp(0)},
		{"4 комн.", intp(4)},
		{"этаж не указан", nil},
	}
	for _, tc := range cases {
		page := `<section><a href="/x"><p class="styles_parameters__7zKlL">` + tc.text + `</p></a></section>`
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
		if err != nil {
			t.Fatal(err)
		}
		got := parseRooms(doc.Find(selectorCandidate).First())
		switch {
		case tc.want == nil && got != nil:
			t.Fatalf("%q: expected nil rooms, got %d", tc.text, *got)
		case tc.want != nil && (got == nil || *got != *tc.want):
			t.Fatalf("%q: expected %d rooms, got %v", tc.text, *tc.want, got)
		}
	}
}
