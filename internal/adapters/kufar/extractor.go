// Package kufar получает и разбирает страницы поиска re.kufar.by.
package kufar

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/metrics"
)

// CSS-селекторы разметки страницы результатов.
const (
	selectorCandidate   = "section > a"
	selectorPrice       = ".styles_price__usd__HpXMa"
	selectorParameters  = ".styles_parameters__7zKlL"
	selectorAddress     = ".styles_address__l6Qe_"
	selectorDescription = ".styles_body__5BrnC"
)

// studioPrefix открывает параметры квартиры-студии; студия хранится как 0 комнат.
const studioPrefix = "студия"

var (
	nonDigits  = regexp.MustCompile(`\D`)
	firstDigit = regexp.MustCompile(`\d+`)
)

// Extractor превращает HTML страницы поиска в объявления. Ввода-вывода нет.
type Extractor struct {
	base *url.URL
	log  zerolog.Logger
}

// NewExtractor создаёт разборщик; base используется для относительных ссылок.
func NewExtractor(base *url.URL, log zerolog.Logger) *Extractor {
	return &Extractor{base: base, log: log}
}

// Extract возвращает объявления в порядке документа. Ошибка возвращается, только если
// документ не удалось разобрать целиком; сбой одного кандидата его лишь отбрасывает.
func (e *Extractor) Extract(r io.Reader, city string) ([]domain.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	var out []domain.Listing
	doc.Find(selectorCandidate).Each(func(i int, s *goquery.Selection) {
		listing, err := e.extractOne(s, city)
		if err != nil {
			metrics.ExtractDropped.Inc()
			e.log.Debug().Err(err).Int("index", i).Str("city", city).Msg("kufar: кандидат отброшен")
			return
		}
		out = append(out, listing)
	})
	return out, nil
}

func (e *Extractor) extractOne(s *goquery.Selection, city string) (listing domain.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	link := e.resolveLink(strings.TrimSpace(s.AttrOr("href", "")))
	if link == "" {
		return domain.Listing{}, errors.New("no link")
	}
	price := parsePrice(s)
	if price == nil {
		return domain.Listing{}, fmt.Errorf("no price for %s", link)
	}
	return domain.Listing{
		Link:        link,
		Source:      domain.SourceKufar,
		City:        city,
		Price:       *price,
		Rooms:       parseRooms(s),
		Address:     textOr(s, selectorAddress, domain.DefaultAddress),
		Image:       parseImage(s),
		Description: textOr(s, selectorDescription, domain.DefaultDescription),
	}, nil
}

func (e *Extractor) resolveLink(href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() || e.base == nil {
		return ref.String()
	}
	return e.base.ResolveReference(ref).String()
}

func parsePrice(s *goquery.Selection) *int {
	el := s.Find(selectorPrice).First()
	if el.Length() == 0 {
		return nil
	}
	digits := nonDigits.ReplaceAllString(el.Text(), "")
	if digits == "" {
		return nil
	}
	v, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &v
}

func parseRooms(s *goquery.Selection) *int {
	el := s.Find(selectorParameters).First()
	if el.Length() == 0 {
		return nil
	}
	text := strings.ToLower(strings.TrimSpace(el.Text()))
	if strings.HasPrefix(text, studioPrefix) {
		studio := 0
		return &studio
	}
	match := firstDigit.FindString(text)
	if match == "" {
		return nil
	}
	v, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &v
}

func parseImage(s *goquery.Selection) *string {
	img := s.Find("img").First()
	if img.Length() == 0 {
		return nil
	}
	src := strings.TrimSpace(img.AttrOr("src", ""))
	if src == "" {
		src = strings.TrimSpace(img.AttrOr("data-src", ""))
	}
	if src == "" {
		return nil
	}
	return &src
}

func textOr(s *goquery.Selection, selector, fallback string) string {
	el := s.Find(selector).First()
	if el.Length() == 0 {
		return fallback
	}
	text := strings.TrimSpace(el.Text())
	if text == "" {
		return fallback
	}
	return text
}
