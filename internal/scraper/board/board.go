// Package board implements a scrape unit for HTML job boards using Colly.
package board

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/jobintel/job-intel/internal/fingerprint"
	"github.com/jobintel/job-intel/internal/jobs"
	"github.com/jobintel/job-intel/internal/parse"
)

const (
	defaultTimeout   = 15 * time.Second
	defaultDelay     = 500 * time.Millisecond
	defaultUserAgent = "jobintel/1.0"
)

// Selectors maps CSS selectors onto the fields of one posting card.
type Selectors struct {
	// Card matches each posting container on the listing page.
	Card string
	// Title, Company, Location, Salary are resolved inside the card; empty
	// selectors leave the field blank.
	Title    string
	Company  string
	Location string
	Salary   string
	// Link is resolved inside the card and must yield an href.
	Link string
}

// Config controls one board unit. Each configured board is a separate unit
// so a broken selector set cannot take the rest of the run down.
type Config struct {
	// Name becomes the record source, e.g. "board:weworkremotely".
	Name string
	// URL is the listing page to visit.
	URL string
	// AllowedDomain restricts the collector; derived from URL when empty.
	AllowedDomain string
	Selectors     Selectors
	UserAgent     string
	Timeout       time.Duration
	// Delay spaces successive requests to the board host.
	Delay time.Duration
	// MaxRecords caps how many cards one run parses; zero means no cap.
	MaxRecords int
	Enabled    bool
}

// Unit scrapes a single HTML job board.
type Unit struct {
	cfg    Config
	clock  jobs.Clock
	logger *zap.Logger
}

// New builds a board unit.
func New(cfg Config, clock jobs.Clock, logger *zap.Logger) (*Unit, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("board unit needs a name")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("board unit %q needs a url", cfg.Name)
	}
	if cfg.Selectors.Card == "" || cfg.Selectors.Link == "" {
		return nil, fmt.Errorf("board unit %q needs card and link selectors", cfg.Name)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaultDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AllowedDomain == "" {
		if parsed, err := url.Parse(cfg.URL); err == nil {
			cfg.AllowedDomain = parsed.Hostname()
		}
	}
	// Colly compares against URL.Hostname(), so a port would never match.
	if host, _, err := net.SplitHostPort(cfg.AllowedDomain); err == nil {
		cfg.AllowedDomain = host
	}
	return &Unit{cfg: cfg, clock: clock, logger: logger}, nil
}

// SourceName implements jobs.Scraper.
func (u *Unit) SourceName() string { return "board:" + u.cfg.Name }

// ShouldRun implements jobs.Scraper.
func (u *Unit) ShouldRun() bool { return u.cfg.Enabled }

// Fetch visits the listing page and parses each posting card.
func (u *Unit) Fetch(ctx context.Context) ([]jobs.Record, error) {
	collector := colly.NewCollector(colly.UserAgent(u.cfg.UserAgent))
	collector.SetRequestTimeout(u.cfg.Timeout)
	if u.cfg.AllowedDomain != "" {
		collector.AllowedDomains = []string{u.cfg.AllowedDomain}
	}
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob: "*",
		Delay:      u.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("board %s limit rule: %w", u.cfg.Name, err)
	}

	seen := make(map[string]struct{})
	var records []jobs.Record
	var fetchErr error

	collector.OnHTML(u.cfg.Selectors.Card, func(e *colly.HTMLElement) {
		if u.cfg.MaxRecords > 0 && len(records) >= u.cfg.MaxRecords {
			return
		}
		rec, ok := u.parseCard(e)
		if !ok {
			return
		}
		if _, dup := seen[rec.ExternalID]; dup {
			return
		}
		seen[rec.ExternalID] = struct{}{}
		records = append(records, rec)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(u.cfg.URL)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("board %s fetch canceled: %w", u.cfg.Name, ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("board %s visit: %w", u.cfg.Name, err)
		}
		if fetchErr != nil {
			return nil, fmt.Errorf("board %s fetch: %w", u.cfg.Name, fetchErr)
		}
	}

	u.logger.Debug("board parsed",
		zap.String("board", u.cfg.Name), zap.Int("records", len(records)))
	return records, nil
}

func (u *Unit) parseCard(e *colly.HTMLElement) (jobs.Record, bool) {
	link := strings.TrimSpace(e.ChildAttr(u.cfg.Selectors.Link, "href"))
	if link == "" {
		return jobs.Record{}, false
	}
	link = e.Request.AbsoluteURL(link)

	title := childText(e, u.cfg.Selectors.Title)
	company := childText(e, u.cfg.Selectors.Company)
	if title == "" {
		return jobs.Record{}, false
	}
	if company == "" {
		title, company = parse.TitleCompany(title)
	}

	location := childText(e, u.cfg.Selectors.Location)
	salaryRaw := childText(e, u.cfg.Selectors.Salary)
	salaryMin, salaryMax, salaryText := parse.SalaryRange(salaryRaw)

	haystack := title + " " + location + " " + salaryRaw
	tags := map[string][]string{}
	if skills := parse.Skills(haystack); len(skills) > 0 {
		tags["skills"] = skills
	}
	if rare := parse.RareTags(haystack); len(rare) > 0 {
		tags["rare"] = rare
	}

	return jobs.Record{
		Source:     u.SourceName(),
		ExternalID: fingerprint.ExternalID(link, title),
		Title:      title,
		Company:    company,
		Location:   location,
		SalaryMin:  salaryMin,
		SalaryMax:  salaryMax,
		SalaryText: salaryText,
		Category:   "board",
		Tags:       tags,
		URL:        link,
		FetchedAt:  u.clock.Now(),
		IsRemote:   strings.Contains(strings.ToLower(haystack), "remote"),
	}, true
}

func childText(e *colly.HTMLElement, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(e.ChildText(selector))
}
