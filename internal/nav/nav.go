package nav

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"priceresolver/internal/httpx"
	"priceresolver/internal/pricing"
)

// sourceName tags UpstreamErrors raised by this source.
const sourceName = "navall"

// notApplicable is the literal the publisher uses for schemes without a NAV.
const notApplicable = "N.A."

// navDateLayout is the date format of the bulk file, e.g. "28-Aug-2026".
const navDateLayout = "02-Jan-2006"

// Config controls the bulk NAV source behavior.
type Config struct {
	URL string
	// SnapshotTTL caches the parsed bulk file for this long, so several
	// callers share one download. If <= 0, every FetchAll downloads anew.
	SnapshotTTL time.Duration
}

// Source downloads one bulk pipe-delimited valuation file covering all
// published funds and parses it into records. One network call yields all
// instruments of this kind, so callers needing several fund prices should
// share a single Snapshot rather than call FetchOne per scheme.
type Source struct {
	cfg    Config
	client *httpx.Client

	mu      sync.RWMutex
	records []pricing.FundNavRecord
	byCode  map[string]pricing.FundNavRecord
	until   time.Time

	// coalesce concurrent downloads of the same file
	sf singleflight.Group
}

func New(cfg Config, hc *httpx.Client) *Source {
	return &Source{cfg: cfg, client: hc}
}

// FetchAll returns the parsed records of the bulk file, using the snapshot
// when still valid.
func (s *Source) FetchAll(ctx context.Context) ([]pricing.FundNavRecord, error) {
	records, _, err := s.load(ctx)
	return records, err
}

// Snapshot returns the bulk result keyed by scheme code, obtained in one
// shot. The batch layer resolves every fund in a batch against one snapshot.
func (s *Source) Snapshot(ctx context.Context) (map[string]pricing.FundNavRecord, error) {
	_, byCode, err := s.load(ctx)
	return byCode, err
}

// FetchOne scans the bulk result for one scheme code. It fails with a
// NotFoundError when the code is absent from a successfully fetched file and
// with an UpstreamError when the download or parse itself fails.
func (s *Source) FetchOne(ctx context.Context, schemeCode string) (decimal.Decimal, error) {
	byCode, err := s.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	rec, ok := byCode[schemeCode]
	if !ok {
		return decimal.Zero, &pricing.NotFoundError{InstrumentID: schemeCode}
	}
	return rec.NAV, nil
}

func (s *Source) load(ctx context.Context) ([]pricing.FundNavRecord, map[string]pricing.FundNavRecord, error) {
	now := time.Now()
	s.mu.RLock()
	if !s.until.IsZero() && now.Before(s.until) && s.byCode != nil {
		records, byCode := s.records, s.byCode
		s.mu.RUnlock()
		return records, byCode, nil
	}
	s.mu.RUnlock()

	type snapshot struct {
		records []pricing.FundNavRecord
		byCode  map[string]pricing.FundNavRecord
	}
	v, err, _ := s.sf.Do("navall", func() (any, error) {
		records, err := s.download(ctx)
		if err != nil {
			return nil, err
		}
		byCode := make(map[string]pricing.FundNavRecord, len(records))
		for _, r := range records {
			byCode[r.SchemeCode] = r
		}
		if s.cfg.SnapshotTTL > 0 {
			s.mu.Lock()
			s.records = records
			s.byCode = byCode
			s.until = time.Now().Add(s.cfg.SnapshotTTL)
			s.mu.Unlock()
		}
		return snapshot{records: records, byCode: byCode}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	snap := v.(snapshot)
	return snap.records, snap.byCode, nil
}

func (s *Source) download(ctx context.Context) ([]pricing.FundNavRecord, error) {
	if s.cfg.URL == "" {
		return nil, &pricing.UpstreamError{Source: sourceName, Err: fmt.Errorf("missing URL")}
	}
	resp, err := s.client.Get(ctx, s.cfg.URL)
	if err != nil {
		return nil, &pricing.UpstreamError{Source: sourceName, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &pricing.UpstreamError{Source: sourceName, Err: fmt.Errorf("GET %s -> %d", s.cfg.URL, resp.StatusCode)}
	}
	records, err := Parse(resp.Body)
	if err != nil {
		return nil, &pricing.UpstreamError{Source: sourceName, Err: err}
	}
	return records, nil
}

// Parse reads the pipe-delimited bulk file line by line. A record is emitted
// only for lines matching schemeCode|div1|div2|schemeName|nav|date whose NAV
// parses as a finite positive number; everything else (headers, fund-house
// banners, the N.A. token, zero or negative NAVs) is skipped silently. The
// file format is this source's contract, not the caller's concern.
func Parse(r io.Reader) ([]pricing.FundNavRecord, error) {
	var out []pricing.FundNavRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != 6 {
			continue
		}
		rawNAV := strings.TrimSpace(fields[4])
		if rawNAV == "" || rawNAV == notApplicable {
			continue
		}
		nav, err := decimal.NewFromString(rawNAV)
		if err != nil || nav.Sign() <= 0 {
			continue
		}
		rec := pricing.FundNavRecord{
			SchemeCode: strings.TrimSpace(fields[0]),
			SchemeName: strings.TrimSpace(fields[3]),
			NAV:        nav,
		}
		if rec.SchemeCode == "" {
			continue
		}
		if d, err := time.Parse(navDateLayout, strings.TrimSpace(fields[5])); err == nil {
			rec.AsOfDate = d
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading bulk file: %w", err)
	}
	return out, nil
}
