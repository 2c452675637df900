package localuser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Fetcher polls the record's code endpoint and merges newly published codes
// into the untried set. Codes already tried stay retired: the fetcher never
// resurrects them.
type Fetcher struct {
	store    *Store
	http     *http.Client
	interval time.Duration
	log      zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration)
}

// NewFetcher creates a fetcher polling every interval.
func NewFetcher(st *Store, interval time.Duration, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		store:    st,
		http:     &http.Client{Timeout: 15 * time.Second},
		interval: interval,
		log:      log,
		sleep:    sleepCtx,
	}
}

// Run polls until ctx is cancelled.
func (f *Fetcher) Run(ctx context.Context) {
	for {
		if err := f.FetchOnce(ctx); err != nil {
			f.log.Warn().Err(err).Msg("code fetch failed")
		}
		f.sleep(ctx, f.interval)
		if ctx.Err() != nil {
			return
		}
	}
}

// codesPayload covers both shapes the code endpoint is known to serve: a flat
// code list, and the grouped sessions form where each code is an object.
type codesPayload struct {
	Codes    []json.RawMessage `json:"codes"`
	Sessions []struct {
		Codes []struct {
			CheckinCode string `json:"checkinCode"`
		} `json:"codes"`
	} `json:"sessions"`
}

// FetchOnce fetches the code endpoint once and merges the result.
func (f *Fetcher) FetchOnce(ctx context.Context) error {
	rec := f.store.Record()
	if rec.CodesURL == "" {
		return fmt.Errorf("local record has no codes url")
	}
	url := rec.CodesURL + rec.CodesURLSuffix

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("code endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	codes, err := parseCodes(body)
	if err != nil {
		return err
	}
	return f.merge(codes)
}

func parseCodes(body []byte) ([]string, error) {
	var payload codesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse code payload: %w", err)
	}

	var out []string
	for _, raw := range payload.Codes {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			CheckinCode string `json:"checkinCode"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.CheckinCode != "" {
			out = append(out, obj.CheckinCode)
		}
	}
	for _, sess := range payload.Sessions {
		for _, c := range sess.Codes {
			if c.CheckinCode != "" {
				out = append(out, c.CheckinCode)
			}
		}
	}
	return out, nil
}

func (f *Fetcher) merge(codes []string) error {
	var added int
	err := f.store.Update(func(rec *Record) {
		known := rec.KnownCodes()
		for _, c := range codes {
			if c == "" || known[c] {
				continue
			}
			rec.AvailableUntriedCodes = append(rec.AvailableUntriedCodes, c)
			known[c] = true
			added++
		}
	})
	if err != nil {
		return err
	}
	if added > 0 {
		f.log.Info().Int("added", added).Msg("new codes fetched")
		f.store.AppendLog(fmt.Sprintf("Fetched %d new code(s)", added), LogInfo)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
