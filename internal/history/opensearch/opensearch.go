package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/vmixpanel/internal/history"
)

// Rollover splits the audit trail into one index per period, named after the
// event time: "<index>-2006.01.02" for daily, "<index>-2006.01" for monthly.
type Rollover string

const (
	RolloverNone    Rollover = ""
	RolloverDaily   Rollover = "daily"
	RolloverMonthly Rollover = "monthly"
)

type Options struct {
	BaseURL  string
	Index    string
	Rollover Rollover
	Username string
	Password string
	Timeout  time.Duration
}

// Sink indexes write events into OpenSearch or Elasticsearch. Each event is
// created under its own ID, so a resent event is stored once.
type Sink struct {
	client   *http.Client
	baseURL  string
	index    string
	rollover Rollover
	user     string
	pass     string
}

func New(opts Options) (*Sink, error) {
	switch opts.Rollover {
	case RolloverNone, RolloverDaily, RolloverMonthly:
	default:
		return nil, fmt.Errorf("opensearch: unknown rollover %q", opts.Rollover)
	}
	if opts.Index == "" {
		return nil, fmt.Errorf("opensearch: index required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sink{
		client:   &http.Client{Timeout: timeout},
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		index:    opts.Index,
		rollover: opts.Rollover,
		user:     opts.Username,
		pass:     opts.Password,
	}, nil
}

// IndexFor returns the index an event occurring at t is written to.
func (s *Sink) IndexFor(t time.Time) string {
	t = t.UTC()
	switch s.rollover {
	case RolloverDaily:
		return s.index + "-" + t.Format("2006.01.02")
	case RolloverMonthly:
		return s.index + "-" + t.Format("2006.01")
	}
	return s.index
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/%s/_create/%s", s.baseURL, s.IndexFor(e.OccurredAt), url.PathEscape(e.ID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.user != "" {
		req.SetBasicAuth(s.user, s.pass)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	// 409: an event with this ID is already indexed.
	if resp.StatusCode < 300 || resp.StatusCode == http.StatusConflict {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("opensearch sink: %s %s: status %d: %s", e.Resource, e.ID, resp.StatusCode, bytes.TrimSpace(msg))
}
