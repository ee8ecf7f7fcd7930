package store

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

	"github.com/pkg/errors"
	"github.com/seednote/seed-worker/internal/failure"
	"github.com/seednote/seed-worker/internal/store/model"
	"github.com/seednote/seed-worker/pkg/requestid"
	"go.uber.org/zap"
)

const (
	preferMinimal        = "return=minimal"
	preferRepresentation = "return=representation"
)

// RestConfig holds what is needed to reach the seeds collection over PostgREST.
type RestConfig struct {
	// URL is the REST base, e.g. https://<project>.supabase.co/rest/v1.
	URL string
	// APIKey is sent both as the apikey header and as a bearer token.
	APIKey string
	Table  string
	// Timeout bounds a single call. Zero means no timeout.
	Timeout time.Duration
}

type RestSeedStore struct {
	cfg        RestConfig
	httpClient *http.Client
}

// Make sure we conform to Seed interface
var _ Seed = (*RestSeedStore)(nil)

func NewRestSeedStore(cfg RestConfig, httpClient *http.Client) *RestSeedStore {
	if cfg.Table == "" {
		cfg.Table = model.Seed{}.TableName()
	}
	return &RestSeedStore{cfg: cfg, httpClient: httpClient}
}

func (s *RestSeedStore) FetchPending(ctx context.Context) (*model.Seed, error) {
	const op = "fetch pending seed"

	query := url.Values{}
	query.Set("status", "eq."+string(model.SeedStatusPending))
	query.Set("limit", "1")

	body, err := s.do(ctx, op, http.MethodGet, query, nil, "")
	if err != nil {
		return nil, err
	}

	var seeds []model.Seed
	if err := json.Unmarshal(body, &seeds); err != nil {
		return nil, failure.NewErrDecode(op, err)
	}
	if len(seeds) == 0 {
		return nil, nil
	}
	return &seeds[0], nil
}

// Claim patches the seed to processing only while it is still pending. The
// updated rows are requested back so a lost race shows up as an empty list.
func (s *RestSeedStore) Claim(ctx context.Context, id string) (bool, error) {
	const op = "claim seed"

	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("status", "eq."+string(model.SeedStatusPending))

	body, err := s.do(ctx, op, http.MethodPatch, query, model.SeedUpdate{Status: model.SeedStatusProcessing}, preferRepresentation)
	if err != nil {
		return false, err
	}

	// some proxies drop the Prefer header and answer 204
	if len(bytes.TrimSpace(body)) == 0 {
		return true, nil
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return false, failure.NewErrDecode(op, err)
	}
	return len(rows) > 0, nil
}

func (s *RestSeedStore) Update(ctx context.Context, id string, update model.SeedUpdate) error {
	const op = "update seed"

	if len(update.Fields()) == 0 {
		return nil
	}

	query := url.Values{}
	query.Set("id", "eq."+id)

	_, err := s.do(ctx, op, http.MethodPatch, query, update, preferMinimal)
	return err
}

func (s *RestSeedStore) do(ctx context.Context, op, method string, query url.Values, payload any, prefer string) ([]byte, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: failed to marshal request", op)
		}
		reqBody = bytes.NewReader(data)
	}

	endpoint := fmt.Sprintf("%s/%s?%s", strings.TrimRight(s.cfg.URL, "/"), s.cfg.Table, query.Encode())
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, failure.NewErrTransport(op, err)
	}

	req.Header.Set("apikey", s.cfg.APIKey)
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	requestid.SetHeader(ctx, req)

	zap.S().Named("store").Debugw("sending request", "op", op, "method", method, "query", query.Encode())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, failure.NewErrTransport(op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.NewErrTransport(op, errors.Wrap(err, "failed to read response body"))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failure.NewErrUnexpectedStatus(op, resp.StatusCode, body)
	}

	return body, nil
}
