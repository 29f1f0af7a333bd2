/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/acronis/go-apiorch/log"
	"github.com/acronis/go-apiorch/orchestrator"
	"github.com/acronis/go-apiorch/restapi"
)

// IDParam is the request parameter holding the identifier of a single resource.
const IDParam = "id"

// Transport performs orchestrator requests against a REST backend:
//
//	get     GET    {base}/{resource}/{id}?{params}
//	list    GET    {base}/{resource}?{params}
//	filter  GET    {base}/{resource}?{params}
//	create  POST   {base}/{resource}        body: params
//	update  PATCH  {base}/{resource}/{id}   body: params without id
//	delete  DELETE {base}/{resource}/{id}?{params}
//
// Scalar query values are formatted as strings, slices become repeated keys
// and nested objects are sent as JSON.
type Transport struct {
	client  *http.Client
	baseURL *url.URL
	logger  log.FieldLogger
	now     func() time.Time
}

var _ orchestrator.Transport = (*Transport)(nil)

// NewTransport creates a Transport with an HTTP client built by NewWithOpts.
func NewTransport(cfg *Config, opts Opts) (*Transport, error) {
	baseURL, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}
	client, err := NewWithOpts(cfg, opts)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	return &Transport{client: client, baseURL: baseURL, logger: logger, now: time.Now}, nil
}

// Execute implements orchestrator.Transport.
func (t *Transport) Execute(ctx context.Context, req orchestrator.Request) (any, error) {
	ctx = NewContextWithRequestType(ctx, string(req.Kind)+" "+req.Resource)
	httpReq, err := t.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	var result any
	if err = restapi.DoRequestAndUnmarshalJSON(t.client, httpReq, &result, t.logger); err != nil {
		return nil, ClassifyError(ctx, err, t.now())
	}
	return result, nil
}

func (t *Transport) newHTTPRequest(ctx context.Context, req orchestrator.Request) (*http.Request, error) {
	params := make(map[string]any, len(req.Params))
	for k, v := range req.Params {
		params[k] = v
	}

	needsID := req.Kind == orchestrator.KindGet || req.Kind == orchestrator.KindUpdate || req.Kind == orchestrator.KindDelete
	var id string
	if needsID {
		rawID, ok := params[IDParam]
		if !ok {
			return nil, fmt.Errorf("%s %s: parameter %q is required", req.Kind, req.Resource, IDParam)
		}
		var err error
		if id, err = cast.ToStringE(rawID); err != nil || id == "" {
			return nil, fmt.Errorf("%s %s: parameter %q must be a non-empty scalar", req.Kind, req.Resource, IDParam)
		}
		delete(params, IDParam)
	}

	u := t.baseURL.JoinPath(req.Resource)
	if needsID {
		u = u.JoinPath(id)
	}

	switch req.Kind {
	case orchestrator.KindGet, orchestrator.KindList, orchestrator.KindFilter, orchestrator.KindDelete:
		query, err := encodeQuery(params)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Kind, req.Resource, err)
		}
		u.RawQuery = query
		method := http.MethodGet
		if req.Kind == orchestrator.KindDelete {
			method = http.MethodDelete
		}
		return http.NewRequestWithContext(ctx, method, u.String(), nil)
	case orchestrator.KindCreate:
		return restapi.NewJSONRequest(ctx, http.MethodPost, u.String(), params)
	case orchestrator.KindUpdate:
		return restapi.NewJSONRequest(ctx, http.MethodPatch, u.String(), params)
	default:
		return nil, fmt.Errorf("unsupported request kind %q", req.Kind)
	}
}

func encodeQuery(params map[string]any) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		switch v := params[k].(type) {
		case nil:
		case []any:
			for _, item := range v {
				s, err := queryValue(item)
				if err != nil {
					return "", fmt.Errorf("encode parameter %q: %w", k, err)
				}
				values.Add(k, s)
			}
		case []string:
			for _, item := range v {
				values.Add(k, item)
			}
		default:
			s, err := queryValue(v)
			if err != nil {
				return "", fmt.Errorf("encode parameter %q: %w", k, err)
			}
			values.Set(k, s)
		}
	}
	return values.Encode(), nil
}

func queryValue(v any) (string, error) {
	if s, err := cast.ToStringE(v); err == nil {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
