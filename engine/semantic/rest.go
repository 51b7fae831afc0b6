package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fuelme/vendorprobe/engine/domain"
)

const restProvider = "qdrant"

// RESTClient searches a Qdrant collection over the HTTP API (port 6333).
type RESTClient struct {
	client     *resty.Client
	collection string
}

// NewREST creates a RESTClient. A nil httpClient gets an otel-instrumented
// default.
func NewREST(baseURL, collection string, httpClient *http.Client) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	c := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetPathParam("collection", collection)
	return &RESTClient{client: c, collection: collection}
}

type searchReq struct {
	Vector []float64 `json:"vector"`
	Limit  int       `json:"limit"`
}

// Search performs k-NN similarity search.
func (r *RESTClient) Search(ctx context.Context, vector []float64, limit int) ([]Hit, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(searchReq{Vector: vector, Limit: effectiveLimit(limit)}).
		Post("/collections/{collection}/points/search")
	if err != nil {
		return nil, fmt.Errorf("semantic: search %s: %w", r.collection, err)
	}
	if !resp.IsSuccess() {
		return nil, domain.NewProviderError(restProvider, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	var out SearchResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("semantic: decode search %s: %w", r.collection, err)
	}
	return out.Result, nil
}

// CollectionExists reports whether the collection is present. A 404 is a
// clean "no"; other failures are errors.
func (r *RESTClient) CollectionExists(ctx context.Context) (bool, error) {
	resp, err := r.client.R().SetContext(ctx).Get("/collections/{collection}")
	if err != nil {
		return false, fmt.Errorf("semantic: get collection %s: %w", r.collection, err)
	}
	switch {
	case resp.IsSuccess():
		return true, nil
	case resp.StatusCode() == http.StatusNotFound:
		return false, nil
	default:
		return false, domain.NewProviderError(restProvider, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
}
