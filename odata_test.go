package odata_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	odata "github.com/objectql/odata"
	"github.com/objectql/odata/provider"
	"github.com/objectql/odata/providers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *odata.Service {
	t.Helper()

	registry := memory.NewRegistry(
		provider.ObjectMetadata{
			Name: "products",
			Fields: []provider.FieldMetadata{
				{Name: "name", Type: provider.FieldTypeText, Required: true},
				{Name: "price", Type: provider.FieldTypeCurrency},
				{Name: "category", Type: provider.FieldTypeLookup, RelatedObject: "categories"},
			},
		},
		provider.ObjectMetadata{
			Name: "categories",
			Fields: []provider.FieldMetadata{
				{Name: "name", Type: provider.FieldTypeText},
			},
		},
	)

	store := memory.NewStore(registry)
	require.NoError(t, store.Seed("categories",
		provider.Record{"id": "c1", "name": "Tools"},
		provider.Record{"id": "c2", "name": "Toys"},
	))
	require.NoError(t, store.Seed("products",
		provider.Record{"id": "p1", "name": "Hammer", "price": 15.0, "category": "c1"},
		provider.Record{"id": "p2", "name": "Kite", "price": 7.5, "category": "c2"},
		provider.Record{"id": "p3", "name": "Drill", "price": 89.0, "category": "c1"},
	))

	cfg := odata.DefaultConfig()
	cfg.BasePath = "/odata"
	cfg.EnableSearch = true
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	service, err := odata.NewService(store, registry, cfg)
	require.NoError(t, err)
	return service
}

func doRequest(service *odata.Service, method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	service.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestServiceDocument(t *testing.T) {
	service := newTestService(t)

	rec := doRequest(service, http.MethodGet, "/odata/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"4.0"}, rec.Header()["OData-Version"])

	body := jsonBody(t, rec)
	assert.Equal(t, "/odata/$metadata", body["@odata.context"])
	value := body["value"].([]interface{})
	require.Len(t, value, 2)
	first := value[0].(map[string]interface{})
	assert.Equal(t, "categories", first["name"])
	assert.Equal(t, "EntitySet", first["kind"])
}

func TestMetadataDocument(t *testing.T) {
	service := newTestService(t)

	rec := doRequest(service, http.MethodGet, "/odata/$metadata", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/xml", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, `<EntityType Name="products">`)
	assert.Contains(t, body, `<PropertyRef Name="id"/>`)
	assert.Contains(t, body, `<NavigationProperty Name="category"`)
	assert.Contains(t, body, `<EntitySet Name="categories"`)
}

func TestCollectionFilterOrderAndCount(t *testing.T) {
	service := newTestService(t)

	rec := doRequest(service, http.MethodGet,
		"/odata/products?$filter=price%20gt%2010&$orderby=price%20desc&$count=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := jsonBody(t, rec)
	assert.Equal(t, "/odata/$metadata#products", body["@odata.context"])
	assert.Equal(t, float64(2), body["@odata.count"])

	value := body["value"].([]interface{})
	require.Len(t, value, 2)
	assert.Equal(t, "Drill", value[0].(map[string]interface{})["name"])
	assert.Equal(t, "Hammer", value[1].(map[string]interface{})["name"])
}

func TestCollectionSearch(t *testing.T) {
	service := newTestService(t)

	rec := doRequest(service, http.MethodGet, "/odata/products?$search=kite", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	value := jsonBody(t, rec)["value"].([]interface{})
	require.Len(t, value, 1)
	assert.Equal(t, "Kite", value[0].(map[string]interface{})["name"])
}

func TestCollectionExpand(t *testing.T) {
	service := newTestService(t)

	rec := doRequest(service, http.MethodGet, "/odata/products?$expand=category&$filter=name%20eq%20%27Hammer%27", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	value := jsonBody(t, rec)["value"].([]interface{})
	require.Len(t, value, 1)
	category, ok := value[0].(map[string]interface{})["category"].(map[string]interface{})
	require.True(t, ok, "category should be expanded in place")
	assert.Equal(t, "Tools", category["name"])
}

func TestCountEndpoint(t *testing.T) {
	service := newTestService(t)

	rec := doRequest(service, http.MethodGet, "/odata/products/$count?$filter=price%20lt%2020", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2", rec.Body.String())
}

func TestEntityLifecycleWithETags(t *testing.T) {
	service := newTestService(t)

	// Create.
	created := doRequest(service, http.MethodPost, "/odata/products",
		strings.NewReader(`{"name":"Saw","price":25}`), nil)
	require.Equal(t, http.StatusCreated, created.Code)
	location := created.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/odata/products('"), "Location: %s", location)
	id := jsonBody(t, created)["id"].(string)

	// Read with ETag.
	read := doRequest(service, http.MethodGet, fmt.Sprintf("/odata/products('%s')", id), nil, nil)
	require.Equal(t, http.StatusOK, read.Code)
	tag := read.Header().Get("ETag")
	require.NotEmpty(t, tag)

	// Conditional read answers 304 with an empty body.
	notModified := doRequest(service, http.MethodGet, fmt.Sprintf("/odata/products('%s')", id), nil,
		map[string]string{"If-None-Match": tag})
	require.Equal(t, http.StatusNotModified, notModified.Code)
	assert.Zero(t, notModified.Body.Len())

	// Update with a stale tag fails and leaves the entity untouched.
	stale := doRequest(service, http.MethodPatch, fmt.Sprintf("/odata/products('%s')", id),
		strings.NewReader(`{"price":30}`),
		map[string]string{"If-Match": `W/"0000000000000000"`})
	require.Equal(t, http.StatusPreconditionFailed, stale.Code)

	unchanged := doRequest(service, http.MethodGet, fmt.Sprintf("/odata/products('%s')", id), nil, nil)
	assert.Equal(t, float64(25), jsonBody(t, unchanged)["price"])

	// Update with the current tag succeeds.
	updated := doRequest(service, http.MethodPatch, fmt.Sprintf("/odata/products('%s')", id),
		strings.NewReader(`{"price":30}`),
		map[string]string{"If-Match": tag})
	require.Equal(t, http.StatusOK, updated.Code)
	assert.NotEmpty(t, updated.Header().Get("ETag"))

	// Delete.
	deleted := doRequest(service, http.MethodDelete, fmt.Sprintf("/odata/products('%s')", id), nil, nil)
	require.Equal(t, http.StatusNoContent, deleted.Code)

	gone := doRequest(service, http.MethodGet, fmt.Sprintf("/odata/products('%s')", id), nil, nil)
	assert.Equal(t, http.StatusNotFound, gone.Code)
}

func TestRequestOutsideBasePath(t *testing.T) {
	service := newTestService(t)

	rec := doRequest(service, http.MethodGet, "/other/products", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownEntitySet(t *testing.T) {
	service := newTestService(t)

	rec := doRequest(service, http.MethodGet, "/odata/widgets", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBatchThroughService(t *testing.T) {
	service := newTestService(t)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, target := range []string{"/odata/products('p1')", "/odata/products('p2')"} {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/http")
		header.Set("Content-Transfer-Encoding", "binary")
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		fmt.Fprintf(part, "GET %s HTTP/1.1\r\n\r\n", target)
	}
	require.NoError(t, writer.Close())

	rec := doRequest(service, http.MethodPost, "/odata/$batch", &body,
		map[string]string{"Content-Type": "multipart/mixed; boundary=" + writer.Boundary()})
	require.Equal(t, http.StatusOK, rec.Code)

	responseBody := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "multipart/mixed")
	assert.Contains(t, responseBody, "Hammer")
	assert.Contains(t, responseBody, "Kite")
	// Responses come back in request order.
	assert.Less(t, strings.Index(responseBody, "Hammer"), strings.Index(responseBody, "Kite"))
}

func TestBatchDisabled(t *testing.T) {
	registry := memory.NewRegistry(provider.ObjectMetadata{Name: "products"})
	store := memory.NewStore(registry)

	cfg := odata.DefaultConfig()
	cfg.EnableBatch = false
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	service, err := odata.NewService(store, registry, cfg)
	require.NoError(t, err)

	rec := doRequest(service, http.MethodPost, "/$batch", strings.NewReader(""), nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestNewServiceRequiresStoreAndRegistry(t *testing.T) {
	registry := memory.NewRegistry()

	_, err := odata.NewService(nil, registry, odata.DefaultConfig())
	assert.Error(t, err)

	_, err = odata.NewService(memory.NewStore(registry), nil, odata.DefaultConfig())
	assert.Error(t, err)
}

func TestConfigIsCopiedAtConstruction(t *testing.T) {
	registry := memory.NewRegistry(provider.ObjectMetadata{Name: "products"})
	store := memory.NewStore(registry)

	cfg := odata.DefaultConfig()
	cfg.BasePath = "/v1"
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	service, err := odata.NewService(store, registry, cfg)
	require.NoError(t, err)

	// Mutating the caller's copy after construction has no effect.
	cfg.BasePath = "/changed"
	assert.Equal(t, "/v1", service.Config().BasePath)

	rec := doRequest(service, http.MethodGet, "/v1/", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
