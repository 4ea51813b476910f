// internal/clients/catalog_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"storefront/internal/assets"
	"storefront/internal/catalog"
)

// CatalogClient talks to the catalog HTTP API. Client errors are mapped back
// onto catalog.ErrValidation, catalog.ErrNotFound and catalog.ErrConflict.
// The server does not say which store failed on a 5xx, so those come back as
// a *StatusError.
type CatalogClient struct {
	baseURL string
	http    *http.Client
}

func NewCatalogClient(baseURL string, httpClient *http.Client) *CatalogClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &CatalogClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *CatalogClient) CreateItem(ctx context.Context, fields catalog.Fields, upload *catalog.Upload) (catalog.Item, error) {
	var item catalog.Item
	err := c.sendForm(ctx, http.MethodPost, c.itemsURL(""), fields, upload, http.StatusCreated, &item)
	return item, err
}

func (c *CatalogClient) GetItem(ctx context.Context, id string) (catalog.Item, error) {
	var item catalog.Item
	err := c.do(ctx, http.MethodGet, c.itemsURL(id), nil, "", http.StatusOK, &item)
	return item, err
}

func (c *CatalogClient) ListItems(ctx context.Context) ([]catalog.Item, error) {
	var items []catalog.Item
	err := c.do(ctx, http.MethodGet, c.itemsURL(""), nil, "", http.StatusOK, &items)
	return items, err
}

func (c *CatalogClient) UpdateItem(ctx context.Context, id string, fields catalog.Fields, upload *catalog.Upload) (catalog.Item, error) {
	var item catalog.Item
	err := c.sendForm(ctx, http.MethodPut, c.itemsURL(id), fields, upload, http.StatusOK, &item)
	return item, err
}

func (c *CatalogClient) DeleteItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, c.itemsURL(id), nil, "", http.StatusNoContent, nil)
}

// FetchImage downloads the asset an item references.
func (c *CatalogClient) FetchImage(ctx context.Context, ref assets.Ref) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.itemsURL("uploads/"+url.PathEscape(ref.String())), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *CatalogClient) itemsURL(suffix string) string {
	if suffix == "" {
		return c.baseURL + "/api/books"
	}
	return c.baseURL + "/api/books/" + suffix
}

func (c *CatalogClient) sendForm(ctx context.Context, method, target string, fields catalog.Fields, upload *catalog.Upload, want int, out any) error {
	body, contentType, err := encodeForm(fields, upload)
	if err != nil {
		return err
	}
	return c.do(ctx, method, target, body, contentType, want, out)
}

func (c *CatalogClient) do(ctx context.Context, method, target string, body io.Reader, contentType string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func encodeForm(fields catalog.Fields, upload *catalog.Upload) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	values := [][2]string{
		{"title", fields.Title},
		{"author", fields.Author},
		{"price", fields.Price.String()},
		{"description", fields.Description},
		{"language", fields.Language},
		{"category", fields.Category},
		{"publisher", fields.Publisher},
	}
	for _, kv := range values {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	if upload != nil && len(upload.Data) > 0 {
		part, err := mw.CreateFormFile("image", upload.Filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(upload.Data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf, mw.FormDataContentType(), nil
}

// decodeError turns an error response into an error matching the catalog
// error kind the status code stands for.
func decodeError(resp *http.Response) error {
	var body struct {
		Error    string            `json:"error"`
		Problems []catalog.Problem `json:"problems"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body)
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		if len(body.Problems) == 0 {
			return fmt.Errorf("%s: %w", body.Error, catalog.ErrValidation)
		}
		return &catalog.ValidationError{Problems: body.Problems}
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", body.Error, catalog.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s: %w", catalog.ErrPersistence, body.Error, catalog.ErrConflict)
	default:
		return &StatusError{Code: resp.StatusCode, Message: body.Error}
	}
}

// StatusError is an error response with no catalog error kind.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.Code, e.Message)
}
