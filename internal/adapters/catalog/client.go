package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	pdfsPath          = "/api/pdfs"
	dictionaryPath    = "/api/dictionary/search"
	abbreviationsPath = "/api/abbreviations"
)

// Requester is satisfied by *gateway.Gateway.
type Requester interface {
	DoJSON(ctx context.Context, method string, path string, body any, out any) error
}

// Client reads the document catalog, dictionary and abbreviation services.
// Responses are returned as raw JSON.
type Client struct {
	PDFs          Requester
	Dictionary    Requester
	Abbreviations Requester
}

type PDFQuery struct {
	Page   int
	Limit  int
	Search string
}

func (q PDFQuery) encode() string {
	values := url.Values{}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if search := strings.TrimSpace(q.Search); search != "" {
		values.Set("search", search)
	}
	return values.Encode()
}

func (c Client) ListPDFs(ctx context.Context, query PDFQuery) (json.RawMessage, error) {
	if c.PDFs == nil {
		return nil, errors.New("pdf service is not configured")
	}
	return get(ctx, c.PDFs, withQuery(pdfsPath, query.encode()))
}

func (c Client) SearchDictionary(ctx context.Context, word string) (json.RawMessage, error) {
	if c.Dictionary == nil {
		return nil, errors.New("dictionary service is not configured")
	}
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, errors.New("search word is required")
	}
	return get(ctx, c.Dictionary, withQuery(dictionaryPath, url.Values{"q": {word}}.Encode()))
}

func (c Client) SearchAbbreviations(ctx context.Context, term string) (json.RawMessage, error) {
	if c.Abbreviations == nil {
		return nil, errors.New("abbreviation service is not configured")
	}
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("search term is required")
	}
	return get(ctx, c.Abbreviations, withQuery(abbreviationsPath, url.Values{"search": {term}}.Encode()))
}

func get(ctx context.Context, requester Requester, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := requester.DoJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func withQuery(path string, query string) string {
	if query == "" {
		return path
	}
	return path + "?" + query
}
