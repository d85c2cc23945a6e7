package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"time"
)

// HTTPGetWithAuth performs a GET request, optionally authenticated with basic auth or a bearer token
func HTTPGetWithAuth(ctx context.Context, url, authName, authPswd, authToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPGet: %w", err)
	}
	resp, err := doWithAuth(req, authName, authPswd, authToken)
	if err != nil {
		return nil, fmt.Errorf("HTTPGet: %w", err)
	}
	defer resp.Body.Close()
	if UnauthorizedStatusCode(resp.StatusCode) {
		return nil, ErrUnauthorized{Provider: req.URL.Host}
	}
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		err = fmt.Errorf("HTTPGet: %s (%s)", resp.Status, body)
		if TemporaryStatusCode(resp.StatusCode) {
			return nil, MakeTemporary(err)
		}
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

// HTTPPostWithAuth posts a json body, optionally authenticated with basic auth or a bearer token
func HTTPPostWithAuth(ctx context.Context, url string, body io.Reader, authName, authPswd, authToken string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPPost: %w", err)
	}
	req.Header.Add("Content-Type", "application/json")
	return doWithAuth(req, authName, authPswd, authToken)
}

func doWithAuth(req *http.Request, authName, authPswd, authToken string) (*http.Response, error) {
	if authName != "" {
		req.SetBasicAuth(authName, authPswd)
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := http.Client{}
	return client.Do(req)
}

// GetBodyRetry: simple GET with N retries in case of temporary errors
func GetBodyRetry(url string, nbRetries int) ([]byte, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	return GetBodyRetryReq(req, nbRetries)
}

// GetBodyRetryReq: simple GET with N retries in case of temporary errors
func GetBodyRetryReq(req *http.Request, nbRetries int) ([]byte, error) {
	var e *neturl.Error
	var body []byte
	var err error
	var resp *http.Response

	client := &http.Client{}
	for i := range nbRetries + 1 {
		time.Sleep(time.Duration((1<<i)-1) * time.Second) // Exponential backoff, starting at 0
		resp, err = client.Do(req)
		if err != nil {
			if !errors.As(err, &e) || !e.Temporary() {
				return nil, err
			}
			continue
		}
		defer resp.Body.Close()
		if resp.StatusCode != 200 {
			body, _ = io.ReadAll(resp.Body)
			err = fmt.Errorf("%s: %v", resp.Status, body)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, err
			}
			continue
		}
		if body, err = io.ReadAll(resp.Body); err == nil {
			return body, nil
		}
	}
	return nil, err
}

// PageQueryParam describes one catalog page to fetch and which rows of the fetched
// page belong to the client's page
type PageQueryParam struct {
	Limit, Page                       int
	FirstRowToSelect, LastRowToSelect int
}

// ComputePagesToQuery maps the client pagination (page, limit) onto the catalog
// pagination (catalogLimit rows per page, 0-based pages)
func ComputePagesToQuery(page, limit, catalogLimit int) []PageQueryParam {
	if limit <= 0 || catalogLimit <= 0 {
		return nil
	}
	if limit < catalogLimit {
		catalogLimit = limit
	}
	firstRow := page * limit
	lastRow := firstRow + limit - 1

	var params []PageQueryParam
	for catalogPage := firstRow / catalogLimit; catalogPage*catalogLimit <= lastRow; catalogPage++ {
		pageFirstRow := catalogPage * catalogLimit
		param := PageQueryParam{Limit: catalogLimit, Page: catalogPage}
		if firstRow > pageFirstRow {
			param.FirstRowToSelect = firstRow - pageFirstRow
		}
		param.LastRowToSelect = catalogLimit - 1
		if lastRow < pageFirstRow+catalogLimit-1 {
			param.LastRowToSelect = lastRow - pageFirstRow
		}
		params = append(params, param)
	}
	return params
}

// QueryGetResult selects the rows of the fetched page that belong to the client's page
func QueryGetResult[T any](param *PageQueryParam, hits []T) []T {
	if param.FirstRowToSelect >= len(hits) {
		return nil
	}
	last := param.LastRowToSelect
	if last >= len(hits) {
		last = len(hits) - 1
	}
	return hits[param.FirstRowToSelect : last+1]
}
