package codec

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/getmockd/mockserver/pkg/mock"
)

// FromHTTPRequest converts a net/http request with an already assembled
// body into the canonical request.
func FromHTTPRequest(r *http.Request, body []byte) *mock.Request {
	return &mock.Request{
		Method:     strings.ToUpper(r.Method),
		Path:       r.URL.Path,
		Query:      r.URL.Query(),
		Headers:    mock.FromHTTP(r.Header),
		Body:       body,
		Host:       r.Host,
		RemoteAddr: r.RemoteAddr,
		Secure:     r.TLS != nil,
	}
}

// WriteResponse writes resp to w. Content-Length is always set from the body
// so the exchange is self-delimiting even without keep-alive.
func WriteResponse(w http.ResponseWriter, resp *mock.Response) error {
	h := w.Header()
	for _, hdr := range resp.Headers {
		if strings.EqualFold(hdr.Name, "Content-Length") || strings.EqualFold(hdr.Name, "Transfer-Encoding") {
			continue
		}
		for _, v := range hdr.Values {
			h.Add(hdr.Name, v)
		}
	}
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))

	w.WriteHeader(resp.StatusCode)
	if len(resp.Body) == 0 {
		return nil
	}
	_, err := w.Write(resp.Body)
	return err
}
