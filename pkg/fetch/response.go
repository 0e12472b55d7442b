package fetch

import (
	"mime"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

// Response is a fetched HTTP response, fully read into memory so it can live
// in the cache and be handed to scripts.
type Response struct {
	URL    string
	Status int
	Header http.Header
	Body   []byte
}

// ContentType returns the Content-Type header value.
func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

// MediaType returns the content type without parameters, lowercased.
func (r *Response) MediaType() string {
	essence, _, err := mime.ParseMediaType(r.ContentType())
	if err != nil {
		return strings.ToLower(strings.TrimSpace(r.ContentType()))
	}
	return essence
}

// Text decodes the body using the charset named in the Content-Type,
// falling back to UTF-8 with replacement runes.
func (r *Response) Text() string {
	_, params, err := mime.ParseMediaType(r.ContentType())
	if err == nil {
		if cs := params["charset"]; cs != "" && !strings.EqualFold(cs, "utf-8") {
			if enc, err := htmlindex.Get(cs); err == nil {
				if out, err := enc.NewDecoder().Bytes(r.Body); err == nil {
					return string(out)
				}
			}
		}
	}
	out, _ := unicode.UTF8.NewDecoder().Bytes(r.Body)
	return string(out)
}

func (r *Response) size() int64 {
	return int64(len(r.Body))
}
