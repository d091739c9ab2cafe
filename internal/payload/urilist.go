package payload

import (
	"net/url"
	"path/filepath"
	"strings"
)

// URIList encodes local paths as a text/uri-list body: one percent-encoded
// file URI per line, each terminated by CRLF.
func URIList(paths ...string) []byte {
	var b strings.Builder
	for _, p := range paths {
		u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
		b.WriteString(u.String())
		b.WriteString("\r\n")
	}
	return []byte(b.String())
}

// ParseURIList decodes a text/uri-list body into paths of file URIs.
// Comment lines (starting with '#') and non-file URIs are skipped.
func ParseURIList(body []byte) ([]string, error) {
	var out []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil {
			return nil, err
		}
		if u.Scheme != "file" {
			continue
		}
		out = append(out, u.Path)
	}
	return out, nil
}
