package parser

import "net/http"

const UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// CommonHeaders are sent with every request unless a parser overrides them.
func CommonHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", UserAgent)
	h.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	return h
}

// WithHeader returns a copy of headers with key set to value.
func WithHeader(headers http.Header, key string, value string) http.Header {
	h := headers.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(key, value)
	return h
}
