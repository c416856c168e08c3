package courier

import (
	"net/http"
	"strings"
)

// CommonHeaders is the MethodHeaders bucket applied to every method.
const CommonHeaders = "common"

// FlattenHeaders folds cfg.MethodHeaders into cfg.Header for method. The
// common bucket is applied first, then the bucket for method, then the flat
// per-request headers. Header names are case-insensitive and later layers
// win. MethodHeaders is cleared afterwards.
func FlattenHeaders(cfg *Config, method string) {
	flat := make(http.Header)
	overlay(flat, headerBucket(cfg.MethodHeaders, CommonHeaders))
	overlay(flat, headerBucket(cfg.MethodHeaders, method))
	overlay(flat, cfg.Header)
	cfg.Header = flat
	cfg.MethodHeaders = nil
}

func headerBucket(groups map[string]http.Header, name string) http.Header {
	if h, ok := groups[name]; ok {
		return h
	}
	for k, h := range groups {
		if strings.EqualFold(k, name) {
			return h
		}
	}
	return nil
}

func overlay(dst, src http.Header) {
	for k, vv := range src {
		dst.Del(k)
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
