package cachekey

import (
	"crypto/sha1" //nolint:gosec // the downstream page cache keys on sha1.
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// RequestContext is the explicit request state a cache identifier is computed
// from. A fresh value is built for every derivation.
type RequestContext struct {
	URI        string
	Secure     bool
	VaryCookie string
	VaryData   map[string]any
	RunCode    string
	RunType    string
}

// Identifier computes the page-cache identifier for a request.
type Identifier interface {
	Value(req RequestContext) (string, error)
}

// marketingParams are query parameters the page cache ignores when keying.
// Entries ending in '*' match by prefix.
var marketingParams = []string{
	"gclid", "cx", "ie", "cof", "siteurl", "zanpid", "origin", "fbclid",
	"mc_*", "utm_*", "_bta_*",
}

// PageCacheIdentifier reproduces the full-page cache identifier:
// sha1 of the JSON encoding of [secure, uri, vary], extended with the store
// run code and run type when they are known.
type PageCacheIdentifier struct {
	StripMarketingParams bool
}

// Value implements Identifier.
func (p PageCacheIdentifier) Value(req RequestContext) (string, error) {
	uri := req.URI
	if p.StripMarketingParams {
		uri = stripMarketingParams(uri)
	}

	var vary any
	switch {
	case req.VaryCookie != "":
		vary = req.VaryCookie
	case len(req.VaryData) > 0:
		v, err := varyString(req.VaryData)
		if err != nil {
			return "", err
		}
		vary = v
	}

	var data any = []any{req.Secure, uri, vary}
	if req.RunCode != "" || req.RunType != "" {
		obj := object{
			{Key: "0", Value: req.Secure},
			{Key: "1", Value: uri},
			{Key: "2", Value: vary},
		}
		if req.RunCode != "" {
			obj = append(obj, member{Key: "store", Value: req.RunCode})
		}
		if req.RunType != "" {
			obj = append(obj, member{Key: "store_type", Value: req.RunType})
		}
		data = obj
	}

	encoded, err := encodePHPJSON(data)
	if err != nil {
		return "", fmt.Errorf("encode identifier data: %w", err)
	}
	return sha1Hex(encoded), nil
}

// varyString hashes the key-sorted vary data the way the HTTP context does.
func varyString(data map[string]any) (string, error) {
	encoded, err := encodePHPJSON(data)
	if err != nil {
		return "", fmt.Errorf("encode vary data: %w", err)
	}
	return sha1Hex(encoded), nil
}

func sha1Hex(b []byte) string {
	sum := sha1.Sum(b) //nolint:gosec // see import.
	return hex.EncodeToString(sum[:])
}

// stripMarketingParams removes tracking parameters from the query string while
// keeping the remaining parameters in their original order.
func stripMarketingParams(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	parts := strings.Split(u.RawQuery, "&")
	kept := parts[:0]
	for _, part := range parts {
		name := part
		if i := strings.IndexByte(part, '='); i >= 0 {
			name = part[:i]
		}
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if !isMarketingParam(name) {
			kept = append(kept, part)
		}
	}
	u.RawQuery = strings.Join(kept, "&")
	return u.String()
}

func isMarketingParam(name string) bool {
	for _, p := range marketingParams {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
			continue
		}
		if name == p {
			return true
		}
	}
	return false
}
