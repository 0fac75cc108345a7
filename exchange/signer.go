package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Access marks whether an endpoint needs credentials.
type Access int

const (
	Public Access = iota
	Private
)

// Call is an unsigned request: an endpoint of the catalog plus parameters.
// Path may contain {param} placeholders taken from Params.
type Call struct {
	Access Access
	Method string
	Path   string
	Params url.Values
	// Weight is charged against the rate limiter; zero counts as one.
	Weight int
}

// Signer turns a Call into a transport Request following one vendor's
// authentication scheme.
type Signer interface {
	Sign(ctx context.Context, call Call) (Request, error)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(ctx context.Context, call Call) (Request, error)

func (f SignerFunc) Sign(ctx context.Context, call Call) (Request, error) { return f(ctx, call) }

// ImplodePath substitutes {name} placeholders in path from params and
// returns the path plus the params that were not consumed.
func ImplodePath(path string, params url.Values) (string, url.Values) {
	rest := url.Values{}
	for k, v := range params {
		placeholder := "{" + k + "}"
		if strings.Contains(path, placeholder) && len(v) > 0 {
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(v[0]))
			continue
		}
		rest[k] = append([]string(nil), v...)
	}
	return path, rest
}

// Encode is url.Values.Encode with keys sorted and repeated keys emitted
// once per value, e.g. "markets=KRW-BTC&markets=KRW-ETH".
func Encode(params url.Values) string {
	return params.Encode()
}

// JSONBody serialises params as a JSON object. Keys with several values
// become arrays; single values stay scalars.
func JSONBody(params url.Values) ([]byte, error) {
	if len(params) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	obj := make(map[string]any, len(params))
	for _, k := range keys {
		v := params[k]
		switch len(v) {
		case 0:
		case 1:
			obj[k] = v[0]
		default:
			obj[k] = v
		}
	}
	body, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode body: %w", err)
	}
	return body, nil
}

func mac(h func() hash.Hash, secret, payload string) []byte {
	m := hmac.New(h, []byte(secret))
	m.Write([]byte(payload))
	return m.Sum(nil)
}

// HMACSHA256Hex signs payload with secret.
func HMACSHA256Hex(secret, payload string) string {
	return hex.EncodeToString(mac(sha256.New, secret, payload))
}

// HMACSHA256Base64 signs payload with secret.
func HMACSHA256Base64(secret, payload string) string {
	return base64.StdEncoding.EncodeToString(mac(sha256.New, secret, payload))
}

// HMACSHA512Hex signs payload with secret.
func HMACSHA512Hex(secret, payload string) string {
	return hex.EncodeToString(mac(sha512.New, secret, payload))
}

// SHA512Hex hashes payload.
func SHA512Hex(payload string) string {
	sum := sha512.Sum512([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Nonce issues strictly increasing millisecond timestamps.
type Nonce struct {
	mu   sync.Mutex
	last int64
	Now  func() time.Time
}

// Next returns the current time in milliseconds, bumped past the previous
// value when the clock has not advanced.
func (n *Nonce) Next() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now
	if n.Now != nil {
		now = n.Now
	}
	ms := now().UnixMilli()
	if ms <= n.last {
		ms = n.last + 1
	}
	n.last = ms
	return ms
}
