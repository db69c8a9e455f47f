package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Signer holds the credentials for HMAC-authenticated requests against the
// exchange REST API.
type Signer struct {
	Key    string // API key, sent in the X-MBX-APIKEY style header
	Secret string // API secret, used as the raw HMAC key
}

// Sign computes HMAC-SHA256(secret, queryString) hex-encoded, the signature
// scheme used by Binance-style spot APIs.
func (s *Signer) Sign(queryString string) string {
	mac := hmac.New(sha256.New, []byte(s.Secret))
	mac.Write([]byte(queryString))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedQuery appends timestamp, recvWindow, and signature parameters to the
// given query string.
func (s *Signer) SignedQuery(query string, recvWindowMs int) string {
	return s.SignedQueryAt(query, recvWindowMs, time.Now().UnixMilli())
}

// SignedQueryAt is like SignedQuery but lets the caller supply the
// millisecond timestamp (useful for deterministic testing).
func (s *Signer) SignedQueryAt(query string, recvWindowMs int, tsMillis int64) string {
	q := query
	if q != "" {
		q += "&"
	}
	q += "timestamp=" + strconv.FormatInt(tsMillis, 10)
	if recvWindowMs > 0 {
		q += "&recvWindow=" + strconv.Itoa(recvWindowMs)
	}
	return q + "&signature=" + s.Sign(q)
}
