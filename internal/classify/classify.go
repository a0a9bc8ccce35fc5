// Package classify inspects an upstream HTTP response and decides whether
// the request succeeded, should fail over to another key, or must be
// passed through to the client unchanged.
package classify

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Outcome is the classifier's verdict for one upstream attempt.
type Outcome string

const (
	Success           Outcome = "success"
	Failover          Outcome = "failover"
	FatalPassThrough  Outcome = "fatal-pass-through"
)

// quotaKeywords are message substrings (case-insensitive) that indicate a
// credit/balance/quota/billing failure, as distinguished from a plain
// invalid-key or rate-limit failure.
var quotaKeywords = []string{
	"积分不足", "insufficient", "quota", "credit", "balance",
}

// authKeywords are additional message substrings that still classify as
// failover but are NOT quota-related (invalid key, plain rate limiting).
var authKeywords = []string{
	"invalid", "unauthorized", "rate limit",
}

var quotaTypeKeywords = []string{"insufficient", "over_quota", "billing"}
var authTypeKeywords = []string{"permission"}

// Result is the outcome of classifying one upstream response.
type Result struct {
	Outcome       Outcome
	QuotaRelated  bool
	StatusCode    int
	Body          []byte
	CloudflareHit bool
	IsHTML        bool
}

// Classify applies the status/body decision table from the failure
// classifier's specification.
func Classify(status int, body []byte) Result {
	res := Result{StatusCode: status, Body: body}

	switch {
	case status >= 200 && status <= 299:
		res.Outcome = Success
		return res

	case status == 401 || status == 403:
		res.Outcome = Failover
		return res

	case status >= 500:
		res.Outcome = Failover
		if looksLikeHTML(body) {
			res.IsHTML = true
			res.CloudflareHit = isCloudflareChallenge(body)
		}
		return res

	case status == 400:
		message := strings.ToLower(gjson.GetBytes(body, "error.message").String())
		errType := strings.ToLower(gjson.GetBytes(body, "error.type").String())
		if message == "" && errType == "" {
			res.Outcome = FatalPassThrough
			return res
		}
		if matchAny(message, quotaKeywords) || matchAny(errType, quotaTypeKeywords) {
			res.Outcome = Failover
			res.QuotaRelated = true
			return res
		}
		if matchAny(message, authKeywords) || matchAny(errType, authTypeKeywords) {
			res.Outcome = Failover
			return res
		}
		res.Outcome = FatalPassThrough
		return res

	default:
		res.Outcome = FatalPassThrough
		return res
	}
}

func matchAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func looksLikeHTML(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	lower := strings.ToLower(trimmed)
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html")
}

func isCloudflareChallenge(body []byte) bool {
	lower := strings.ToLower(string(body))
	if !strings.Contains(lower, "cloudflare") {
		return false
	}
	return strings.Contains(lower, "just a moment") || strings.Contains(lower, "__cf_chl_opt")
}
