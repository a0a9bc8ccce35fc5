package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func mustRequestWithHeaders(headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestFillMissingUsageEstimatesWhenZero(t *testing.T) {
	body := []byte(`{"content":[{"type":"text","text":"hello world"}],"usage":{"input_tokens":5,"output_tokens":0}}`)
	out := fillMissingUsage(body)
	assert.True(t, gjson.GetBytes(out, "usage.output_tokens").Int() > 0)
}

func TestFillMissingUsageLeavesNonZeroUntouched(t *testing.T) {
	body := []byte(`{"content":[{"type":"text","text":"hello world"}],"usage":{"input_tokens":5,"output_tokens":42}}`)
	out := fillMissingUsage(body)
	assert.EqualValues(t, 42, gjson.GetBytes(out, "usage.output_tokens").Int())
}

func TestFillMissingUsageLeavesEmptyContentUntouched(t *testing.T) {
	body := []byte(`{"content":[],"usage":{"input_tokens":5,"output_tokens":0}}`)
	out := fillMissingUsage(body)
	assert.Equal(t, body, out)
}

func TestExtractProxyKeyPrefersHeaderOverBearer(t *testing.T) {
	assert.Equal(t, "abc", extractProxyKey(mustRequestWithHeaders(map[string]string{"x-api-key": "abc", "Authorization": "Bearer xyz"})))
	assert.Equal(t, "xyz", extractProxyKey(mustRequestWithHeaders(map[string]string{"Authorization": "Bearer xyz"})))
	assert.Equal(t, "", extractProxyKey(mustRequestWithHeaders(nil)))
}
