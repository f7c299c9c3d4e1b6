package testutils

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/tradeflow/tradeflow-engine/pkg"
)

type ApiResponse struct {
	Data map[string]interface{} `json:"data"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func PostRequest(t *testing.T, url string, payload interface{}) (*http.Response, error) {
	b, _ := json.Marshal(payload)
	t.Logf("Request POST %s", url)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if resp != nil {
		t.Logf("Response POST %s: Status %d", url, resp.StatusCode)
		t.Cleanup(func() { _ = resp.Body.Close() })
	}
	return resp, err
}

func GetRequest(t *testing.T, url string) (*http.Response, error) {
	t.Logf("Request GET %s", url)
	resp, err := http.Get(url)
	if resp != nil {
		t.Logf("Response GET %s: Status %d", url, resp.StatusCode)
		t.Cleanup(func() { _ = resp.Body.Close() })
	}
	return resp, err
}

func GetTraceId(resp *http.Response) string {
	return resp.Header.Get(pkg.HeaderTraceId)
}

func DecodeSuccess(r io.Reader) (ApiResponse, error) {
	var out ApiResponse
	err := json.NewDecoder(r).Decode(&out)
	return out, err
}

func DecodeSuccessList(r io.Reader) ([]map[string]interface{}, error) {
	var out struct {
		Data []map[string]interface{} `json:"data"`
	}
	err := json.NewDecoder(r).Decode(&out)
	return out.Data, err
}

func DecodeError(r io.Reader) (ErrorResponse, error) {
	var out ErrorResponse
	err := json.NewDecoder(r).Decode(&out)
	return out, err
}
