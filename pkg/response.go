package pkg

// APIResponse is the standardized success envelope for HTTP handlers.
type APIResponse struct {
	Data interface{} `json:"data"`
}
