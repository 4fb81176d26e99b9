package server

// InitRequest asks the scraping backend for a page.
type InitRequest struct {
	URL string `json:"url" example:"https://example.com"`
	// WaitFor is in milliseconds; defaults to 1000.
	WaitFor *int `json:"waitFor,omitempty" example:"1000"`
}

// ScreenshotRequest captures a page to the screenshot file.
type ScreenshotRequest struct {
	URL      string `json:"url" example:"https://example.com"`
	FullPage *bool  `json:"fullPage,omitempty" example:"true"`
}

// ScreenshotResponse names the written file.
type ScreenshotResponse struct {
	ScreenshotPath string `json:"screenshot_path" example:"screenshot.png"`
}

// PostRequest is a prompt for the language model.
type PostRequest struct {
	Text string `json:"text" example:"Write a short post about MoonCat"`
}

// PostResponse carries the model's reply.
type PostResponse struct {
	Response string `json:"response" example:"MoonCat is purring to the moon"`
}

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
