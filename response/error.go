// response/error.go
// This package provides utility functions and structures for handling and categorizing HTTP responses.
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html"
)

// ErrorKind discriminates the origin of an APIError.
type ErrorKind string

const (
	// KindHTTP is a non-2xx response received from the server.
	KindHTTP ErrorKind = "http"
	// KindFetch is a request that failed before a response was received.
	KindFetch ErrorKind = "fetch"
	// KindOffline is a request that failed because the remote host could not be reached at all.
	KindOffline ErrorKind = "offline"
)

// APIError represents an api error response. Network failures are reported with a synthetic
// StatusCode of 500 and Kind set to KindFetch or KindOffline.
type APIError struct {
	StatusCode  int       `json:"status_code"`       // HTTP status code
	Kind        ErrorKind `json:"kind"`              // Origin of the error
	Method      string    `json:"method"`            // HTTP method used for the request
	URL         string    `json:"url"`               // The URL of the HTTP request
	Message     string    `json:"message"`           // Summary of the error
	Details     []string  `json:"details,omitempty"` // Detailed error messages, if any
	Data        any       `json:"data,omitempty"`    // Parsed error body
	RawResponse string    `json:"raw_response"`      // Raw response body for debugging
	Err         error     `json:"-"`                 // Underlying network error, if any
}

// Error returns a string representation of the APIError, making it compatible with the error interface.
func (e *APIError) Error() string {
	message := e.Message
	if message == "" {
		message = http.StatusText(e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("API Error: Kind=%s, StatusCode=%d, Message=%s: %v", e.Kind, e.StatusCode, message, e.Err)
	}
	return fmt.Sprintf("API Error: Kind=%s, StatusCode=%d, Message=%s", e.Kind, e.StatusCode, message)
}

// Unwrap exposes the underlying network error.
func (e *APIError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether the error is an HTTP 401.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// NewNetworkError builds the synthetic error for a request that never got a response.
func NewNetworkError(method, url string, kind ErrorKind, err error) *APIError {
	return &APIError{
		StatusCode: http.StatusInternalServerError,
		Kind:       kind,
		Method:     method,
		URL:        url,
		Message:    "Request failed before a response was received",
		Data:       map[string]any{string(kind): true},
		Err:        err,
	}
}

// HandleAPIErrorResponse reads a non-2xx response and converts it into an APIError, parsing the
// body according to its content type.
func HandleAPIErrorResponse(resp *http.Response) *APIError {
	apiError := &APIError{
		StatusCode: resp.StatusCode,
		Kind:       KindHTTP,
		Message:    "API Error Response",
	}
	if resp.Request != nil {
		apiError.Method = resp.Request.Method
		apiError.URL = resp.Request.URL.String()
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		apiError.RawResponse = "Failed to read response body"
		return apiError
	}

	mimeType, _ := ParseContentTypeHeader(resp.Header.Get("Content-Type"))
	switch mimeType {
	case "application/json", "application/problem+json":
		parseJSONResponse(bodyBytes, apiError)
	case "application/xml", "text/xml":
		parseXMLResponse(bodyBytes, apiError)
	case "text/html":
		parseHTMLResponse(bodyBytes, apiError)
	case "text/plain":
		parseTextResponse(bodyBytes, apiError)
	default:
		apiError.RawResponse = string(bodyBytes)
		if len(bodyBytes) > 0 {
			apiError.Data = string(bodyBytes)
		}
		apiError.Message = "Unknown content type error"
	}

	return apiError
}

// parseJSONResponse keeps the decoded document in Data and lifts a "message" or
// "error_description" member into Message when present.
func parseJSONResponse(bodyBytes []byte, apiError *APIError) {
	apiError.RawResponse = string(bodyBytes)

	var data any
	if err := json.Unmarshal(bodyBytes, &data); err != nil {
		apiError.Message = "Failed to decode JSON error response"
		return
	}
	apiError.Data = data

	if doc, ok := data.(map[string]any); ok {
		for _, key := range []string{"message", "error_description", "error"} {
			if msg, ok := doc[key].(string); ok && msg != "" {
				apiError.Message = msg
				return
			}
		}
	}
	apiError.Message = "An unknown error occurred"
}

// parseXMLResponse dynamically parses XML error responses and accumulates potential error messages.
func parseXMLResponse(bodyBytes []byte, apiError *APIError) {
	apiError.RawResponse = string(bodyBytes)
	apiError.Data = string(bodyBytes)

	doc, err := xmlquery.Parse(bytes.NewReader(bodyBytes))
	if err != nil {
		return
	}

	var messages []string
	var traverse func(*xmlquery.Node)
	traverse = func(n *xmlquery.Node) {
		if n.Type == xmlquery.TextNode && strings.TrimSpace(n.Data) != "" {
			messages = append(messages, strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	if len(messages) > 0 {
		apiError.Message = strings.Join(messages, "; ")
		apiError.Details = messages
	} else {
		apiError.Message = "Failed to extract error details from XML response"
	}
}

// parseTextResponse updates the APIError structure based on a plain text error response.
func parseTextResponse(bodyBytes []byte, apiError *APIError) {
	bodyText := string(bodyBytes)
	apiError.RawResponse = bodyText
	apiError.Data = bodyText
	apiError.Message = bodyText
}

// parseHTMLResponse extracts meaningful information from an HTML error response,
// concatenating all text within <p> tags and links found within them.
func parseHTMLResponse(bodyBytes []byte, apiError *APIError) {
	apiError.RawResponse = string(bodyBytes)
	apiError.Data = string(bodyBytes)

	doc, err := html.Parse(bytes.NewReader(bodyBytes))
	if err != nil {
		return
	}

	var messages []string
	var parse func(*html.Node)
	parse = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			var pContent strings.Builder
			var traverseChildren func(*html.Node)
			traverseChildren = func(c *html.Node) {
				if c.Type == html.TextNode {
					pContent.WriteString(strings.TrimSpace(c.Data) + " ")
				} else if c.Type == html.ElementNode && c.Data == "a" {
					for _, attr := range c.Attr {
						if attr.Key == "href" {
							pContent.WriteString("[Link: " + attr.Val + "] ")
							break
						}
					}
				}
				for child := c.FirstChild; child != nil; child = child.NextSibling {
					traverseChildren(child)
				}
			}
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				traverseChildren(child)
			}
			if finalContent := strings.TrimSpace(pContent.String()); finalContent != "" {
				messages = append(messages, finalContent)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			parse(c)
		}
	}
	parse(doc)

	if len(messages) > 0 {
		apiError.Message = strings.Join(messages, "; ")
		apiError.Details = messages
	} else {
		apiError.Message = "HTML Error: See 'Raw' field for details."
	}
}
