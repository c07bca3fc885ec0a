// response/success.go
/* Responsible for decoding successful responses. The body is read once and decoded according to
its content type so the dispatcher can hand callers a structured value. */
package response

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"
)

// DecodeSuccessBody reads the response body and decodes it by content type:
// JSON documents become map/slice values, XML becomes an *xmlquery.Node, text types become a
// string and anything else is returned as raw bytes. An empty body decodes to nil.
func DecodeSuccessBody(resp *http.Response) (any, error) {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(bodyBytes) == 0 {
		return nil, nil
	}

	mimeType, _ := ParseContentTypeHeader(resp.Header.Get("Content-Type"))
	switch {
	case mimeType == "application/json" || strings.HasSuffix(mimeType, "+json"):
		var out any
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			return nil, fmt.Errorf("failed to decode JSON response: %w", err)
		}
		return out, nil
	case mimeType == "application/xml" || mimeType == "text/xml":
		doc, err := xmlquery.Parse(bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to decode XML response: %w", err)
		}
		return doc, nil
	case strings.HasPrefix(mimeType, "text/"):
		return string(bodyBytes), nil
	default:
		return bodyBytes, nil
	}
}

// Into re-encodes a decoded JSON body into out. It is used by callers that want a typed value
// rather than the generic map produced by DecodeSuccessBody.
func Into(body any, out any) error {
	if out == nil || body == nil {
		return nil
	}
	switch b := body.(type) {
	case []byte:
		if dst, ok := out.(*[]byte); ok {
			*dst = b
			return nil
		}
		return json.Unmarshal(b, out)
	case string:
		if dst, ok := out.(*string); ok {
			*dst = b
			return nil
		}
		return fmt.Errorf("cannot decode text body into %T", out)
	case *xmlquery.Node:
		if dst, ok := out.(*string); ok {
			*dst = b.OutputXML(true)
			return nil
		}
		return fmt.Errorf("cannot decode XML body into %T", out)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
