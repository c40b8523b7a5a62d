package encoding

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

const (
	ContentTypeCBOR = "application/cbor"
	ContentTypeJSON = "application/json"
)

// MarshalCBOR encodes data to CBOR format
func MarshalCBOR(v interface{}) ([]byte, error) {
	return cbor.Marshal(v)
}

// UnmarshalCBOR decodes CBOR data
func UnmarshalCBOR(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}

// WantsCBOR reports whether an Accept header asks for CBOR
func WantsCBOR(accept string) bool {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mediaType == ContentTypeCBOR {
			return true
		}
	}
	return false
}

// IsCBOR reports whether a response carries a CBOR body
func IsCBOR(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mediaType == ContentTypeCBOR
}

// ReadCBORResponse reads and decodes CBOR response
func ReadCBORResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	return UnmarshalCBOR(body, v)
}
