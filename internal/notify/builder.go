package notify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"

	"agrisense/internal/models"
)

// authConfig is the decrypted credential shape. Which fields matter
// depends on the provider's sealed auth strategy.
type authConfig struct {
	Username   string            `json:"username"`
	Password   string            `json:"password"`
	Token      string            `json:"token"`
	HeaderName string            `json:"header_name"`
	APIKey     string            `json:"api_key"`
	Headers    map[string]string `json:"headers"`
}

// buildRequest assembles one provider call from its declarative
// description: auth strategy, payload encoding and field mapping.
func buildRequest(req *resty.Request, p *models.ProviderConfig, auth *authConfig, to, message, senderID string) error {
	switch p.AuthStrategy {
	case models.AuthBasic:
		req.SetBasicAuth(auth.Username, auth.Password)
	case models.AuthBearer:
		req.SetAuthToken(auth.Token)
	case models.AuthAPIKeyHeader:
		name := auth.HeaderName
		if name == "" {
			name = "X-API-Key"
		}
		req.SetHeader(name, auth.APIKey)
	case models.AuthCustomHeaders:
		for k, v := range auth.Headers {
			req.SetHeader(k, v)
		}
	default:
		return fmt.Errorf("unknown auth strategy %q", p.AuthStrategy)
	}

	fields := map[string]string{}
	if p.FieldMap.Recipient != "" {
		fields[p.FieldMap.Recipient] = to
	}
	if p.FieldMap.Message != "" {
		fields[p.FieldMap.Message] = message
	}
	if p.FieldMap.Sender != "" && senderID != "" {
		fields[p.FieldMap.Sender] = senderID
	}

	switch p.Encoding {
	case models.EncodingJSON:
		req.SetHeader("Content-Type", "application/json")
		req.SetBody(fields)
	case models.EncodingForm:
		req.SetFormData(fields)
	default:
		return fmt.Errorf("unknown payload encoding %q", p.Encoding)
	}
	return nil
}

// extractMessageID pulls the provider's message id out of a JSON
// response body using the field mapping, when both exist.
func extractMessageID(p *models.ProviderConfig, body []byte) string {
	if p.FieldMap.MessageID == "" || len(body) == 0 {
		return ""
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return ""
	}
	switch v := raw[p.FieldMap.MessageID].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func methodOrDefault(method string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		return "POST"
	}
	return m
}
