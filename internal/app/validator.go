/**
 * @description
 * Structural validation and decoding of Paystack webhook bodies. Validation runs on the
 * generic JSON tree before anything is bound to typed structs, so a malformed delivery is
 * rejected with a list of every problem found rather than the first decode error.
 */
package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bookpay/settlement-service/internal/domain"
)

// ErrInvalidJSON means the body is not parseable JSON.
var ErrInvalidJSON = errors.New("invalid JSON payload")

// ValidationResult carries every structural problem found in a payload.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

func (v *ValidationResult) fail(format string, args ...interface{}) {
	v.IsValid = false
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// ValidateWebhookPayload checks a decoded JSON value: it must be an object with a string
// `event` and an object `data`. A charge.success event also needs `data.reference` (string),
// `data.metadata` (object) and `data.amount` (number).
func ValidateWebhookPayload(raw interface{}) ValidationResult {
	result := ValidationResult{IsValid: true, Errors: []string{}}

	payload, ok := raw.(map[string]interface{})
	if !ok {
		result.fail("payload must be a JSON object")
		return result
	}

	event, hasEvent := payload["event"]
	eventName, isString := event.(string)
	switch {
	case !hasEvent:
		result.fail("event is required")
	case !isString:
		result.fail("event must be a string")
	case eventName == "":
		result.fail("event must not be empty")
	}

	rawData, hasData := payload["data"]
	data, isObject := rawData.(map[string]interface{})
	switch {
	case !hasData:
		result.fail("data is required")
		return result
	case !isObject:
		result.fail("data must be an object")
		return result
	}

	if eventName != domain.EventChargeSuccess {
		return result
	}

	if reference, ok := data["reference"]; !ok {
		result.fail("data.reference is required")
	} else if s, isString := reference.(string); !isString {
		result.fail("data.reference must be a string")
	} else if s == "" {
		result.fail("data.reference must not be empty")
	}

	if metadata, ok := data["metadata"]; !ok {
		result.fail("data.metadata is required")
	} else if _, isObject := metadata.(map[string]interface{}); !isObject {
		result.fail("data.metadata must be an object")
	}

	if amount, ok := data["amount"]; !ok {
		result.fail("data.amount is required")
	} else if _, isNumber := amount.(json.Number); !isNumber {
		result.fail("data.amount must be a number")
	}

	return result
}

// DecodeWebhookEvent parses and validates a webhook body. It returns ErrInvalidJSON when the
// body does not parse. A failed ValidationResult comes back with a nil error; the event is
// only populated when validation passed.
func DecodeWebhookEvent(body []byte) (domain.WebhookEvent, ValidationResult, error) {
	var event domain.WebhookEvent

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return event, ValidationResult{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	result := ValidateWebhookPayload(raw)
	if !result.IsValid {
		return event, result, nil
	}

	if err := json.Unmarshal(body, &event); err != nil {
		// Only charge.success is bound strictly; other events keep their name so they
		// can be acknowledged as unhandled.
		if name, _ := raw.(map[string]interface{})["event"].(string); name != domain.EventChargeSuccess {
			return domain.WebhookEvent{Event: name}, result, nil
		}
		result.fail("data has an unexpected shape: %v", err)
		return domain.WebhookEvent{}, result, nil
	}
	return event, result, nil
}
