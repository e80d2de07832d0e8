package paystackclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializeTransaction(t *testing.T) {
	var got InitializeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":true,"message":"Authorization URL created","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"ref_123"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", nil)
	data, err := client.InitializeTransaction(context.Background(), InitializeRequest{
		Email:    "client@example.com",
		Amount:   12345,
		Currency: "GHS",
		Channels: []string{"card"},
		Metadata: map[string]interface{}{"payment_type": "client_to_business"},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://checkout.paystack.com/abc", data.AuthorizationURL)
	assert.Equal(t, "ref_123", data.Reference)
	assert.Equal(t, "abc", data.AccessCode)
	assert.Equal(t, int64(12345), got.Amount)
	assert.Equal(t, []string{"card"}, got.Channels)
	assert.Equal(t, "client_to_business", got.Metadata["payment_type"])
}

func TestInitializeTransaction_ProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid email"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", nil)
	_, err := client.InitializeTransaction(context.Background(), InitializeRequest{Email: "bad", Amount: 100})

	var apiErr *ErrorResponse
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Invalid email", apiErr.Message)
}

func TestInitializeTransaction_IncompleteResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"message":"ok","data":{}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test", nil)
	_, err := client.InitializeTransaction(context.Background(), InitializeRequest{Email: "a@b.co", Amount: 100})
	assert.Error(t, err)
}

func TestVerifyTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/transaction/verify/ref_9", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":true,"message":"Verification successful","data":{"id":1,"status":"success","reference":"ref_9","amount":100000,"currency":"GHS","channel":"card","metadata":{"payment_type":"client_to_business"},"customer":{"email":"c@example.com"}}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "sk_test", nil)
	data, err := client.VerifyTransaction(context.Background(), "ref_9")
	require.NoError(t, err)

	assert.True(t, data.Succeeded())
	assert.Equal(t, int64(100000), data.Amount)
	assert.Equal(t, "c@example.com", data.Customer.Email)
	assert.Equal(t, "client_to_business", data.Metadata["payment_type"])
}

func TestVerifyTransaction_RequiresReference(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", "sk_test", nil)
	_, err := client.VerifyTransaction(context.Background(), "  ")
	assert.Error(t, err)
}
