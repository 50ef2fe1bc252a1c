package client

import (
	"context"
	"net/http"
	"strings"
)

// TokenClient asks the server's token endpoint to register a user and sign
// a session token for it.
type TokenClient struct {
	api *apiClient
}

func NewTokenClient(baseURL string, httpClient *http.Client) *TokenClient {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &TokenClient{api: &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}}
}

type tokenRequest struct {
	UserID string `json:"userId"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (c *TokenClient) Token(ctx context.Context, userID string) (string, error) {
	var resp tokenResponse
	if err := c.api.doRequest(ctx, http.MethodPost, "/api/token", tokenRequest{UserID: userID}, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}
