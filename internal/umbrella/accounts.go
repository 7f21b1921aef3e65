package umbrella

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	vtagerrors "github.com/catherinevee/vtagger/internal/errors"
)

// Account is one payer or linked account returned by account listing.
type Account struct {
	AccountID     string `json:"accountId"`
	AccountName   string `json:"accountName"`
	AccountKey    string `json:"accountKey"`
	IsAllAccounts bool   `json:"isAllAccounts"`
}

// Accounts partitions the listing into aggregate ("all accounts") and
// individual entries.
type Accounts struct {
	Aggregate  []Account
	Individual []Account
}

// plainSubUsersResponse is the shape of the primary endpoint.
type plainSubUsersResponse struct {
	Accounts []Account `json:"accounts"`
}

// ListAccounts tries the plain-sub-users endpoint first, falling back
// to the flat user-management/accounts listing on any error from the
// first (non-200, transport or decode failure).
func (c *Client) ListAccounts(ctx context.Context) (*Accounts, error) {
	accounts, err := c.listPlainSubUsers(ctx)
	if err != nil {
		accounts, err = c.listUserManagementAccounts(ctx)
		if err != nil {
			return nil, vtagerrors.NewUpstreamFatal("account listing failed on both endpoints").WithCause(err)
		}
	}

	result := &Accounts{}
	for _, a := range accounts {
		if a.IsAllAccounts {
			result.Aggregate = append(result.Aggregate, a)
		} else {
			result.Individual = append(result.Individual, a)
		}
	}
	return result, nil
}

func (c *Client) listPlainSubUsers(ctx context.Context) ([]Account, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/users/plain-sub-users", nil, "", accountTimeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, vtagerrors.NewUpstreamTransient("plain-sub-users returned non-200").
			WithDetail("status", resp.StatusCode).WithDetail("body", string(data))
	}

	var out plainSubUsersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

func (c *Client) listUserManagementAccounts(ctx context.Context) ([]Account, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/v1/user-management/accounts", nil, "", accountTimeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return nil, vtagerrors.NewUpstreamTransient("user-management/accounts returned non-200").
			WithDetail("status", resp.StatusCode).WithDetail("body", string(data))
	}

	var out []Account
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// AccountLookup builds an (accountId or accountName) -> accountKey map
// over both aggregate and individual accounts, for the upload phase.
func (a *Accounts) AccountLookup() map[string]string {
	lookup := make(map[string]string)
	for _, list := range [][]Account{a.Aggregate, a.Individual} {
		for _, acc := range list {
			if acc.AccountID != "" {
				lookup[acc.AccountID] = acc.AccountKey
			}
			if acc.AccountName != "" {
				lookup[acc.AccountName] = acc.AccountKey
			}
		}
	}
	return lookup
}
