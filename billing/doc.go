// Package billing calls the billing service on behalf of an authenticated
// user. Each request carries a freshly minted, short-lived billing token that
// names the user only.
package billing
