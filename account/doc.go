// Package account holds the credential store model: the account record,
// its role-specific profile, validation rules applied at registration,
// and the Store contract that durable backends implement.
package account
