// Package jwt issues and verifies the signed session credential returned by
// registration completion and login.
package jwt
