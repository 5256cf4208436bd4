// Package authapi exposes the user endpoints over HTTP and provides the
// authentication gate that protects the rest of the API.
package authapi
