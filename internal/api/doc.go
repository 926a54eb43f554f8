// Package api serves the HTTP surface of SuiCoPilot: the three edge-function
// style endpoints under /functions/v1 and the application API under /api/v1.
// Every error leaves the package as a toast with the status its code maps to.
package api
