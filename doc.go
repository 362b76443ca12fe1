// Package wapgate provides the application layer of a WAP gateway: it
// bridges WSP session events and push-OTA events to ordinary HTTP.
//
// The core code is in package 'appl', and the gateway binary is in `cmd`.
//
// See https://github.com/Comcast/wapgate/blob/master/README.md for more.
package wapgate
