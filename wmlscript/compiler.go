/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package wmlscript compiles WMLScript compilation units into the
// gateway's bytecode container (text/vnd.wap.wmlscript ->
// application/vnd.wap.wmlscriptc).
//
// The unit is checked by compiling it with Goja after the
// WMLScript-only forms ('extern' function qualifiers and 'use url'
// pragmas) are stripped; a unit Goja rejects fails compilation.  The
// compiler's own diagnostics are discarded; callers only ever see
// bytes or an error.
package wmlscript

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"regexp"

	"github.com/dop251/goja"
)

const (
	// MediaType is the source content type.
	MediaType = "text/vnd.wap.wmlscript"

	// CompiledType is the produced content type.
	CompiledType = "application/vnd.wap.wmlscriptc"

	// bytecodeVersion is the container's version octet.
	bytecodeVersion = 0x01
)

var (
	externRe = regexp.MustCompile(`(^|\n|;)\s*extern\s+function`)
	pragmaRe = regexp.MustCompile(`(?m)^\s*use\s+(url|access|meta)\b[^;]*;`)
)

// Compile turns a WMLScript unit into its bytecode container: version
// octet, big-endian length of the unit, then the unit in UTF-8.
func Compile(name string, src []byte) ([]byte, error) {
	unit := string(src)

	checked := pragmaRe.ReplaceAllString(unit, "")
	checked = externRe.ReplaceAllString(checked, "${1} function")

	if _, err := goja.Compile(name, checked, false); err != nil {
		return nil, fmt.Errorf("wmlscript %s: %v", name, err)
	}

	var out bytes.Buffer
	out.WriteByte(bytecodeVersion)
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(unit)))
	out.Write(size[:])
	out.WriteString(unit)

	return out.Bytes(), nil
}

// SelfCheck compiles a trivial unit.  A failure here means the
// compiler back end is unusable; the caller should treat that as an
// unrecoverable environment defect at startup.
func SelfCheck() error {
	probe := "extern function check() { return 1; }"
	if _, err := Compile("selfcheck", []byte(probe)); err != nil {
		return fmt.Errorf("wmlscript compiler unusable: %v", err)
	}
	return nil
}
