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

package wmlscript

import (
	"encoding/binary"
	"testing"
)

func TestCompile(t *testing.T) {
	src := []byte(`extern function dayOfWeek(day) { return day % 7; }`)

	bs, err := Compile("day.wmls", src)
	if err != nil {
		t.Fatal(err)
	}
	if bs[0] != bytecodeVersion {
		t.Fatalf("version octet %#x", bs[0])
	}
	if got := binary.BigEndian.Uint32(bs[1:5]); got != uint32(len(src)) {
		t.Fatalf("unit length %d, want %d", got, len(src))
	}
	if string(bs[5:]) != string(src) {
		t.Fatal("unit bytes mangled")
	}
}

func TestCompilePragmas(t *testing.T) {
	src := []byte(`use url Lib "http://wap.example.com/lib.wmls";
extern function go() { return Lib.n(); }`)

	if _, err := Compile("go.wmls", src); err != nil {
		t.Fatal(err)
	}
}

func TestCompileBadUnit(t *testing.T) {
	if _, err := Compile("bad.wmls", []byte(`function { nope`)); err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestSelfCheck(t *testing.T) {
	if err := SelfCheck(); err != nil {
		t.Fatal(err)
	}
}
