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

package wml

import (
	"bytes"
	"testing"
)

const deck = `<?xml version="1.0"?>` +
	`<!DOCTYPE wml PUBLIC "-//WAPFORUM//DTD 1.1//EN" ` +
	`"http://www.wapforum.org/DTD/wml_1.1.xml">` +
	`<wml><card id="health"><p>Ok</p></card></wml>`

func TestCompile(t *testing.T) {
	bs, err := Compile([]byte(deck), "")
	if err != nil {
		t.Fatal(err)
	}

	if bs[0] != wbxmlVersion {
		t.Fatalf("version byte %#x", bs[0])
	}
	if bs[1] != publicIDWML {
		t.Fatalf("public id %#x", bs[1])
	}
	if bs[2] != 106 {
		t.Fatalf("charset %#x", bs[2])
	}

	// "id" is the only literal: 3 bytes of string table.
	if bs[3] != 3 {
		t.Fatalf("string table length %d", bs[3])
	}
	if !bytes.Equal(bs[4:7], []byte("id\x00")) {
		t.Fatalf("string table %q", bs[4:7])
	}

	// <wml> has content only.
	if bs[7] != tagTokens["wml"]|flagContent {
		t.Fatalf("wml token %#x", bs[7])
	}
	// <card id=...> has attributes and content.
	if bs[8] != tagTokens["card"]|flagAttrs|flagContent {
		t.Fatalf("card token %#x", bs[8])
	}

	// The deck ends with "Ok" inline, then END for p, card, wml.
	tail := []byte{tokStrI, 'O', 'k', 0, tokEnd, tokEnd, tokEnd}
	if !bytes.HasSuffix(bs, tail) {
		t.Fatalf("tail %#v", bs[len(bs)-8:])
	}
}

func TestCompileDeterministic(t *testing.T) {
	a, err := Compile([]byte(deck), "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compile([]byte(deck), "")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("compilation is not deterministic")
	}
}

func TestCompileLatin1(t *testing.T) {
	// "caf\xE9" is Latin-1 for café.
	src := []byte(`<wml><card id="c"><p>caf` + "\xe9" + `</p></card></wml>`)
	bs, err := Compile(src, "ISO-8859-1")
	if err != nil {
		t.Fatal(err)
	}
	// The é must arrive as UTF-8 in the inline string.
	if !bytes.Contains(bs, []byte("caf\xc3\xa9\x00")) {
		t.Fatal("text not transcoded to UTF-8")
	}
}

func TestCompileRejectsJunk(t *testing.T) {
	if _, err := Compile([]byte("<html><p>nope</p></html>"), ""); err == nil {
		t.Fatal("expected a root-element error")
	}
	if _, err := Compile([]byte("<wml><card></wml>"), ""); err == nil {
		t.Fatal("expected a parse error")
	}
	if _, err := Compile([]byte(deck), "EBCDIC-FI-SE"); err == nil {
		t.Fatal("expected a charset error")
	}
}

func TestCharsets(t *testing.T) {
	cs := Charsets()
	if len(cs) == 0 || cs[0] != "UTF-8" {
		t.Fatalf("got %#v", cs)
	}
	for _, name := range cs {
		if _, have := charsetMIB[name]; !have {
			t.Fatalf("%s advertised but not decodable", name)
		}
	}
}
